// Package reducer implements the reducer node algebra.
//
// A Node describes how actions transform a (sub)state. It is one of
//   - Func: a pure function reducer
//   - RootFunc: a function reducer that also sees the root state as it was
//     when the reduction began
//   - Map: independent sub-reducers per object key
//   - List: reducers applied in order, each seeing the previous output
//
// plus the routing nodes built by Scope, Case and Async. Combine folds any
// number of nodes into a *Tree, which is itself a Node.
//
// Map and List never inspect the action; they only route. Reductions that
// change nothing return the input state by reference.
package reducer

import (
	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/state"
)

// Node is a sealed interface over reducer node variants.
type Node interface {
	reducerNode() // Sealed - only this package's types implement it
}

// Func is a function reducer. It must return s unchanged for irrelevant
// actions. A nil result is treated as state.Null{}.
type Func func(s state.Value, a action.Action) state.Value

func (Func) reducerNode() {}

// RootFunc is a function reducer that also receives the root state as it was
// when the current reduction began, regardless of how deeply it is nested.
type RootFunc func(s state.Value, a action.Action, root state.Value) state.Value

func (RootFunc) reducerNode() {}

// Map applies each entry to the object field of the same name.
// Keys are visited in sorted order.
type Map map[string]Node

func (Map) reducerNode() {}

// List applies its nodes in order.
type List []Node

func (List) reducerNode() {}

type caseNode struct {
	name    string
	handler Node
}

func (*caseNode) reducerNode() {}

// Case returns a node that runs handler only for actions whose rendered name
// (action.Action.Name) equals name, and passes state through otherwise.
func Case(name string, handler Node) Node {
	return &caseNode{name: name, handler: handler}
}

// Handle is Case for a plain function handler.
func Handle(name string, fn Func) Node {
	return Case(name, fn)
}
