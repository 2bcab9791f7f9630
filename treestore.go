// Package treestore is a predictable state container: an immutable state
// tree, actions, and a reducer tree composed from plain, scoped, case and
// async reducers.
//
// Build a store with a Configurator:
//
//	c := treestore.NewConfigurator()
//	c.Nested(state.Fields("todos"), func(n *treestore.Configurator) {
//		n.AddCase("add", func(s state.Value, a action.Action) state.Value {
//			return appendItem(s, a.Param(0))
//		})
//	})
//	c.AddAsyncAction("login", loadUser)
//	st, err := c.Create(initial)
//
// Dispatch runs on the owner goroutine. Loader results arrive through the
// store's inbox and are applied by Run or Settle.
package treestore

import (
	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/reducer"
	"github.com/roach88/treestore/internal/state"
)

// Aliases of the internal types, so callers need a single import.
type (
	// Store holds the current state and dispatches actions through the reducer tree.
	Store = engine.Store
	// Configurator collects reducers, cases and async actions, then creates a Store.
	Configurator = engine.Configurator
	// Option configures a Store at creation.
	Option = engine.Option
	// Record describes one committed transition, as seen by a recorder.
	Record = engine.Record
	// Subscriber is notified with (prev, curr) after every dispatch.
	Subscriber = engine.Subscriber
	// RuntimeError is the coded error returned by dispatch and loaders.
	RuntimeError = engine.RuntimeError

	// Action is a typed event with optional params, data and flow token.
	Action = action.Action
	// Value is a node of the immutable state tree.
	Value = state.Value
	// Node is one element of the reducer tree.
	Node = reducer.Node
	// Loader produces the data of an async action's done phase.
	Loader = reducer.Loader
)

// ErrReentrantDispatch is returned by Dispatch when called from a reducer.
var ErrReentrantDispatch = engine.ErrReentrantDispatch

// NewConfigurator returns an empty configurator.
func NewConfigurator() *Configurator {
	return engine.NewConfigurator()
}

// New creates a store reducing with the combination of nodes, starting
// from initial. Nodes are combined in order.
func New(initial Value, nodes ...Node) *Store {
	return NewWithOptions(initial, nodes)
}

// NewWithOptions is New with store options.
func NewWithOptions(initial Value, nodes []Node, opts ...Option) *Store {
	return engine.New(reducer.Combine(nodes...), initial, opts...)
}
