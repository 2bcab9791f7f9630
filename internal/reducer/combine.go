package reducer

import (
	"slices"
	"sync"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/state"
)

// Tree is a combined reducer. It is safe for concurrent use provided its
// function reducers are.
type Tree struct {
	root Node
}

func (*Tree) reducerNode() {}

// Combine folds nodes into a single tree applied in declaration order.
func Combine(nodes ...Node) *Tree {
	switch len(nodes) {
	case 0:
		return &Tree{}
	case 1:
		return &Tree{root: nodes[0]}
	default:
		return &Tree{root: List(slices.Clone(nodes))}
	}
}

// Reduce applies the tree to s. Continuations deferred by async nodes are
// appended to fx; a nil fx discards them.
func (t *Tree) Reduce(s state.Value, a action.Action, fx *Effects) state.Value {
	r := &reduction{action: a, root: s, fx: fx}
	return r.reduce(s, t)
}

// Apply reduces without collecting effects.
func (t *Tree) Apply(s state.Value, a action.Action) state.Value {
	return t.Reduce(s, a, nil)
}

// Func returns the tree as a plain function reducer.
func (t *Tree) Func() Func {
	return t.Apply
}

type reduction struct {
	action action.Action
	root   state.Value
	fx     *Effects
}

func (r *reduction) reduce(s state.Value, n Node) state.Value {
	switch n := n.(type) {
	case nil:
		return s
	case Func:
		return nullIfNil(n(s, r.action))
	case RootFunc:
		return nullIfNil(n(s, r.action, r.root))
	case List:
		for _, child := range n {
			s = r.reduce(s, child)
		}
		return s
	case Map:
		return r.reduceMap(s, n)
	case *Tree:
		if n == nil {
			return s
		}
		return r.reduce(s, n.root)
	case *caseNode:
		if r.action.Name() != n.name {
			return s
		}
		return r.reduce(s, n.handler)
	case *scopedNode:
		return n.reduce(r, s)
	case *asyncNode:
		n.reduce(r)
		return s
	default:
		return s
	}
}

func (r *reduction) reduceMap(s state.Value, m Map) state.Value {
	obj, _ := s.(*state.Object)

	var changes map[string]state.Value
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		prev := obj.Field(k)
		next := r.reduce(prev, m[k])
		if state.Same(prev, next) {
			continue
		}
		if changes == nil {
			changes = make(map[string]state.Value)
		}
		changes[k] = next
	}

	if changes == nil {
		return s
	}
	return obj.WithAll(changes)
}

// scopedNode applies child to the sub-state a selector reads.
type scopedNode struct {
	sel   state.Selector
	child Node

	once sync.Once
	path state.Path
}

func (*scopedNode) reducerNode() {}

// Scope returns a node that applies nodes to the sub-state sel reads and
// writes the result back at sel's path, reallocating only that path.
//
// The path is resolved from the first state the node sees and reused for the
// node's lifetime, so sel must read a fixed chain of keys.
func Scope(sel state.Selector, nodes ...Node) Node {
	return &scopedNode{sel: sel, child: Combine(nodes...)}
}

// ScopePath is Scope with a pre-resolved path.
func ScopePath(path state.Path, nodes ...Node) Node {
	n := &scopedNode{sel: state.PathSelector(path), child: Combine(nodes...)}
	n.once.Do(func() { n.path = append(state.Path{}, path...) })
	return n
}

// resolve returns the path, resolving it against s on first use.
func (n *scopedNode) resolve(s state.Value) state.Path {
	n.once.Do(func() { n.path = state.ResolvePath(s, n.sel) })
	return n.path
}

func (n *scopedNode) reduce(r *reduction, s state.Value) state.Value {
	path := n.resolve(s)
	sub := state.Select(s, n.sel)
	next := r.reduce(sub, n.child)
	if state.Same(sub, next) {
		return s
	}
	return state.SetIn(s, path, next)
}

func nullIfNil(v state.Value) state.Value {
	if v == nil {
		return state.Null{}
	}
	return v
}
