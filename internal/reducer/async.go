package reducer

import (
	"context"
	"slices"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/state"
)

// Loader produces the data of an async action. It receives the params of the
// Base action, or none if it carried none.
type Loader func(ctx context.Context, params ...state.Value) (state.Value, error)

// Task is loader work handed to a Host. It returns the action to dispatch
// once the work completes.
type Task func(ctx context.Context) (action.Action, error)

// Host is the store side of a continuation.
type Host interface {
	// Dispatch dispatches a synchronously.
	Dispatch(a action.Action) error

	// Await runs task off the dispatch path and dispatches its result later.
	// origin is the action that started the work.
	Await(origin action.Action, task Task)

	// NewFlow returns a fresh flow token.
	NewFlow() string
}

// Continuation is work deferred by a reducer until the reduction that
// produced it has completed.
type Continuation func(h Host) error

// Effects collects continuations deferred during a reduction.
// A nil *Effects discards everything deferred to it.
type Effects struct {
	pending []Continuation
}

// Defer appends c.
func (e *Effects) Defer(c Continuation) {
	if e == nil || c == nil {
		return
	}
	e.pending = append(e.pending, c)
}

// Len returns the number of pending continuations.
func (e *Effects) Len() int {
	if e == nil {
		return 0
	}
	return len(e.pending)
}

// Drain returns the pending continuations and leaves e empty. Continuations
// deferred after Drain returns are kept for the next Drain.
func (e *Effects) Drain() []Continuation {
	if e == nil {
		return nil
	}
	pending := e.pending
	e.pending = nil
	return pending
}

// asyncNode routes a Base action of its type into a deferred continuation.
type asyncNode struct {
	typ    string
	loader Loader
}

func (*asyncNode) reducerNode() {}

// Async returns a node that, for a Base action of type typ, defers a
// continuation and leaves state unchanged. The continuation dispatches
// typ.loading, runs loader through the host with the action's params and
// dispatches typ.done carrying the loader's result.
//
// All three phases share one flow token: the base action's, or a new one.
func Async(typ string, loader Loader) Node {
	return &asyncNode{typ: typ, loader: loader}
}

func (n *asyncNode) reduce(r *reduction) {
	a := r.action
	if a.Type != n.typ || a.Phase != action.Base {
		return
	}
	r.fx.Defer(n.continuation(a))
}

func (n *asyncNode) continuation(origin action.Action) Continuation {
	params := slices.Clone(origin.Params)
	return func(h Host) error {
		flow := origin.Flow
		if flow == "" {
			flow = h.NewFlow()
			origin = origin.WithFlow(flow)
		}
		if err := h.Dispatch(action.NewLoading(n.typ).WithFlow(flow)); err != nil {
			return err
		}
		h.Await(origin, func(ctx context.Context) (action.Action, error) {
			data, err := n.loader(ctx, params...)
			if err != nil {
				return action.Action{}, err
			}
			return action.NewDone(n.typ, data).WithFlow(flow), nil
		})
		return nil
	}
}

// Value returns a loader that resolves to v.
func Value(v state.Value) Loader {
	return func(context.Context, ...state.Value) (state.Value, error) {
		return v, nil
	}
}

// Echo returns a loader that resolves to its first param, or Null.
func Echo() Loader {
	return func(_ context.Context, params ...state.Value) (state.Value, error) {
		if len(params) == 0 {
			return state.Null{}, nil
		}
		return params[0], nil
	}
}

// Fail returns a loader that always fails with err.
func Fail(err error) Loader {
	return func(context.Context, ...state.Value) (state.Value, error) {
		return nil, err
	}
}
