package engine

import (
	"fmt"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/reducer"
	"github.com/roach88/treestore/internal/state"
)

// Configurator accumulates reducer registrations and materializes a Store.
//
// Methods chain. The first registration error is kept and returned by Create
// (and Err); later calls after an error are still recorded but Create fails.
// A configurator is consumed by Create.
//
//	store, err := engine.NewConfigurator().
//		AddCase("ta", setB).
//		Nested(state.Fields("deep", "nested"), func(c *engine.Configurator) {
//			c.AddCase("ta.done", setProp)
//		}).
//		AddAsyncAction("ta", loader).
//		Create(initial)
type Configurator struct {
	nodes    []reducer.Node
	root     *Configurator // self for the top-level configurator
	nested   bool
	consumed bool
	err      error
}

// NewConfigurator creates an empty top-level configurator.
func NewConfigurator() *Configurator {
	c := &Configurator{}
	c.root = c
	return c
}

// Err returns the first registration error, if any.
func (c *Configurator) Err() error {
	return c.root.err
}

func (c *Configurator) fail(err error) *Configurator {
	if c.root.err == nil {
		c.root.err = err
	}
	return c
}

func (c *Configurator) add(node reducer.Node) *Configurator {
	if c.consumed {
		return c.fail(&RuntimeError{
			Code:    ErrCodeConfiguratorConsumed,
			Message: "configurator already consumed",
		})
	}
	c.nodes = append(c.nodes, node)
	return c
}

// AddReducer appends a node applied to this configurator's (sub)state.
func (c *Configurator) AddReducer(node reducer.Node) *Configurator {
	if node == nil {
		return c.fail(newRegistrationError("reducer is nil"))
	}
	return c.add(node)
}

// AddScopedReducer registers nodes against the sub-state sel reads. Only the
// path sel reads is rewritten, and only when the nodes return a different
// value.
func (c *Configurator) AddScopedReducer(sel state.Selector, nodes ...reducer.Node) *Configurator {
	if sel == nil {
		return c.fail(newRegistrationError("scoped reducer has no selector"))
	}
	return c.add(reducer.Scope(sel, nodes...))
}

// AddCase registers handler for actions whose rendered name equals name,
// e.g. "user.load" or "user.load.done".
func (c *Configurator) AddCase(name string, handler reducer.Func) *Configurator {
	if handler == nil {
		return c.fail(newRegistrationError("case %q has no handler", name))
	}
	if errs := action.Parse(name).Validate(); len(errs) > 0 {
		return c.fail(newRegistrationError("case %q: %s", name, errs[0]))
	}
	return c.add(reducer.Handle(name, handler))
}

// AddRootCase is AddCase for a handler that also sees the root state.
func (c *Configurator) AddRootCase(name string, handler reducer.RootFunc) *Configurator {
	if handler == nil {
		return c.fail(newRegistrationError("case %q has no handler", name))
	}
	if errs := action.Parse(name).Validate(); len(errs) > 0 {
		return c.fail(newRegistrationError("case %q: %s", name, errs[0]))
	}
	return c.add(reducer.Case(name, handler))
}

// Nested opens a child configurator scoped to the sub-state sel reads, lets
// fn populate it, and registers everything it accumulated as one scoped
// reducer. Nesting composes to any depth.
func (c *Configurator) Nested(sel state.Selector, fn func(*Configurator)) *Configurator {
	if sel == nil {
		return c.fail(newRegistrationError("nested configurator has no selector"))
	}
	if fn == nil {
		return c.fail(newRegistrationError("nested configurator has no configure function"))
	}

	child := &Configurator{root: c.root, nested: true}
	fn(child)
	child.consumed = true

	return c.add(reducer.Scope(sel, child.nodes...))
}

// AddAsyncAction registers the three-phase protocol for typ. A Base action
// of that type is never reduced by the loader itself: it defers a
// continuation that dispatches typ.loading, runs loader with the action's
// params and later dispatches typ.done with the result. Register cases for
// the phases to change state.
func (c *Configurator) AddAsyncAction(typ string, loader reducer.Loader) *Configurator {
	if err := action.ValidateType(typ); err != nil {
		return c.fail(newRegistrationError("async action: %s", err))
	}
	if loader == nil {
		return c.fail(newRegistrationError("async action %q has no loader", typ))
	}
	return c.add(reducer.Async(typ, loader))
}

// Tree combines the registered nodes without consuming the configurator.
func (c *Configurator) Tree() (*reducer.Tree, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}
	return reducer.Combine(c.nodes...), nil
}

// Create combines every registered node into one reducer and returns a live
// store holding initial. The configurator is consumed.
func (c *Configurator) Create(initial state.Value, opts ...Option) (*Store, error) {
	if c.nested {
		return nil, &RuntimeError{
			Code:    ErrCodeNestedCreate,
			Message: "create called on a nested configurator",
		}
	}
	if c.consumed {
		return nil, &RuntimeError{
			Code:    ErrCodeConfiguratorConsumed,
			Message: "configurator already consumed",
		}
	}
	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	c.consumed = true
	return New(reducer.Combine(c.nodes...), initial, opts...), nil
}
