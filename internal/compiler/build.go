package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/reducer"
	"github.com/roach88/treestore/internal/state"
)

// Build validates spec and wires it into a Configurator.
//
// Consecutive cases that target the same sub-tree share one nested
// configurator, so
//
//	{on: "a", at: "deep.prop", ...}
//	{on: "b", at: "deep.prop", ...}
//	{on: "c", at: "", ...}
//
// registers Nested(deep.prop){a, b} followed by a root case c. Registration
// order follows case order, and cases for the same action run in that order.
// Unset cases are scoped to the parent of At and delete the last key.
func Build(spec *ir.StoreSpec) (*engine.Configurator, error) {
	if verrs := Validate(spec); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("store %q: %w", spec.Name, errors.Join(errs...))
	}

	c := engine.NewConfigurator()
	for _, g := range groupCases(spec.Cases) {
		if len(g.scope) == 0 {
			for _, h := range g.handlers {
				c.AddCase(h.on, h.fn)
			}
			continue
		}
		c.Nested(state.PathSelector(g.scope), func(n *engine.Configurator) {
			for _, h := range g.handlers {
				n.AddCase(h.on, h.fn)
			}
		})
	}

	for _, a := range spec.Async {
		c.AddAsyncAction(a.Type, loaderFor(a))
	}

	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("store %q: %w", spec.Name, err)
	}
	return c, nil
}

// Create builds spec and creates its store with spec.Initial.
func Create(spec *ir.StoreSpec, opts ...engine.Option) (*engine.Store, error) {
	c, err := Build(spec)
	if err != nil {
		return nil, err
	}
	opts = append([]engine.Option{engine.WithName(spec.Name)}, opts...)
	return c.Create(spec.Initial, opts...)
}

type caseGroup struct {
	scope    state.Path
	handlers []caseHandler
}

type caseHandler struct {
	on string
	fn reducer.Func
}

// groupCases merges runs of cases with the same effective scope.
// spec must be valid.
func groupCases(cases []ir.CaseSpec) []caseGroup {
	var groups []caseGroup
	for _, cs := range cases {
		at := state.MustParsePath(cs.At)
		scope := at
		if cs.Op == ir.OpUnset && len(at) > 0 {
			scope = at[:len(at)-1]
		}

		h := caseHandler{on: cs.On, fn: newCaseFunc(cs, at)}
		if n := len(groups); n > 0 && groups[n-1].scope.Equal(scope) {
			groups[n-1].handlers = append(groups[n-1].handlers, h)
			continue
		}
		groups = append(groups, caseGroup{scope: scope, handlers: []caseHandler{h}})
	}
	return groups
}

// newCaseFunc returns the reducer for one case. It sees the sub-tree at its
// group's scope.
func newCaseFunc(cs ir.CaseSpec, at state.Path) reducer.Func {
	if cs.Op == ir.OpUnset {
		if len(at) == 0 {
			return func(state.Value, action.Action) state.Value { return state.Null{} }
		}
		last := state.Path{at[len(at)-1]}
		return func(s state.Value, _ action.Action) state.Value {
			return state.DeleteIn(s, last)
		}
	}

	var src source
	if cs.From != "" {
		src, _ = parseSource(cs.From)
	}
	return func(s state.Value, a action.Action) state.Value {
		var operand state.Value
		switch {
		case cs.Value != nil:
			operand = cs.Value
		case cs.From != "":
			operand = src.read(a)
		}
		return apply(cs.Op, s, operand)
	}
}

// loaderFor maps a built-in loader kind to a reducer.Loader.
func loaderFor(a ir.AsyncSpec) reducer.Loader {
	switch a.Loader {
	case ir.LoaderValue:
		return reducer.Value(a.Value)
	case ir.LoaderFail:
		return reducer.Fail(errors.New(a.Message))
	default:
		return reducer.Echo()
	}
}
