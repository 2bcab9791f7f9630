// Package compiler turns declarative CUE store definitions into configured
// stores.
//
// A definition lives under the top-level "store" struct:
//
//	store: todos: {
//		initial: {items: [], filter: "all", user: null}
//		cases: [
//			{on: "add", at: "items", op: "append", from: "params[0]"},
//			{on: "filter", at: "filter", op: "set", from: "params[0]"},
//			{on: "login.done", at: "user", op: "set", from: "data"},
//		]
//		async: login: {loader: "echo"}
//	}
//
// CompileStore decodes one definition, Validate checks it and Build wires it
// into an engine.Configurator.
package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/state"
)

// CompileStore parses a CUE value into a StoreSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the store struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`store: counter: { ... }`)
//	spec, err := CompileStore(v.LookupPath(cue.ParsePath("store.counter")))
//
// CompileStore checks structure only. Run Validate on the result before
// building it.
func CompileStore(v cue.Value) (*ir.StoreSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.StoreSpec{Initial: state.Null{}}

	// Store name from struct label; quoted labels are allowed
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	// Parse initial (optional, defaults to null)
	initialVal := v.LookupPath(cue.ParsePath("initial"))
	if initialVal.Exists() {
		initial, err := decodeValue(initialVal, "initial")
		if err != nil {
			return nil, err
		}
		spec.Initial = initial
	}

	var err error
	spec.Cases, err = parseCases(v)
	if err != nil {
		return nil, err
	}

	spec.Async, err = parseAsync(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// parseCases extracts the ordered case list.
func parseCases(v cue.Value) ([]ir.CaseSpec, error) {
	casesVal := v.LookupPath(cue.ParsePath("cases"))
	if !casesVal.Exists() {
		return nil, nil
	}

	iter, err := casesVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "cases",
			Message: "cases must be a list",
			Pos:     casesVal.Pos(),
		}
	}

	var cases []ir.CaseSpec
	for i := 0; iter.Next(); i++ {
		c, err := parseCase(iter.Value(), fmt.Sprintf("cases[%d]", i))
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// parseCase decodes {on, at, op, value, from}.
func parseCase(v cue.Value, field string) (ir.CaseSpec, error) {
	var c ir.CaseSpec

	on, err := requiredString(v, "on", field)
	if err != nil {
		return c, err
	}
	c.On = on

	at, err := optionalString(v, "at", field)
	if err != nil {
		return c, err
	}
	c.At = at

	op, err := requiredString(v, "op", field)
	if err != nil {
		return c, err
	}
	c.Op = ir.Op(op)

	valueVal := v.LookupPath(cue.ParsePath("value"))
	if valueVal.Exists() {
		value, err := decodeValue(valueVal, field+".value")
		if err != nil {
			return c, err
		}
		c.Value = value
	}

	from, err := optionalString(v, "from", field)
	if err != nil {
		return c, err
	}
	c.From = from

	return c, nil
}

// parseAsync extracts async loaders. The struct label is the action type.
func parseAsync(v cue.Value) ([]ir.AsyncSpec, error) {
	asyncVal := v.LookupPath(cue.ParsePath("async"))
	if !asyncVal.Exists() {
		return nil, nil
	}

	iter, err := asyncVal.Fields()
	if err != nil {
		return nil, &CompileError{
			Field:   "async",
			Message: "async must be a struct keyed by action type",
			Pos:     asyncVal.Pos(),
		}
	}

	var specs []ir.AsyncSpec
	for iter.Next() {
		typ := iter.Label()
		field := "async." + typ
		loaderVal := iter.Value()

		loader, err := requiredString(loaderVal, "loader", field)
		if err != nil {
			return nil, err
		}
		spec := ir.AsyncSpec{Type: typ, Loader: ir.LoaderKind(loader)}

		valueVal := loaderVal.LookupPath(cue.ParsePath("value"))
		if valueVal.Exists() {
			value, err := decodeValue(valueVal, field+".value")
			if err != nil {
				return nil, err
			}
			spec.Value = value
		}

		spec.Message, err = optionalString(loaderVal, "message", field)
		if err != nil {
			return nil, err
		}

		specs = append(specs, spec)
	}

	// CUE iterates fields in declaration order. Sort for a stable identity.
	slices.SortFunc(specs, func(a, b ir.AsyncSpec) int {
		return strings.Compare(a.Type, b.Type)
	})
	return specs, nil
}

func requiredString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, name, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " must be a string",
			Pos:     fv.Pos(),
		}
	}
	return s, nil
}

// decodeValue converts a concrete CUE value into a state tree.
func decodeValue(v cue.Value, field string) (state.Value, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		msg := err.Error()
		if errs := errors.Errors(err); len(errs) > 0 {
			msg = errs[0].Error()
		}
		return nil, &CompileError{
			Field:   field,
			Message: "value must be concrete: " + msg,
			Pos:     v.Pos(),
		}
	}
	var raw any
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	val, err := state.FromGo(raw)
	if err != nil {
		return nil, &CompileError{
			Field:   field,
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return val, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
