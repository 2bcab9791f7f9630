package compiler

import (
	"fmt"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/state"
)

// OpError reports a case op applied to a value of the wrong kind.
// Case reducers panic with it; the store recovers the panic into a
// REDUCER_PANIC error and leaves state untouched.
type OpError struct {
	Op      ir.Op
	Current string // state.Kind of the targeted value
	Operand string // state.Kind of the operand, empty when none
}

func (e *OpError) Error() string {
	if e.Operand == "" {
		return fmt.Sprintf("op %s: cannot apply to %s", e.Op, e.Current)
	}
	return fmt.Sprintf("op %s: cannot apply %s to %s", e.Op, e.Operand, e.Current)
}

// apply runs op on the current sub-tree. Unset is handled by the caller.
func apply(op ir.Op, cur, operand state.Value) state.Value {
	switch op {
	case ir.OpSet:
		return operand

	case ir.OpAdd:
		return add(cur, operand)

	case ir.OpAppend:
		switch arr := cur.(type) {
		case state.Null:
			return state.NewArray(operand)
		case *state.Array:
			return arr.Append(operand)
		}

	case ir.OpMerge:
		patch, ok := operand.(*state.Object)
		if !ok {
			break
		}
		switch obj := cur.(type) {
		case state.Null:
			return patch
		case *state.Object:
			return obj.Merge(patch)
		}

	case ir.OpToggle:
		switch b := cur.(type) {
		case state.Null:
			return state.Bool(true)
		case state.Bool:
			return !b
		}
		panic(&OpError{Op: op, Current: state.Kind(cur)})
	}

	panic(&OpError{Op: op, Current: state.Kind(cur), Operand: state.Kind(operand)})
}

// add sums numbers. Int+Int stays Int; any Float makes the result Float.
func add(cur, operand state.Value) state.Value {
	if _, ok := cur.(state.Null); ok {
		cur = state.Int(0)
	}
	switch x := cur.(type) {
	case state.Int:
		switch y := operand.(type) {
		case state.Int:
			return x + y
		case state.Float:
			return state.Float(x) + y
		}
	case state.Float:
		switch y := operand.(type) {
		case state.Int:
			return x + state.Float(y)
		case state.Float:
			return x + y
		}
	}
	panic(&OpError{Op: ir.OpAdd, Current: state.Kind(cur), Operand: state.Kind(operand)})
}

// source reads a case operand from the dispatched action.
//
//	data            -> a.Data
//	data.user.name  -> a.Data at user.name
//	params[0]       -> a.Param(0)
//	params[1].id    -> a.Param(1) at id
type source struct {
	param int // -1 for data
	rest  state.Path
}

func parseSource(s string) (source, error) {
	path, err := state.ParsePath(s)
	if err != nil {
		return source{}, err
	}
	if len(path) == 0 {
		return source{}, fmt.Errorf("empty source")
	}

	switch path[0].Name() {
	case "data":
		return source{param: -1, rest: path[1:]}, nil
	case "params":
		if len(path) < 2 {
			return source{}, fmt.Errorf("source %q needs an index, e.g. params[0]", s)
		}
		i, ok := path[1].Index()
		if !ok {
			return source{}, fmt.Errorf("source %q needs an index, e.g. params[0]", s)
		}
		return source{param: i, rest: path[2:]}, nil
	default:
		return source{}, fmt.Errorf("source %q must start with data or params[i]", s)
	}
}

func (src source) read(a action.Action) state.Value {
	var base state.Value
	if src.param < 0 {
		base = a.Data
	} else {
		base = a.Param(src.param)
	}
	return src.rest.Lookup(base)
}
