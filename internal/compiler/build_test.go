package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/state"
	"github.com/roach88/treestore/internal/testutil"
)

func createStore(t *testing.T, spec *ir.StoreSpec, opts ...engine.Option) *engine.Store {
	t.Helper()
	opts = append([]engine.Option{
		engine.WithLogger(testutil.QuietLogger()),
		engine.WithInlineLoaders(),
	}, opts...)
	s, err := Create(spec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func lookupAt(t *testing.T, s *engine.Store, path string) state.Value {
	t.Helper()
	return state.MustParsePath(path).Lookup(s.State())
}

func TestBuildTodos(t *testing.T) {
	var trace []string
	s := createStore(t, validSpec(), engine.WithRecorder(func(r engine.Record) {
		trace = append(trace, r.Action.Name())
	}))
	assert.Equal(t, "todos", s.Name())

	require.NoError(t, s.Dispatch(action.New("add", state.String("milk"))))
	require.NoError(t, s.Dispatch(action.New("add", state.String("eggs"))))
	assert.Equal(t, state.NewArray(state.String("milk"), state.String("eggs")), lookupAt(t, s, "items"))

	require.NoError(t, s.Dispatch(action.New("login", state.MustFromGo(map[string]any{"name": "Heinz"}))))
	require.NoError(t, s.Settle(context.Background()))
	assert.Equal(t, state.String("Heinz"), lookupAt(t, s, "user.name"))

	require.NoError(t, s.Dispatch(action.New("logout")))
	obj := s.State().(*state.Object)
	assert.False(t, obj.Has("user"), "unset removes the field")

	assert.Equal(t, []string{"add", "add", "login", "login.loading", "login.done", "logout"}, trace)
}

func TestBuildOps(t *testing.T) {
	spec := &ir.StoreSpec{
		Name: "ops",
		Initial: state.MustFromGo(map[string]any{
			"count":    1,
			"ratio":    0.5,
			"open":     false,
			"settings": map[string]any{"theme": "light", "lang": "en"},
		}),
		Cases: []ir.CaseSpec{
			{On: "inc", At: "count", Op: ir.OpAdd, Value: state.Int(2)},
			{On: "inc", At: "ratio", Op: ir.OpAdd, Value: state.Int(1)},
			{On: "toggle", At: "open", Op: ir.OpToggle},
			{On: "prefs", At: "settings", Op: ir.OpMerge, From: "params[0]"},
			{On: "tally", At: "missing.total", Op: ir.OpAdd, From: "params[0].n"},
			{On: "wipe", Op: ir.OpUnset},
		},
	}
	s := createStore(t, spec)

	require.NoError(t, s.Dispatch(action.New("inc")))
	assert.Equal(t, state.Int(3), lookupAt(t, s, "count"))
	assert.Equal(t, state.Float(1.5), lookupAt(t, s, "ratio"))

	require.NoError(t, s.Dispatch(action.New("toggle")))
	assert.Equal(t, state.Bool(true), lookupAt(t, s, "open"))

	require.NoError(t, s.Dispatch(action.New("prefs", state.MustFromGo(map[string]any{"theme": "dark"}))))
	assert.Equal(t, state.String("dark"), lookupAt(t, s, "settings.theme"))
	assert.Equal(t, state.String("en"), lookupAt(t, s, "settings.lang"))

	require.NoError(t, s.Dispatch(action.New("tally", state.MustFromGo(map[string]any{"n": 4}))))
	assert.Equal(t, state.Int(4), lookupAt(t, s, "missing.total"), "missing nodes are created, Null adds as 0")

	require.NoError(t, s.Dispatch(action.New("wipe")))
	assert.Equal(t, state.Null{}, s.State())
}

func TestBuildKeepsUntouchedBranches(t *testing.T) {
	spec := &ir.StoreSpec{
		Name:    "refs",
		Initial: state.MustFromGo(map[string]any{"a": map[string]any{"x": 1}, "b": map[string]any{"y": 2}}),
		Cases:   []ir.CaseSpec{{On: "bump", At: "a.x", Op: ir.OpAdd, Value: state.Int(1)}},
	}
	s := createStore(t, spec)
	before := s.State()

	require.NoError(t, s.Dispatch(action.New("bump")))

	assert.False(t, state.Same(before, s.State()))
	assert.False(t, state.Same(lookupAt(t, s, "a"), state.MustParsePath("a").Lookup(before)))
	assert.True(t, state.Same(lookupAt(t, s, "b"), state.MustParsePath("b").Lookup(before)))
}

func TestBuildOpMismatchIsReducerPanic(t *testing.T) {
	spec := &ir.StoreSpec{
		Name:    "bad",
		Initial: state.MustFromGo(map[string]any{"name": "x", "n": 0}),
		Cases: []ir.CaseSpec{
			{On: "go", At: "n", Op: ir.OpAdd, Value: state.Int(1)},
			{On: "go", At: "name", Op: ir.OpAdd, Value: state.Int(1)},
		},
	}
	s := createStore(t, spec)
	before := s.State()

	err := s.Dispatch(action.New("go"))
	require.Error(t, err)
	assert.True(t, engine.IsReducerPanic(err))

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, ir.OpAdd, opErr.Op)
	assert.Equal(t, "string", opErr.Current)
	assert.True(t, state.Same(before, s.State()), "failed dispatch leaves state untouched")
}

func TestBuildFailLoader(t *testing.T) {
	spec := &ir.StoreSpec{
		Name:  "fails",
		Async: []ir.AsyncSpec{{Type: "load", Loader: ir.LoaderFail, Message: "backend down"}},
		Cases: []ir.CaseSpec{{On: "load.loading", At: "loading", Op: ir.OpSet, Value: state.Bool(true)}},
	}
	s := createStore(t, spec)

	require.NoError(t, s.Dispatch(action.New("load")))
	err := s.Settle(context.Background())

	assert.True(t, engine.IsLoaderError(err))
	assert.ErrorContains(t, err, "backend down")
	assert.Equal(t, state.Bool(true), lookupAt(t, s, "loading"))
}

func TestBuildValueLoader(t *testing.T) {
	spec := &ir.StoreSpec{
		Name:  "values",
		Async: []ir.AsyncSpec{{Type: "load", Loader: ir.LoaderValue, Value: state.Int(42)}},
		Cases: []ir.CaseSpec{{On: "load.done", At: "answer", Op: ir.OpSet, From: "data"}},
	}
	s := createStore(t, spec)

	require.NoError(t, s.Dispatch(action.New("load")))
	require.NoError(t, s.Settle(context.Background()))
	assert.Equal(t, state.Int(42), lookupAt(t, s, "answer"))
}

func TestBuildInvalidSpec(t *testing.T) {
	spec := &ir.StoreSpec{Name: "bad", Cases: []ir.CaseSpec{{On: "a", Op: "increment"}}}

	_, err := Build(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store "bad"`)
	assert.Contains(t, err.Error(), ErrInvalidOp)

	var verr ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestGroupCases(t *testing.T) {
	cases := []ir.CaseSpec{
		{On: "a", At: "deep.prop", Op: ir.OpSet, Value: state.Int(1)},
		{On: "b", At: "deep.prop", Op: ir.OpSet, Value: state.Int(2)},
		{On: "c", At: "deep.other", Op: ir.OpUnset},
		{On: "d", Op: ir.OpSet, Value: state.Int(3)},
		{On: "e", At: "deep.prop", Op: ir.OpSet, Value: state.Int(4)},
	}

	groups := groupCases(cases)
	require.Len(t, groups, 4)
	assert.Equal(t, "deep.prop", groups[0].scope.String())
	assert.Len(t, groups[0].handlers, 2)
	assert.Equal(t, "deep", groups[1].scope.String(), "unset scopes to the parent")
	assert.Empty(t, groups[2].scope)
	assert.Equal(t, "e", groups[3].handlers[0].on)
}

func TestSourceRead(t *testing.T) {
	a := action.NewDone("load", state.MustFromGo(map[string]any{"user": map[string]any{"id": 7}}))

	src, err := parseSource("data.user.id")
	require.NoError(t, err)
	assert.Equal(t, state.Int(7), src.read(a))

	src, err = parseSource("params[3]")
	require.NoError(t, err)
	assert.Equal(t, state.Null{}, src.read(a), "absent params read as Null")

	_, err = parseSource("params")
	assert.Error(t, err)
}

func TestApplyPanics(t *testing.T) {
	assert.PanicsWithError(t, "op append: cannot apply int to string", func() {
		apply(ir.OpAppend, state.String("x"), state.Int(1))
	})
	assert.PanicsWithError(t, "op toggle: cannot apply to int", func() {
		apply(ir.OpToggle, state.Int(1), nil)
	})
	assert.PanicsWithError(t, "op merge: cannot apply int to object", func() {
		apply(ir.OpMerge, state.NewObject(), state.Int(1))
	})
}
