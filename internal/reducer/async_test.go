package reducer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/state"
)

// recordingHost dispatches into a slice and runs awaited tasks on demand.
type recordingHost struct {
	dispatched []action.Action
	tasks      []Task
	origins    []action.Action
	flows      int
	failOn     string
}

func (h *recordingHost) Dispatch(a action.Action) error {
	if a.Name() == h.failOn {
		return errors.New("dispatch failed")
	}
	h.dispatched = append(h.dispatched, a)
	return nil
}

func (h *recordingHost) Await(origin action.Action, task Task) {
	h.origins = append(h.origins, origin)
	h.tasks = append(h.tasks, task)
}

func (h *recordingHost) NewFlow() string {
	h.flows++
	return "flow-generated"
}

func TestAsync_DefersAndLeavesStateUnchanged(t *testing.T) {
	tree := Combine(Async("ta", Value(state.String("C"))))
	s := state.NewObject(state.F("prop", state.String("A")))
	fx := &Effects{}

	next := tree.Reduce(s, action.New("ta"), fx)

	assert.True(t, state.Same(s, next))
	assert.Equal(t, 1, fx.Len())
}

func TestAsync_IgnoresOtherActionsAndPhases(t *testing.T) {
	tree := Combine(Async("ta", Value(state.Null{})))
	fx := &Effects{}

	tree.Reduce(state.Null{}, action.New("tb"), fx)
	tree.Reduce(state.Null{}, action.NewLoading("ta"), fx)
	tree.Reduce(state.Null{}, action.NewDone("ta", state.Null{}), fx)

	assert.Zero(t, fx.Len())
}

func TestAsync_ContinuationDispatchesLoadingThenAwaitsDone(t *testing.T) {
	tree := Combine(Async("b", Echo()))
	fx := &Effects{}
	tree.Reduce(state.Null{}, action.New("b", state.String("Heinz")), fx)

	host := &recordingHost{}
	pending := fx.Drain()
	require.Len(t, pending, 1)
	require.NoError(t, pending[0](host))

	require.Len(t, host.dispatched, 1)
	assert.Equal(t, "b.loading", host.dispatched[0].Name())
	require.Len(t, host.tasks, 1, "loader runs only through the host")

	done, err := host.tasks[0](context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b.done", done.Name())
	assert.Equal(t, state.String("Heinz"), done.Data)
	assert.Equal(t, "flow-generated", done.Flow)
	assert.Equal(t, "flow-generated", host.dispatched[0].Flow)
	assert.Equal(t, "flow-generated", host.origins[0].Flow)
}

func TestAsync_KeepsExistingFlow(t *testing.T) {
	fx := &Effects{}
	Combine(Async("b", Echo())).Reduce(state.Null{}, action.New("b").WithFlow("f-1"), fx)

	host := &recordingHost{}
	require.NoError(t, fx.Drain()[0](host))
	done, err := host.tasks[0](context.Background())
	require.NoError(t, err)

	assert.Zero(t, host.flows)
	assert.Equal(t, "f-1", host.dispatched[0].Flow)
	assert.Equal(t, "f-1", done.Flow)
	assert.Equal(t, state.Null{}, done.Data, "echo without params resolves to null")
}

func TestAsync_LoaderErrorIsReturnedByTask(t *testing.T) {
	boom := errors.New("boom")
	fx := &Effects{}
	Combine(Async("b", func(context.Context, ...state.Value) (state.Value, error) {
		return nil, boom
	})).Reduce(state.Null{}, action.New("b"), fx)

	host := &recordingHost{}
	require.NoError(t, fx.Drain()[0](host))
	_, err := host.tasks[0](context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestAsync_LoadingFailureSkipsLoader(t *testing.T) {
	fx := &Effects{}
	Combine(Async("b", Echo())).Reduce(state.Null{}, action.New("b"), fx)

	host := &recordingHost{failOn: "b.loading"}
	err := fx.Drain()[0](host)

	assert.Error(t, err)
	assert.Empty(t, host.tasks)
}

func TestAsync_ParamsAreCopied(t *testing.T) {
	params := []state.Value{state.String("Heinz")}
	fx := &Effects{}
	Combine(Async("b", Echo())).Reduce(state.Null{}, action.New("b", params...), fx)
	params[0] = state.String("changed")

	host := &recordingHost{}
	require.NoError(t, fx.Drain()[0](host))
	done, err := host.tasks[0](context.Background())
	require.NoError(t, err)

	assert.Equal(t, state.String("Heinz"), done.Data)
}

func TestEffects_DrainSwapsQueue(t *testing.T) {
	fx := &Effects{}
	noop := func(Host) error { return nil }
	fx.Defer(noop)
	fx.Defer(nil)

	first := fx.Drain()
	fx.Defer(noop)

	assert.Len(t, first, 1)
	assert.Equal(t, 1, fx.Len())

	var nilFx *Effects
	nilFx.Defer(noop)
	assert.Zero(t, nilFx.Len())
	assert.Nil(t, nilFx.Drain())
}

func TestValue(t *testing.T) {
	v, err := Value(state.Int(7))(context.Background(), state.String("ignored"))
	require.NoError(t, err)
	assert.Equal(t, state.Int(7), v)
}

func TestEcho(t *testing.T) {
	v, err := Echo()(context.Background(), state.String("a"), state.String("b"))
	require.NoError(t, err)
	assert.Equal(t, state.String("a"), v)

	v, err = Echo()(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.Null{}, v)
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	_, err := Fail(boom)(context.Background())
	assert.ErrorIs(t, err, boom)
}
