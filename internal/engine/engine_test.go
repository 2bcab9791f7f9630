package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/reducer"
	"github.com/roach88/treestore/internal/state"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newCounterStore returns a store whose state is an Int incremented by "inc".
func newCounterStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	tree := reducer.Combine(reducer.Handle("inc", func(s state.Value, _ action.Action) state.Value {
		n, _ := s.(state.Int)
		return n + 1
	}))
	s := New(tree, state.Int(0), append([]Option{WithLogger(quietLogger())}, opts...)...)
	t.Cleanup(func() { s.Close() })
	return s
}

// valueSub is comparable only through a pointer because of its func field.
type valueSub struct {
	fn func(prev, curr state.Value)
}

func (v valueSub) StateChanged(prev, curr state.Value) { v.fn(prev, curr) }

func TestStore_New_Defaults(t *testing.T) {
	s := New(nil, nil, WithLogger(quietLogger()))
	defer s.Close()

	assert.Equal(t, "default", s.Name())
	assert.Equal(t, state.Null{}, s.State())
	require.NoError(t, s.Dispatch(action.New("anything")))
	assert.Equal(t, state.Null{}, s.State())
}

func TestStore_Dispatch_NotifiesWithPrevAndCurr(t *testing.T) {
	s := newCounterStore(t)

	var calls [][2]state.Value
	sub := NewListener(func(prev, curr state.Value) {
		calls = append(calls, [2]state.Value{prev, curr})
	})
	require.NoError(t, s.Subscribe(sub))

	require.NoError(t, s.Dispatch(action.New("inc")))
	require.NoError(t, s.Dispatch(action.New("unrelated")))

	require.Len(t, calls, 2, "subscribers are notified even when nothing changed")
	assert.Equal(t, [2]state.Value{state.Int(0), state.Int(1)}, calls[0])
	assert.Equal(t, [2]state.Value{state.Int(1), state.Int(1)}, calls[1])
	assert.Equal(t, state.Int(1), s.State())
}

func TestStore_SubscribeTwice_NotifiesOnce(t *testing.T) {
	s := newCounterStore(t)

	count := 0
	sub := NewListener(func(_, _ state.Value) { count++ })
	require.NoError(t, s.Subscribe(sub))
	require.NoError(t, s.Subscribe(sub))

	require.NoError(t, s.Dispatch(action.New("inc")))

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, s.Subscribers())
}

func TestStore_Resubscribe_MovesToEnd(t *testing.T) {
	s := newCounterStore(t)

	var order []string
	a := NewListener(func(_, _ state.Value) { order = append(order, "a") })
	b := NewListener(func(_, _ state.Value) { order = append(order, "b") })
	require.NoError(t, s.Subscribe(a))
	require.NoError(t, s.Subscribe(b))
	require.NoError(t, s.Subscribe(a))

	require.NoError(t, s.Dispatch(action.New("inc")))

	assert.Equal(t, []string{"b", "a"}, order)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := newCounterStore(t)

	called := false
	sub := NewListener(func(_, _ state.Value) { called = true })
	require.NoError(t, s.Subscribe(sub))
	s.Unsubscribe(sub)
	s.Unsubscribe(sub) // no-op when absent
	s.Unsubscribe(valueSub{fn: func(_, _ state.Value) {}})

	require.NoError(t, s.Dispatch(action.New("inc")))

	assert.False(t, called)
	assert.Zero(t, s.Subscribers())
}

func TestStore_UnsubscribeDuringNotification(t *testing.T) {
	s := newCounterStore(t)

	var order []string
	var second *Listener
	first := NewListener(func(_, _ state.Value) {
		order = append(order, "first")
		s.Unsubscribe(second)
	})
	second = NewListener(func(_, _ state.Value) { order = append(order, "second") })
	require.NoError(t, s.Subscribe(first))
	require.NoError(t, s.Subscribe(second))

	require.NoError(t, s.Dispatch(action.New("inc")))
	require.NoError(t, s.Dispatch(action.New("inc")))

	assert.Equal(t, []string{"first", "second", "first"}, order,
		"the current notification round is not affected")
}

func TestStore_Subscribe_RejectsUncomparable(t *testing.T) {
	s := newCounterStore(t)

	err := s.Subscribe(valueSub{fn: func(_, _ state.Value) {}})
	assert.ErrorContains(t, err, "not comparable")

	err = s.Subscribe(nil)
	assert.Error(t, err)
	assert.Zero(t, s.Subscribers())
}

// holderSub has a comparable type, but its value is not when h holds a func.
type holderSub struct {
	h any
}

func (holderSub) StateChanged(_, _ state.Value) {}

func TestStore_Subscribe_RejectsUncomparableDynamicValue(t *testing.T) {
	s := newCounterStore(t)
	fn := func() {}

	assert.NotPanics(t, func() {
		assert.ErrorContains(t, s.Subscribe(holderSub{h: fn}), "not comparable")
		assert.ErrorContains(t, s.Subscribe(holderSub{h: fn}), "not comparable")
		s.Unsubscribe(holderSub{h: fn})
	})
	assert.Zero(t, s.Subscribers())

	require.NoError(t, s.Subscribe(holderSub{h: "todos"}))
	require.NoError(t, s.Subscribe(holderSub{h: "todos"}))
	assert.Equal(t, 1, s.Subscribers())
}

func TestStore_ContinuationsRunAfterAllSubscribersNotified(t *testing.T) {
	var events []string
	c := NewConfigurator().AddAsyncAction("ta", reducer.Value(state.Int(1)))
	s := create(t, c, state.Null{},
		WithInlineLoaders(),
		WithRecorder(func(r Record) { events = append(events, "commit:"+r.Action.Name()) }),
	)

	nested := false
	require.NoError(t, s.Subscribe(NewListener(func(_, _ state.Value) {
		events = append(events, "sub1")
		if !nested {
			nested = true
			require.NoError(t, s.Dispatch(action.New("noop")))
		}
	})))
	require.NoError(t, s.Subscribe(NewListener(func(_, _ state.Value) {
		events = append(events, "sub2")
	})))

	require.NoError(t, s.Dispatch(action.New("ta")))

	assert.Equal(t, []string{
		"commit:ta", "sub1",
		"commit:noop", "sub1", "sub2",
		"sub2",
		"commit:ta.loading", "sub1", "sub2",
	}, events)
}

func TestStore_ReentrantDispatch_Rejected(t *testing.T) {
	var s *Store
	var inner error
	tree := reducer.Combine(reducer.Handle("outer", func(st state.Value, _ action.Action) state.Value {
		inner = s.Dispatch(action.New("inner"))
		return state.String("outer")
	}))
	s = New(tree, state.Null{}, WithLogger(quietLogger()))
	defer s.Close()

	require.NoError(t, s.Dispatch(action.New("outer")))

	require.Error(t, inner)
	assert.ErrorIs(t, inner, ErrReentrantDispatch)
	assert.True(t, IsReentrantError(inner))
	assert.Equal(t, "REENTRANT_DISPATCH: dispatch inside reducer is not allowed", inner.Error())
	assert.Equal(t, state.String("outer"), s.State())

	// The store accepts the next normal dispatch.
	require.NoError(t, s.Dispatch(action.New("other")))
}

func TestStore_ReentrantDispatch_PanickingReducerLeavesStoreUsable(t *testing.T) {
	var s *Store
	tree := reducer.Combine(
		reducer.Handle("outer", func(st state.Value, _ action.Action) state.Value {
			if err := s.Dispatch(action.New("inner")); err != nil {
				panic(err)
			}
			return st
		}),
		reducer.Handle("inc", func(st state.Value, _ action.Action) state.Value {
			n, _ := st.(state.Int)
			return n + 1
		}),
	)
	s = New(tree, state.Int(0), WithLogger(quietLogger()))
	defer s.Close()

	notified := 0
	require.NoError(t, s.Subscribe(NewListener(func(_, _ state.Value) { notified++ })))

	err := s.Dispatch(action.New("outer"))
	require.Error(t, err)
	assert.True(t, IsReducerPanic(err))
	assert.ErrorIs(t, err, ErrReentrantDispatch)
	assert.Zero(t, notified, "failed dispatches do not notify")

	require.NoError(t, s.Dispatch(action.New("inc")))
	assert.Equal(t, state.Int(1), s.State())
	assert.Equal(t, 1, notified)
}

func TestStore_ReducerPanic_IsAllOrNothing(t *testing.T) {
	initial := state.MustFromGo(map[string]any{"a": 1, "b": 1})
	tree := reducer.Combine(reducer.Map{
		"a": reducer.Func(func(state.Value, action.Action) state.Value { return state.Int(2) }),
		"b": reducer.Func(func(state.Value, action.Action) state.Value { panic("boom") }),
	})

	var records []Record
	s := New(tree, initial, WithLogger(quietLogger()), WithRecorder(func(r Record) { records = append(records, r) }))
	defer s.Close()

	err := s.Dispatch(action.New("t").WithFlow("f-1"))

	require.Error(t, err)
	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeReducerPanic, re.Code)
	assert.Equal(t, "t", re.Action)
	assert.Equal(t, "f-1", re.Flow)
	assert.Equal(t, "boom", re.Details["panic"])
	assert.NotEmpty(t, re.Details["stack"])

	assert.True(t, state.Same(initial, s.State()), "partial map updates are never committed")
	assert.Empty(t, records)
}

func TestStore_Recorder_SequencesCommittedTransitions(t *testing.T) {
	var records []Record
	s := newCounterStore(t, WithRecorder(func(r Record) { records = append(records, r) }))

	require.NoError(t, s.Dispatch(action.New("inc")))
	require.Error(t, s.Dispatch(action.New("")))
	require.NoError(t, s.Dispatch(action.New("inc")))

	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].Seq)
	assert.Equal(t, int64(2), records[1].Seq)
	assert.Equal(t, state.Int(1), records[1].Prev)
	assert.Equal(t, state.Int(2), records[1].Next)
	assert.Equal(t, "inc", records[1].Action.Name())
}

func TestStore_SharedClock(t *testing.T) {
	clock := NewClock()
	var seqs []int64
	rec := WithRecorder(func(r Record) { seqs = append(seqs, r.Seq) })
	a := newCounterStore(t, WithClock(clock), rec)
	b := newCounterStore(t, WithClock(clock), rec)

	require.NoError(t, a.Dispatch(action.New("inc")))
	require.NoError(t, b.Dispatch(action.New("inc")))
	require.NoError(t, a.Dispatch(action.New("inc")))

	assert.Equal(t, []int64{1, 2, 3}, seqs)
}

func TestStore_Dispatch_InvalidAction(t *testing.T) {
	s := newCounterStore(t)

	err := s.Dispatch(action.New(""))

	var re *RuntimeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, ErrCodeInvalidAction, re.Code)
	assert.ErrorContains(t, err, "type is required")
}

func TestStore_Close(t *testing.T) {
	s := newCounterStore(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	assert.True(t, IsClosedError(s.Dispatch(action.New("inc"))))
	assert.True(t, IsClosedError(s.Post(action.New("inc"))))
	assert.NoError(t, s.Settle(context.Background()))
	assert.NoError(t, s.Run(context.Background()))
}

func TestStore_PostAndSettle_FIFO(t *testing.T) {
	var names []string
	s := newCounterStore(t, WithRecorder(func(r Record) { names = append(names, r.Action.Name()) }))

	require.NoError(t, s.Post(action.New("inc")))
	require.NoError(t, s.Post(action.New("other")))
	require.NoError(t, s.Post(action.New("inc")))
	assert.Equal(t, state.Int(0), s.State(), "posted actions wait for the owner")

	require.NoError(t, s.Settle(context.Background()))

	assert.Equal(t, []string{"inc", "other", "inc"}, names)
	assert.Equal(t, state.Int(2), s.State())
}

func TestStore_Settle_CollectsErrors(t *testing.T) {
	s := newCounterStore(t)

	require.NoError(t, s.Post(action.New("")))
	require.NoError(t, s.Post(action.New("inc")))

	err := s.Settle(context.Background())

	assert.ErrorContains(t, err, "INVALID_ACTION")
	assert.Equal(t, state.Int(1), s.State(), "later messages still apply")
}

func TestStore_Run_AppliesPostsFromOtherGoroutines(t *testing.T) {
	seen := make(chan state.Value, 10)
	s := newCounterStore(t)
	require.NoError(t, s.Subscribe(NewListener(func(_, curr state.Value) { seen <- curr })))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for range 3 {
		go func() { _ = s.Post(action.New("inc")) }()
	}
	for range 3 {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatal("posted action was not applied")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.Equal(t, state.Int(3), s.State())
}

func TestStore_Run_StopsWhenClosed(t *testing.T) {
	s := newCounterStore(t)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after close")
	}
}

func TestStore_NewFlow(t *testing.T) {
	s := newCounterStore(t, WithFlowGenerator(NewFixedGenerator("flow-1", "flow-2")))

	assert.Equal(t, "flow-1", s.NewFlow())
	assert.Equal(t, "flow-2", s.NewFlow())
}

func TestWatch_FiresOnlyWhenSelectionChanges(t *testing.T) {
	tree := reducer.Combine(
		reducer.ScopePath(state.MustParsePath("a"), reducer.Handle("set-a", func(_ state.Value, a action.Action) state.Value { return a.Data })),
		reducer.ScopePath(state.MustParsePath("b"), reducer.Handle("set-b", func(_ state.Value, a action.Action) state.Value { return a.Data })),
	)
	s := New(tree, state.MustFromGo(map[string]any{"a": 1, "b": 1}), WithLogger(quietLogger()))
	defer s.Close()

	var changes [][2]state.Value
	w := Watch(state.Fields("a"), func(prev, curr state.Value) {
		changes = append(changes, [2]state.Value{prev, curr})
	})
	require.NoError(t, s.Subscribe(w))

	require.NoError(t, s.Dispatch(action.New("set-b").WithData(state.Int(2))))
	require.NoError(t, s.Dispatch(action.New("noop")))
	require.NoError(t, s.Dispatch(action.New("set-a").WithData(state.Int(5))))

	require.Len(t, changes, 1)
	assert.Equal(t, [2]state.Value{state.Int(1), state.Int(5)}, changes[0])
}

func TestStore_MaxDepth_StopsRunawaySubscribers(t *testing.T) {
	s := newCounterStore(t, WithMaxDepth(5))

	var depthErr error
	var sub *Listener
	sub = NewListener(func(_, _ state.Value) {
		if depthErr != nil {
			return
		}
		if err := s.Dispatch(action.New("inc")); err != nil {
			depthErr = err
		}
	})
	require.NoError(t, s.Subscribe(sub))

	require.NoError(t, s.Dispatch(action.New("inc")))

	require.Error(t, depthErr)
	assert.True(t, IsDepthExceededError(depthErr))
	assert.Equal(t, state.Int(5), s.State())

	// Depth is released on unwind.
	s.Unsubscribe(sub)
	require.NoError(t, s.Dispatch(action.New("inc")))
	assert.Equal(t, state.Int(6), s.State())
}
