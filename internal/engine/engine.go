package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/reducer"
	"github.com/roach88/treestore/internal/state"
)

// Store owns one state tree and routes every dispatch through one reducer.
//
// Thread-safety model:
//   - Post(), Close(), Inflight(), NewFlow(): safe from any goroutine
//   - everything else: owner goroutine only, the one that calls Run or Settle
//
// INVARIANTS:
//   - state only changes inside Dispatch, and only to a fully reduced result
//   - subscribers are notified after the state is committed and before any
//     continuation deferred by that dispatch runs
//   - a loader's result is dispatched from the inbox, never from the loader
type Store struct {
	name        string
	tree        *reducer.Tree
	state       state.Value
	subscribers []Subscriber // copy-on-write
	dispatching bool
	depth       depthQuota
	pending     []reducer.Continuation

	inbox    *inbox
	inflight atomic.Int64
	closed   atomic.Bool
	loadCtx  context.Context
	cancel   context.CancelFunc

	clock    Sequencer
	flowGen  FlowTokenGenerator
	executor Executor
	logger   *slog.Logger
	metrics  *Metrics
	recorder func(Record)
}

// New creates a store over tree with the given initial state.
// Most callers build stores with a Configurator instead.
func New(tree *reducer.Tree, initial state.Value, opts ...Option) *Store {
	if initial == nil {
		initial = state.Null{}
	}
	if tree == nil {
		tree = reducer.Combine()
	}

	s := &Store{
		name:     "default",
		tree:     tree,
		state:    initial,
		inbox:    newInbox(),
		clock:    NewClock(),
		flowGen:  UUIDv7Generator{},
		executor: GoExecutor{},
		logger:   slog.Default(),
		depth:    depthQuota{max: DefaultMaxDepth},
	}
	s.loadCtx, s.cancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}

	s.logger.Info("store created", "store", s.name)
	return s
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// State returns the current state. It never has side effects.
func (s *Store) State() state.Value {
	return s.state
}

// Dispatch reduces a against the current state and commits the result.
//
// Steps:
//  1. Reject re-entrant calls with ErrReentrantDispatch.
//  2. Reduce. A reducer panic is recovered into a REDUCER_PANIC error; the
//     state, the subscribers and the deferred continuations are left alone.
//  3. Commit the new state, then notify every subscriber in subscription order
//     with (prev, curr), changed or not.
//  4. Queue this dispatch's continuations, after every subscriber has been
//     notified, and run everything queued. The pending list is swapped out
//     first, so continuations deferred while draining wait for the next drain.
//
// Errors returned by continuations are joined and returned; the dispatch
// itself has already been committed.
func (s *Store) Dispatch(a action.Action) error {
	if s.dispatching {
		s.logger.Error("re-entrant dispatch rejected",
			"store", s.name,
			"action", a.Name(),
		)
		return ErrReentrantDispatch
	}
	if s.closed.Load() {
		return NewClosedError(a)
	}
	if errs := a.Validate(); len(errs) > 0 {
		return newInvalidActionError(a, errs)
	}
	if err := s.depth.enter(a); err != nil {
		s.logger.Error("nested dispatch rejected",
			"store", s.name,
			"action", a.Name(),
			"error", err,
		)
		return err
	}
	defer s.depth.leave()

	prev := s.state
	start := time.Now()
	next, fx, err := s.reduce(prev, a)
	elapsed := time.Since(start)
	s.metrics.observeDispatch(s.name, elapsed, err)
	if err != nil {
		logReducerPanic(s.logger, s.name, err)
		return err
	}

	s.state = next
	seq := s.clock.Next()

	s.logger.Debug("dispatched",
		"store", s.name,
		"seq", seq,
		"action", a.Name(),
		"flow", a.Flow,
		"changed", !state.Same(prev, next),
		"duration", elapsed,
	)

	if s.recorder != nil {
		s.recorder(Record{Seq: seq, Action: a, Prev: prev, Next: next})
	}

	for _, sub := range s.subscribers {
		sub.StateChanged(prev, next)
	}

	// Queued only after every subscriber has seen this transition.
	s.pending = append(s.pending, fx...)
	return s.drain()
}

// reduce runs the reducer with the dispatching flag held. The flag is
// released on every exit path.
func (s *Store) reduce(prev state.Value, a action.Action) (next state.Value, fx []reducer.Continuation, err error) {
	s.dispatching = true
	defer func() {
		s.dispatching = false
		if r := recover(); r != nil {
			next, fx = nil, nil
			err = NewReducerPanicError(a, r, debug.Stack())
		}
	}()

	var effects reducer.Effects
	next = s.tree.Reduce(prev, a, &effects)
	return next, effects.Drain(), nil
}

func (s *Store) drain() error {
	if len(s.pending) == 0 {
		return nil
	}
	pending := s.pending
	s.pending = nil

	var errs []error
	h := host{s: s}
	for _, c := range pending {
		if err := runContinuation(c, h); err != nil {
			s.logger.Error("continuation failed",
				"store", s.name,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runContinuation(c reducer.Continuation, h reducer.Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("continuation panicked: %v", r)
		}
	}()
	return c(h)
}

// Subscribe registers sub. An already registered subscriber is moved to the
// end of the notification order instead of being added twice.
func (s *Store) Subscribe(sub Subscriber) error {
	if !isComparable(sub) {
		return newRegistrationError("subscriber %T is not comparable", sub)
	}

	next := make([]Subscriber, 0, len(s.subscribers)+1)
	for _, existing := range s.subscribers {
		if existing != sub {
			next = append(next, existing)
		}
	}
	s.subscribers = append(next, sub)
	s.metrics.setSubscribers(s.name, len(s.subscribers))
	return nil
}

// Unsubscribe removes sub. It is a no-op if sub is not registered.
func (s *Store) Unsubscribe(sub Subscriber) {
	if !isComparable(sub) {
		return
	}

	next := make([]Subscriber, 0, len(s.subscribers))
	for _, existing := range s.subscribers {
		if existing != sub {
			next = append(next, existing)
		}
	}
	s.subscribers = next
	s.metrics.setSubscribers(s.name, len(s.subscribers))
}

// Subscribers returns the number of registered subscribers.
func (s *Store) Subscribers() int {
	return len(s.subscribers)
}

// NewFlow generates a new flow token.
// Thread-safe: may be called from any goroutine.
func (s *Store) NewFlow() string {
	return s.flowGen.Generate()
}

// Post queues a for dispatch by the owner goroutine's Run or Settle.
// Thread-safe: may be called from any goroutine.
func (s *Store) Post(a action.Action) error {
	if !s.inbox.Enqueue(Message{Type: MessageTypePosted, Action: a}) {
		return NewClosedError(a)
	}
	return nil
}

// Inflight returns the number of loaders whose results have not been applied.
func (s *Store) Inflight() int64 {
	return s.inflight.Load()
}

// await starts a loader task. Its outcome is delivered through the inbox.
func (s *Store) await(origin action.Action, task reducer.Task) {
	s.inflight.Add(1)
	s.metrics.loaderStarted(s.name)
	s.logger.Debug("loader started",
		"store", s.name,
		"action", origin.Name(),
		"flow", origin.Flow,
	)

	ctx := s.loadCtx
	s.executor.Go(func() {
		done, err := runTask(ctx, task)
		msg := Message{Type: MessageTypeCompletion, Action: done, Origin: origin, Err: err}
		if !s.inbox.Enqueue(msg) {
			// Closed: nobody will apply it.
			s.inflight.Add(-1)
			s.metrics.loaderApplied(s.name, NewClosedError(origin))
		}
	})
}

// Run applies posted actions and loader results until ctx is cancelled or
// the store is closed.
// Blocks; must be called from the owner goroutine.
//
// ERROR HANDLING: a failing message is logged with its action and processing
// continues. Use Settle to collect errors instead.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info("store run loop starting", "store", s.name)

	for {
		if s.closed.Load() {
			s.logger.Info("store run loop stopping: store closed", "store", s.name)
			return nil
		}

		if msg, ok := s.inbox.TryDequeue(); ok {
			if err := s.process(msg); err != nil {
				s.logger.Error("inbox message failed",
					"store", s.name,
					"action", msg.Action.Name(),
					"origin", msg.Origin.Name(),
					"error", err,
				)
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("store run loop stopping: context cancelled", "store", s.name)
			return ctx.Err()
		case <-s.inbox.Wait():
			// Loop back to TryDequeue. A closed inbox fires immediately and
			// the closed check above returns.
		}
	}
}

// Settle applies posted actions and loader results until the inbox is empty
// and no loader is in flight, then returns every error encountered, joined.
// Must be called from the owner goroutine.
func (s *Store) Settle(ctx context.Context) error {
	var errs []error
	for {
		if s.closed.Load() {
			return errors.Join(errs...)
		}

		if msg, ok := s.inbox.TryDequeue(); ok {
			if err := s.process(msg); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if s.inflight.Load() == 0 {
			return errors.Join(errs...)
		}

		select {
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		case <-s.inbox.Wait():
		}
	}
}

// process applies one inbox message.
func (s *Store) process(msg Message) error {
	switch msg.Type {
	case MessageTypePosted:
		return s.Dispatch(msg.Action)

	case MessageTypeCompletion:
		s.inflight.Add(-1)
		if msg.Err != nil {
			err := NewLoaderError(msg.Origin, msg.Err)
			s.metrics.loaderApplied(s.name, err)
			s.logger.Error("loader failed",
				"store", s.name,
				"action", msg.Origin.Name(),
				"flow", msg.Origin.Flow,
				"error", msg.Err,
			)
			return err
		}
		s.metrics.loaderApplied(s.name, nil)
		return s.Dispatch(msg.Action)

	default:
		return fmt.Errorf("unknown message type: %d", msg.Type)
	}
}

// Close stops the store. Later dispatches and posts fail with STORE_CLOSED,
// loaders in flight are cancelled through their context and messages still
// in the inbox are discarded. Close is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	s.inbox.Close()
	s.logger.Info("store closed", "store", s.name)
	return nil
}

// host is the reducer.Host continuations see.
type host struct {
	s *Store
}

func (h host) Dispatch(a action.Action) error { return h.s.Dispatch(a) }

func (h host) Await(origin action.Action, task reducer.Task) { h.s.await(origin, task) }

func (h host) NewFlow() string { return h.s.NewFlow() }

func logReducerPanic(logger *slog.Logger, store string, err error) {
	var re *RuntimeError
	if !errors.As(err, &re) {
		logger.Error("dispatch failed", "store", store, "error", err)
		return
	}
	logger.Error("reducer panicked",
		slog.String("store", store),
		slog.String("action", re.Action),
		slog.String("flow", re.Flow),
		slog.String("panic", re.Details["panic"]),
		slog.String("stack", re.Details["stack"]),
	)
}
