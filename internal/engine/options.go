package engine

import (
	"log/slog"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/state"
)

// Record describes one committed transition. Prev and Next are the states
// before and after reducing Action.
type Record struct {
	Seq    int64
	Action action.Action
	Prev   state.Value
	Next   state.Value
}

// Option configures a Store.
type Option func(*Store)

// WithName sets the store name used in logs and metric labels.
// Default: "default".
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records dispatch and loader metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithFlowGenerator sets the flow token generator used for async actions
// dispatched without a flow. Default: UUIDv7Generator.
func WithFlowGenerator(gen FlowTokenGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.flowGen = gen
		}
	}
}

// Sequencer hands out the seq numbers that stamp committed transitions.
// Implemented by Clock; tests may supply a resettable one.
type Sequencer interface {
	Next() int64
}

// WithClock sets the sequencer that stamps records. Default: NewClock().
func WithClock(c Sequencer) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRecorder calls fn after every committed transition, before subscribers
// are notified. fn must not dispatch.
func WithRecorder(fn func(Record)) Option {
	return func(s *Store) {
		s.recorder = fn
	}
}

// WithExecutor sets how loaders are run. Default: GoExecutor.
func WithExecutor(exec Executor) Option {
	return func(s *Store) {
		if exec != nil {
			s.executor = exec
		}
	}
}

// WithInlineLoaders is WithExecutor(InlineExecutor{}).
func WithInlineLoaders() Option {
	return WithExecutor(InlineExecutor{})
}
