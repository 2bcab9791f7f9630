package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"gopkg.in/yaml.v3"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/compiler"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/state"
	"github.com/roach88/treestore/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with deterministic clock and flow tokens.
type Harness struct {
	store  *engine.Store
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger  *slog.Logger
	metrics *engine.Metrics
}

// WithLogger routes store logs to logger. Default: discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records the scenario's dispatches in m.
func WithMetrics(m *engine.Metrics) Option {
	return func(c *runConfig) {
		c.metrics = m
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh store. Deterministic helpers ensure
// reproducible traces.
//
// Execution flow:
//  1. Load and compile the CUE definitions, pick scenario.Store
//  2. Create the store (scenario.Initial overrides the definition)
//  3. Execute steps, checking each against its expect_error
//  4. Settle remaining loader results
//  5. Evaluate assertions
//
// A returned error means the scenario could not run at all. Step and
// assertion failures are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}

	spec, err := LoadStore(scenario.Specs, scenario.Store)
	if err != nil {
		return nil, err
	}

	initial := spec.Initial
	if scenario.Initial.Kind != 0 {
		initial, err = decodeNode(&scenario.Initial)
		if err != nil {
			return nil, fmt.Errorf("scenario initial: %w", err)
		}
	}

	c, err := compiler.Build(spec)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	clock := testutil.NewDeterministicClock()
	st, err := c.Create(initial,
		engine.WithName(spec.Name),
		engine.WithLogger(cfg.logger),
		engine.WithMetrics(cfg.metrics),
		engine.WithClock(clock),
		engine.WithFlowGenerator(testutil.NewFixedFlowGenerator(scenario.FlowToken)),
		engine.WithInlineLoaders(),
		engine.WithRecorder(func(r engine.Record) {
			result.AddTrace(TraceEvent{
				Seq:    r.Seq,
				Action: r.Action.Name(),
				Flow:   r.Action.Flow,
				Params: r.Action.Params,
				Data:   r.Action.Data,
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	h := &Harness{store: st, clock: clock, logger: cfg.logger}
	result.Initial = st.State()

	ctx := context.Background()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	// Loader results nobody settled explicitly
	if err := st.Settle(ctx); err != nil {
		result.AddError(fmt.Sprintf("final settle: %v", err))
	}
	result.Final = st.State()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSteps runs every step in order.
// A step whose outcome differs from its expect_error is recorded in the
// result; only malformed steps abort the run.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		var err error
		if step.Settle {
			err = h.store.Settle(ctx)
		} else {
			var a action.Action
			a, err = buildAction(step)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			err = h.store.Dispatch(a)
		}

		if msg := checkOutcome(step, err); msg != "" {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, stepLabel(step), msg))
		}

		h.logger.Debug("scenario step completed",
			"step", i,
			"action", step.Dispatch,
			"settle", step.Settle,
			"seq", h.clock.Current(),
			"error", err,
		)
	}
	return nil
}

// buildAction turns a dispatch step into an action.
func buildAction(step Step) (action.Action, error) {
	a := action.Parse(step.Dispatch)

	for j, p := range step.Params {
		v, err := state.FromGo(p)
		if err != nil {
			return a, fmt.Errorf("params[%d]: %w", j, err)
		}
		a.Params = append(a.Params, v)
	}

	if a.Phase == action.Done {
		data, err := state.FromGo(step.Data)
		if err != nil {
			return a, fmt.Errorf("data: %w", err)
		}
		a = a.WithData(data)
	}
	return a, nil
}

// checkOutcome compares a step's error against its expectation.
// Returns "" when they agree.
func checkOutcome(step Step, err error) string {
	if step.ExpectError == "" {
		if err != nil {
			return fmt.Sprintf("unexpected error: %v", err)
		}
		return ""
	}
	if err == nil {
		return fmt.Sprintf("expected error %s, got none", step.ExpectError)
	}
	if !hasErrorCode(err, engine.RuntimeErrorCode(step.ExpectError)) {
		return fmt.Sprintf("expected error %s, got: %v", step.ExpectError, err)
	}
	return ""
}

// hasErrorCode walks err (including joined errors) for a RuntimeError with
// the given code.
func hasErrorCode(err error, code engine.RuntimeErrorCode) bool {
	if err == nil {
		return false
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) && re.Code == code {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if hasErrorCode(e, code) {
				return true
			}
		}
	}
	return false
}

func stepLabel(step Step) string {
	if step.Settle {
		return "settle"
	}
	return "dispatch " + step.Dispatch
}

// LoadStore compiles the CUE files and returns the definition named store.
// All files must belong to the same CUE package (or none).
func LoadStore(files []string, store string) (*ir.StoreSpec, error) {
	instances := load.Instances(files, &load.Config{})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %v", files)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", err)
	}

	storeVal := value.LookupPath(cue.MakePath(cue.Str("store"), cue.Str(store)))
	if !storeVal.Exists() {
		return nil, fmt.Errorf("store %q not found in %v", store, files)
	}

	spec, err := compiler.CompileStore(storeVal)
	if err != nil {
		return nil, err
	}
	return spec, nil
}

// decodeNode converts a YAML subtree into a state value.
func decodeNode(node *yaml.Node) (state.Value, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	return state.FromGo(raw)
}
