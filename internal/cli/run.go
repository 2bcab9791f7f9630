package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/compiler"
	"github.com/roach88/treestore/internal/engine"
	"github.com/roach88/treestore/internal/state"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Store    string
	Dispatch []string
	Timeout  time.Duration

	// FlowGenerator allows overriding the flow token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	FlowGenerator engine.FlowTokenGenerator
}

// RunRecord is one committed transition as printed by run.
type RunRecord struct {
	Seq    int64         `json:"seq"`
	Action string        `json:"action"`
	Flow   string        `json:"flow,omitempty"`
	Params []state.Value `json:"params,omitempty"`
	Data   state.Value   `json:"data,omitempty"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	Store   string      `json:"store"`
	Records []RunRecord `json:"records"`
	State   state.Value `json:"state"`
	Errors  []string    `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <specs-dir>",
		Short: "Dispatch actions against a compiled store",
		Long: `Create a store from its CUE definition and dispatch actions against it.

Each --dispatch is an action name, optionally followed by a colon and a
JSON payload. For base actions a JSON array is the params list and any
other value is a single param. For done actions the payload is the data.
Async loaders run in the background and are settled before the final
state is printed.

Example:
  treestore run ./specs --store todos --dispatch 'add:"milk"'
  treestore run ./specs --store todos --dispatch 'login:{"name":"Heinz"}' --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "store name (required)")
	cmd.Flags().StringArrayVarP(&opts.Dispatch, "dispatch", "d", nil, "action to dispatch, name[:json] (repeatable)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "how long to wait for loaders to settle")
	_ = cmd.MarkFlagRequired("store")

	return cmd
}

func runStore(opts *RunOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	actions := make([]action.Action, 0, len(opts.Dispatch))
	for _, d := range opts.Dispatch {
		a, err := ParseDispatch(d)
		if err != nil {
			_ = formatter.Error(ErrCodeBadDispatch, err.Error(), nil)
			return WrapExitError(ExitCommandError, "invalid --dispatch", err)
		}
		actions = append(actions, a)
	}

	logger.Info("compiling specs", "dir", specsDir)
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		_ = formatter.Error(code, message, nil)
		return WrapExitError(ExitCommandError, "failed to compile specs", loadErrors[0])
	}

	spec := loadResult.Store(opts.Store)
	if spec == nil {
		msg := fmt.Sprintf("store %q not found (have %s)", opts.Store, strings.Join(loadResult.Names(), ", "))
		_ = formatter.Error(ErrCodeNoStore, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	metrics, err := engine.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	flowGen := opts.FlowGenerator
	if flowGen == nil {
		flowGen = engine.UUIDv7Generator{}
	}

	result := &RunResult{Store: spec.Name}
	st, err := compiler.Create(spec,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithFlowGenerator(flowGen),
		engine.WithRecorder(func(r engine.Record) {
			result.Records = append(result.Records, RunRecord{
				Seq:    r.Seq,
				Action: r.Action.Name(),
				Flow:   r.Action.Flow,
				Params: r.Action.Params,
				Data:   r.Action.Data,
			})
		}),
	)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to create store", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing store", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, a := range actions {
		logger.Debug("dispatching", "action", a.String())
		if err := st.Dispatch(a); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", a.Name(), err))
		}
	}

	settleCtx, settleCancel := context.WithTimeout(ctx, opts.Timeout)
	defer settleCancel()
	if err := st.Settle(settleCtx); err != nil {
		for _, e := range flatten(err) {
			result.Errors = append(result.Errors, e.Error())
		}
	}
	result.State = st.State()

	if err := outputRunResult(formatter, result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("run finished with %d error(s)", len(result.Errors)))
	}
	return nil
}

// ParseDispatch parses a --dispatch value: "name" or "name:json".
func ParseDispatch(s string) (action.Action, error) {
	name, payload, hasPayload := strings.Cut(s, ":")
	a := action.Parse(strings.TrimSpace(name))
	if err := action.ValidateType(a.Type); err != nil {
		return action.Action{}, fmt.Errorf("%q: %w", s, err)
	}
	if !hasPayload {
		return a, nil
	}

	v, err := state.ParseJSON([]byte(payload))
	if err != nil {
		return action.Action{}, fmt.Errorf("%q: payload: %w", s, err)
	}

	switch a.Phase {
	case action.Done:
		a.Data = v
	case action.Loading:
		return action.Action{}, fmt.Errorf("%q: loading actions carry no payload", s)
	default:
		if arr, ok := v.(*state.Array); ok {
			a.Params = arr.Items()
		} else {
			a.Params = []state.Value{v}
		}
	}
	return a, nil
}

// flatten unpacks errors.Join trees into their leaves.
func flatten(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// outputRunResult prints the records and the final state.
func outputRunResult(formatter *OutputFormatter, result *RunResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Store %s: %d transition(s)\n\n", result.Store, len(result.Records))
	for _, r := range result.Records {
		line := fmt.Sprintf("[%d] %s", r.Seq, r.Action)
		if len(r.Params) > 0 {
			line += " params=" + state.NewArray(r.Params...).String()
		}
		if r.Data != nil {
			data, err := json.Marshal(r.Data)
			if err == nil {
				line += " data=" + string(data)
			}
		}
		if r.Flow != "" {
			line += " flow=" + r.Flow
		}
		fmt.Fprintln(w, line)
	}

	indented, err := state.Indent(result.State)
	if err != nil {
		return fmt.Errorf("rendering state: %w", err)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Final state:")
	fmt.Fprintln(w, indented)

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  ✗ %s\n", e)
		}
	}
	return nil
}
