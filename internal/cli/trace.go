package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/harness"
	"github.com/roach88/treestore/internal/state"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	FlowToken string // optional - filter to one flow
	Action    string // optional - filter to one action type, all phases
}

// TraceEvent represents a single transition in the trace timeline.
type TraceEvent struct {
	Seq    int64         `json:"seq"`
	Action string        `json:"action"`
	Phase  string        `json:"phase"` // "base", "loading" or "done"
	Flow   string        `json:"flow,omitempty"`
	Params []state.Value `json:"params,omitempty"`
	Data   state.Value   `json:"data,omitempty"`
}

// FlowSummary groups the transitions that share a flow token.
type FlowSummary struct {
	Flow     string  `json:"flow"`
	Type     string  `json:"type"`
	Seqs     []int64 `json:"seqs"`
	Complete bool    `json:"complete"` // a done phase was applied
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Scenario string        `json:"scenario"`
	Store    string        `json:"store"`
	Timeline []TraceEvent  `json:"timeline"`
	Flows    []FlowSummary `json:"flows"`
	Final    state.Value   `json:"final_state"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Base        int  `json:"base"`
	Loading     int  `json:"loading"`
	Done        int  `json:"done"`
	Flows       int  `json:"flows"`
	IsComplete  bool `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <specs-dir> <scenario-file>",
		Short: "Show the transition timeline of a scenario",
		Long: `Run a scenario and show every committed transition.

The output includes:
- Timeline: Chronological list of dispatched actions with their payloads
- Flows: Async flows grouped by token, from loading to done
- Stats: Summary statistics for the run

Examples:
  treestore trace ./specs ./scenarios/todos_login.yaml
  treestore trace ./specs ./scenarios/todos_login.yaml --action login
  treestore trace ./specs ./scenarios/todos_login.yaml --flow flow-login --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "filter to a flow token")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to an action type")

	return cmd
}

func runTrace(opts *TraceOptions, specsDir, scenarioFile string, cmd *cobra.Command) error {
	scenario, err := harness.LoadScenarioWithBasePath(scenarioFile, specsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	run, err := harness.Run(scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	timeline := buildTimeline(run.Trace, opts.Action, opts.FlowToken)
	flows := buildFlows(timeline)

	result := TraceResult{
		Scenario: scenario.Name,
		Store:    scenario.Store,
		Timeline: timeline,
		Flows:    flows,
		Final:    run.Final,
		Stats:    buildStats(timeline, flows),
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}

	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts harness trace events to timeline events.
// actionFilter matches the action type, so "login" keeps login.loading and
// login.done too.
func buildTimeline(trace []harness.TraceEvent, actionFilter, flowFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(trace))

	for _, ev := range trace {
		a := action.Parse(ev.Action)
		if actionFilter != "" && a.Type != actionFilter {
			continue
		}
		if flowFilter != "" && ev.Flow != flowFilter {
			continue
		}

		timeline = append(timeline, TraceEvent{
			Seq:    ev.Seq,
			Action: ev.Action,
			Phase:  a.Phase.String(),
			Flow:   ev.Flow,
			Params: ev.Params,
			Data:   ev.Data,
		})
	}

	return timeline
}

// buildFlows groups flow-carrying events by token, in order of first
// appearance.
func buildFlows(timeline []TraceEvent) []FlowSummary {
	var flows []FlowSummary
	index := make(map[string]int)

	for _, ev := range timeline {
		if ev.Flow == "" {
			continue
		}
		key := ev.Flow + "\x00" + action.Parse(ev.Action).Type
		i, ok := index[key]
		if !ok {
			i = len(flows)
			index[key] = i
			flows = append(flows, FlowSummary{Flow: ev.Flow, Type: action.Parse(ev.Action).Type})
		}
		flows[i].Seqs = append(flows[i].Seqs, ev.Seq)
		if ev.Phase == action.Done.String() {
			flows[i].Complete = true
		}
	}

	return flows
}

func buildStats(timeline []TraceEvent, flows []FlowSummary) TraceStats {
	stats := TraceStats{
		TotalEvents: len(timeline),
		Flows:       len(flows),
		IsComplete:  true,
	}
	for _, ev := range timeline {
		switch ev.Phase {
		case action.Loading.String():
			stats.Loading++
		case action.Done.String():
			stats.Done++
		default:
			stats.Base++
		}
	}
	for _, f := range flows {
		if !f.Complete {
			stats.IsComplete = false
		}
	}
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	if result.Timeline == nil {
		result.Timeline = []TraceEvent{}
	}
	if result.Flows == nil {
		result.Flows = []FlowSummary{}
	}

	return writeResponse(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result})
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace for Scenario: %s (store %s)\n", result.Scenario, result.Store)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Flows ===")
	if len(result.Flows) == 0 {
		fmt.Fprintln(w, "  (no async flows)")
	} else {
		for _, f := range result.Flows {
			seqs := make([]string, len(f.Seqs))
			for i, s := range f.Seqs {
				seqs[i] = fmt.Sprintf("%d", s)
			}
			fmt.Fprintf(w, "  %s %s: %s\n", truncateID(f.Flow), f.Type, strings.Join(seqs, " → "))
		}
	}
	fmt.Fprintln(w)

	if verbose {
		fmt.Fprintln(w, "=== Final State ===")
		indented, err := state.Indent(result.Final)
		if err != nil {
			return fmt.Errorf("rendering state: %w", err)
		}
		fmt.Fprintln(w, indented)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Base:         %d\n", result.Stats.Base)
	fmt.Fprintf(w, "  Loading:      %d\n", result.Stats.Loading)
	fmt.Fprintf(w, "  Done:         %d\n", result.Stats.Done)
	fmt.Fprintf(w, "  Flows:        %d\n", result.Stats.Flows)

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %-7s %s\n", event.Seq, strings.ToUpper(event.Phase), event.Action)
	if verbose && len(event.Params) > 0 {
		fmt.Fprintf(w, "       Params: %s\n", formatValue(state.NewArray(event.Params...)))
	}
	if verbose && event.Data != nil {
		fmt.Fprintf(w, "       Data: %s\n", formatValue(event.Data))
	}
	if verbose && event.Flow != "" {
		fmt.Fprintf(w, "       Flow: %s\n", event.Flow)
	}
}

// formatValue formats a state value for display. Object keys come out in
// canonical order.
func formatValue(v state.Value) string {
	switch val := v.(type) {
	case *state.Object:
		keys := val.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%s", k, formatValue(val.Field(k)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *state.Array:
		items := val.Items()
		parts := make([]string, len(items))
		for i, elem := range items {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case state.String:
		return string(val)
	case state.Null, nil:
		return "null"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// truncateID truncates a long flow token for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (pending flows)"
}
