package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/treestore/internal/state"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(ev TraceEvent) string {
	var b strings.Builder
	b.WriteString(ev.Action)
	if len(ev.Params) > 0 {
		fmt.Fprintf(&b, " params=%s", render(state.NewArray(ev.Params...)))
	}
	if ev.Data != nil {
		fmt.Fprintf(&b, " data=%s", render(ev.Data))
	}
	if ev.Flow != "" {
		fmt.Fprintf(&b, " flow=%s", ev.Flow)
	}
	return b.String()
}

func render(v state.Value) string {
	data, err := state.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// assertTraceContains checks if the trace contains an action matching
// the specified name, params and data (subset match on objects).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	params, data, err := expectedPayload(assertion)
	if err != nil {
		return err
	}

	for _, event := range trace {
		if event.Action != assertion.Action {
			continue
		}
		if matchParams(event.Params, params) && (data == nil || matchSubset(event.Data, data)) {
			return nil
		}
	}

	expected := "action " + assertion.Action
	if len(params) > 0 {
		expected += " with params " + render(state.NewArray(params...))
	}
	if data != nil {
		expected += " with data " + render(data)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

func expectedPayload(assertion Assertion) ([]state.Value, state.Value, error) {
	var params []state.Value
	for i, p := range assertion.Params {
		v, err := state.FromGo(p)
		if err != nil {
			return nil, nil, fmt.Errorf("trace_contains params[%d]: %w", i, err)
		}
		params = append(params, v)
	}

	if assertion.Data == nil {
		return params, nil, nil
	}
	data, err := state.FromGo(assertion.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("trace_contains data: %w", err)
	}
	return params, data, nil
}

// matchParams checks the leading params. Extra actual params are ignored.
func matchParams(actual, expected []state.Value) bool {
	if len(expected) > len(actual) {
		return false
	}
	for i, exp := range expected {
		if !matchSubset(actual[i], exp) {
			return false
		}
	}
	return true
}

// matchSubset reports whether actual contains expected. Objects match when
// every expected field matches; everything else must be Equal.
func matchSubset(actual, expected state.Value) bool {
	expObj, ok := expected.(*state.Object)
	if !ok {
		return state.Equal(actual, expected)
	}
	actObj, ok := actual.(*state.Object)
	if !ok {
		return false
	}

	match := true
	expObj.Range(func(key string, exp state.Value) bool {
		act, exists := actObj.Get(key)
		if !exists || !matchSubset(act, exp) {
			match = false
		}
		return match
	})
	return match
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected action
	positions := make(map[string]int)
	for i, event := range trace {
		for _, expectedAction := range assertion.Actions {
			if event.Action == expectedAction && positions[expectedAction] == 0 {
				positions[expectedAction] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all actions found
	for _, name := range assertion.Actions {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", name),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState checks the value at assertion.Path in the final state.
// Comparison is deep equality; Int and Float never compare equal.
func assertFinalState(final state.Value, assertion Assertion) error {
	path, err := state.ParsePath(assertion.Path)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	expected, err := decodeNode(&assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	actual := path.Lookup(final)
	if !state.Equal(expected, actual) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s = %s (%s)", pathLabel(path), render(expected), state.Kind(expected)),
			Actual:   fmt.Sprintf("%s = %s (%s)", pathLabel(path), render(actual), state.Kind(actual)),
		}
	}
	return nil
}

// assertUnchanged checks that the node at assertion.Path is the very node
// the initial state held: no transition touched it.
func assertUnchanged(initial, final state.Value, assertion Assertion) error {
	path, err := state.ParsePath(assertion.Path)
	if err != nil {
		return fmt.Errorf("unchanged: %w", err)
	}

	before := path.Lookup(initial)
	after := path.Lookup(final)
	if state.Same(before, after) {
		return nil
	}

	actual := "replaced by an equal copy"
	if !state.Equal(before, after) {
		actual = fmt.Sprintf("changed from %s to %s", render(before), render(after))
	}
	return &AssertionError{
		Type:     AssertUnchanged,
		Expected: fmt.Sprintf("%s keeps its initial reference", pathLabel(path)),
		Actual:   actual,
	}
}

func pathLabel(p state.Path) string {
	if len(p) == 0 {
		return "(root)"
	}
	return p.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Final, assertion)
		case AssertUnchanged:
			err = assertUnchanged(result.Initial, result.Final, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
