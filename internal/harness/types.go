package harness

import "github.com/roach88/treestore/internal/state"

// TraceEvent is one committed transition as the recorder saw it.
type TraceEvent struct {
	Seq    int64         `json:"seq"`
	Action string        `json:"action"` // rendered name, e.g. "login.done"
	Flow   string        `json:"flow,omitempty"`
	Params []state.Value `json:"params,omitempty"`
	Data   state.Value   `json:"data,omitempty"` // Done actions only
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step behaved as declared and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every committed transition in order, including the
	// .loading and .done phases async actions produced.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Initial and Final are the store state before the first step and after
	// the last settle.
	Initial state.Value `json:"initial"`
	Final   state.Value `json:"final"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Initial: state.Null{},
		Final:   state.Null{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a committed transition.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
