// Package action defines the messages a store reduces.
//
// An Action is a tagged variant: every action has a Type and a Phase.
// Application code dispatches Base actions. Async registrations synthesise the
// Loading and Done phases of the same Type. The phase is rendered as a fixed
// suffix (".loading", ".done") only for matching cases by name, logs and
// traces; Name and Parse are the only places the suffixes exist.
package action

import (
	"fmt"
	"strings"

	"github.com/roach88/treestore/internal/state"
)

// Phase distinguishes application actions from the synthetic phases of an
// async action.
type Phase int

const (
	// Base is an action issued by application code.
	Base Phase = iota
	// Loading is dispatched by an async registration before its loader runs.
	Loading
	// Done is dispatched by an async registration with the loader's result.
	Done
)

// Suffixes appended to Type when rendering a synthetic phase.
const (
	LoadingSuffix = ".loading"
	DoneSuffix    = ".done"
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Base:
		return "base"
	case Loading:
		return "loading"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Action is an immutable message. Construct with New, Loading or Done.
type Action struct {
	// Type is the discriminant registered by application code, without suffix.
	Type string

	// Phase is Base for application actions.
	Phase Phase

	// Params are the loader arguments of an async Base action.
	Params []state.Value

	// Data is the payload. Done actions carry the loader result here.
	Data state.Value

	// Flow correlates an async Base action with its Loading and Done phases.
	// Empty for actions that never went through an async registration.
	Flow string
}

// New creates a Base action.
func New(typ string, params ...state.Value) Action {
	return Action{Type: typ, Params: params}
}

// NewLoading creates the Loading phase of typ.
func NewLoading(typ string) Action {
	return Action{Type: typ, Phase: Loading}
}

// NewDone creates the Done phase of typ carrying data.
func NewDone(typ string, data state.Value) Action {
	return Action{Type: typ, Phase: Done, Data: data}
}

// WithData returns a copy of a carrying data.
func (a Action) WithData(data state.Value) Action {
	a.Data = data
	return a
}

// WithFlow returns a copy of a with the flow token set.
func (a Action) WithFlow(flow string) Action {
	a.Flow = flow
	return a
}

// Name renders the type with its phase suffix: "t", "t.loading" or "t.done".
func (a Action) Name() string {
	switch a.Phase {
	case Loading:
		return a.Type + LoadingSuffix
	case Done:
		return a.Type + DoneSuffix
	default:
		return a.Type
	}
}

// Is reports whether the rendered name equals name.
func (a Action) Is(name string) bool {
	return a.Name() == name
}

// Param returns the i-th param, or Null when absent.
func (a Action) Param(i int) state.Value {
	if i < 0 || i >= len(a.Params) {
		return state.Null{}
	}
	return a.Params[i]
}

// String renders the action for logs.
func (a Action) String() string {
	var b strings.Builder
	b.WriteString(a.Name())
	if len(a.Params) > 0 {
		b.WriteString(" params=")
		b.WriteString(state.NewArray(a.Params...).String())
	}
	if a.Data != nil {
		data, err := state.MarshalCanonical(a.Data)
		if err == nil {
			b.WriteString(" data=")
			b.Write(data)
		}
	}
	if a.Flow != "" {
		b.WriteString(" flow=")
		b.WriteString(a.Flow)
	}
	return b.String()
}

// Parse turns a rendered name back into a typed action.
//
// A trailing ".loading" or ".done" selects that phase, so a Base type cannot
// itself end in one of the suffixes (Validate rejects it).
func Parse(name string) Action {
	if typ, ok := strings.CutSuffix(name, LoadingSuffix); ok && typ != "" {
		return NewLoading(typ)
	}
	if typ, ok := strings.CutSuffix(name, DoneSuffix); ok && typ != "" {
		return NewDone(typ, nil)
	}
	return New(name)
}
