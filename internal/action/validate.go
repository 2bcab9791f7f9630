package action

import (
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the action's shape.
// Returns all errors (not fail-fast) for better developer experience.
func (a Action) Validate() []ValidationError {
	var errs []ValidationError

	// Rule: a type is required
	if a.Type == "" {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "type is required",
		})
	}

	// Rule: the phase suffixes are reserved
	if strings.HasSuffix(a.Type, LoadingSuffix) || strings.HasSuffix(a.Type, DoneSuffix) {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("type %q ends with a reserved suffix (%s, %s)", a.Type, LoadingSuffix, DoneSuffix),
		})
	}

	switch a.Phase {
	case Base:
	case Loading, Done:
		// Rule: synthetic phases never carry loader params
		if len(a.Params) > 0 {
			errs = append(errs, ValidationError{
				Field:   "params",
				Message: fmt.Sprintf("%s actions carry no params", a.Phase),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "phase",
			Message: fmt.Sprintf("unknown phase %d", int(a.Phase)),
		})
	}

	for i, p := range a.Params {
		if p == nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d]", i),
				Message: "param is nil, use state.Null{}",
			})
		}
	}

	return errs
}

// ValidateType checks a type name used at registration time.
func ValidateType(typ string) error {
	if errs := New(typ).Validate(); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
