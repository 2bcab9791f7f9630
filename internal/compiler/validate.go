package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/ir"
	"github.com/roach88/treestore/internal/state"
)

// Validation error codes (E100-E199)
const (
	ErrStoreNameEmpty     = "E101" // store name is required
	ErrInvalidActionName  = "E102" // case "on" or async type is not a valid action name
	ErrInvalidOp          = "E103" // unknown case op
	ErrInvalidPath        = "E104" // "at" does not parse, or cannot be unset
	ErrInvalidSource      = "E105" // "from" does not parse or has an unknown root
	ErrOperandMismatch    = "E106" // operand missing, duplicated, or given to toggle/unset
	ErrInvalidLoader      = "E107" // unknown loader or missing loader argument
	ErrDuplicateAsyncType = "E108" // async type registered twice
)

// ValidationError represents a definition validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled store definition.
// Returns all errors found (does not fail-fast).
func Validate(spec *ir.StoreSpec) []ValidationError {
	var errs []ValidationError

	// E101
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "store name is required and must be non-empty",
			Code:    ErrStoreNameEmpty,
		})
	}

	for i, c := range spec.Cases {
		errs = append(errs, validateCase(c, fmt.Sprintf("cases[%d]", i))...)
	}

	seen := make(map[string]bool)
	for _, a := range spec.Async {
		errs = append(errs, validateAsync(a, seen)...)
	}

	return errs
}

func validateCase(c ir.CaseSpec, field string) []ValidationError {
	var errs []ValidationError

	// E102: "on" names a concrete action phase, e.g. "load.done"
	if verrs := action.Parse(c.On).Validate(); len(verrs) > 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".on",
			Message: fmt.Sprintf("invalid action name %q: %s", c.On, verrs[0].Error()),
			Code:    ErrInvalidActionName,
		})
	}

	// E103
	if !ir.ValidOps[c.Op] {
		errs = append(errs, ValidationError{
			Field:   field + ".op",
			Message: fmt.Sprintf("invalid op %q, must be one of set, add, append, merge, toggle, unset", c.Op),
			Code:    ErrInvalidOp,
		})
	}

	// E104
	path, err := state.ParsePath(c.At)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".at",
			Message: err.Error(),
			Code:    ErrInvalidPath,
		})
	} else if c.Op == ir.OpUnset && len(path) > 0 {
		if _, isIndex := path[len(path)-1].Index(); isIndex {
			errs = append(errs, ValidationError{
				Field:   field + ".at",
				Message: fmt.Sprintf("cannot unset array element %q", c.At),
				Code:    ErrInvalidPath,
			})
		}
	}

	// E105
	if c.From != "" {
		if _, err := parseSource(c.From); err != nil {
			errs = append(errs, ValidationError{
				Field:   field + ".from",
				Message: err.Error(),
				Code:    ErrInvalidSource,
			})
		}
	}

	// E106
	if ir.ValidOps[c.Op] {
		switch {
		case c.Value != nil && c.From != "":
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "value and from are mutually exclusive",
				Code:    ErrOperandMismatch,
			})
		case c.Op.NeedsOperand() && !c.HasOperand():
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("op %q requires value or from", c.Op),
				Code:    ErrOperandMismatch,
			})
		case !c.Op.NeedsOperand() && c.HasOperand():
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("op %q takes no operand", c.Op),
				Code:    ErrOperandMismatch,
			})
		}
	}

	return errs
}

func validateAsync(a ir.AsyncSpec, seen map[string]bool) []ValidationError {
	var errs []ValidationError
	field := "async." + a.Type

	// E102: async types are base names, the phases are derived
	if err := action.ValidateType(a.Type); err != nil {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid async type %q: %v", a.Type, err),
			Code:    ErrInvalidActionName,
		})
	}

	// E108
	if seen[a.Type] {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("duplicate async type: %q", a.Type),
			Code:    ErrDuplicateAsyncType,
		})
	}
	seen[a.Type] = true

	// E107
	switch a.Loader {
	case ir.LoaderEcho:
	case ir.LoaderValue:
		if a.Value == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".value",
				Message: "value loader requires a value",
				Code:    ErrInvalidLoader,
			})
		}
	case ir.LoaderFail:
		if strings.TrimSpace(a.Message) == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".message",
				Message: "fail loader requires a message",
				Code:    ErrInvalidLoader,
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   field + ".loader",
			Message: fmt.Sprintf("invalid loader %q, must be echo, value or fail", a.Loader),
			Code:    ErrInvalidLoader,
		})
	}

	return errs
}
