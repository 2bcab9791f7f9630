package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/treestore/internal/action"
)

// RuntimeError represents an error detected by a store or configurator.
//
// Runtime errors include:
//   - Re-entrant dispatch: Dispatch called while a reduction is running
//   - Reducer panic: a reducer panicked; the dispatch was discarded
//   - Loader failure: an async loader returned an error or panicked
//   - Lifecycle misuse: dispatching to a closed store, reusing a configurator
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Action is the rendered name of the action involved, if any.
	Action string

	// Flow is the flow token of the action involved, if any.
	Flow string

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReentrantDispatch indicates Dispatch was called during a reduction.
	ErrCodeReentrantDispatch RuntimeErrorCode = "REENTRANT_DISPATCH"

	// ErrCodeReducerPanic indicates a reducer panicked.
	ErrCodeReducerPanic RuntimeErrorCode = "REDUCER_PANIC"

	// ErrCodeLoaderFailed indicates an async loader failed.
	ErrCodeLoaderFailed RuntimeErrorCode = "LOADER_FAILED"

	// ErrCodeInvalidAction indicates a dispatched action failed validation.
	ErrCodeInvalidAction RuntimeErrorCode = "INVALID_ACTION"

	// ErrCodeStoreClosed indicates the store was closed.
	ErrCodeStoreClosed RuntimeErrorCode = "STORE_CLOSED"

	// ErrCodeConfiguratorConsumed indicates a configurator was used after Create.
	ErrCodeConfiguratorConsumed RuntimeErrorCode = "CONFIGURATOR_CONSUMED"

	// ErrCodeNestedCreate indicates Create was called on a nested configurator.
	ErrCodeNestedCreate RuntimeErrorCode = "NESTED_CREATE"

	// ErrCodeInvalidRegistration indicates a reducer, case or loader could not
	// be registered.
	ErrCodeInvalidRegistration RuntimeErrorCode = "INVALID_REGISTRATION"
)

// ReentrantDispatchMessage is the fixed message of ErrReentrantDispatch.
const ReentrantDispatchMessage = "dispatch inside reducer is not allowed"

// ErrReentrantDispatch is returned by Dispatch when called from inside a
// reducer. The store stays usable.
var ErrReentrantDispatch = &RuntimeError{
	Code:    ErrCodeReentrantDispatch,
	Message: ReentrantDispatchMessage,
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Action != "" && e.Flow != "" {
		msg = fmt.Sprintf("%s (action=%s, flow=%s)", msg, e.Action, e.Flow)
	} else if e.Action != "" {
		msg = fmt.Sprintf("%s (action=%s)", msg, e.Action)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsReentrantError returns true if err is (or wraps) a re-entrant dispatch error.
func IsReentrantError(err error) bool {
	return hasCode(err, ErrCodeReentrantDispatch)
}

// IsReducerPanic returns true if the error is a recovered reducer panic.
func IsReducerPanic(err error) bool {
	return hasCode(err, ErrCodeReducerPanic)
}

// IsLoaderError returns true if the error is an async loader failure.
func IsLoaderError(err error) bool {
	return hasCode(err, ErrCodeLoaderFailed)
}

// IsClosedError returns true if the error reports a closed store.
func IsClosedError(err error) bool {
	return hasCode(err, ErrCodeStoreClosed)
}

// NewReducerPanicError creates a RuntimeError for a recovered reducer panic.
// When the panic value is an error it becomes the cause.
func NewReducerPanicError(a action.Action, recovered any, stack []byte) *RuntimeError {
	cause, _ := recovered.(error)
	re := &RuntimeError{
		Code:    ErrCodeReducerPanic,
		Message: "reducer panicked",
		Action:  a.Name(),
		Flow:    a.Flow,
		Details: map[string]string{"panic": fmt.Sprint(recovered)},
		Cause:   cause,
	}
	if len(stack) > 0 {
		re.Details["stack"] = string(stack)
	}
	return re
}

// NewLoaderError creates a RuntimeError for an async loader failure.
// origin is the Base action that started the loader.
func NewLoaderError(origin action.Action, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeLoaderFailed,
		Message: fmt.Sprintf("loader for %q failed", origin.Type),
		Action:  origin.Name(),
		Flow:    origin.Flow,
		Cause:   cause,
	}
}

// NewClosedError creates a RuntimeError for an action sent to a closed store.
func NewClosedError(a action.Action) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeStoreClosed,
		Message: "store is closed",
		Action:  a.Name(),
		Flow:    a.Flow,
	}
}

func newInvalidActionError(a action.Action, errs []action.ValidationError) *RuntimeError {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return &RuntimeError{
		Code:    ErrCodeInvalidAction,
		Message: "invalid action",
		Action:  a.Name(),
		Flow:    a.Flow,
		Cause:   errors.Join(joined...),
	}
}

func newRegistrationError(format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRegistration,
		Message: fmt.Sprintf(format, args...),
	}
}
