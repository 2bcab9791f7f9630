package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/reducer"
)

// Executor runs loader work off the dispatch path.
//
// Whatever the executor, a loader's result only reaches the state through the
// store's inbox, which the owner goroutine drains in Run or Settle. An async
// action's .loading phase is therefore always dispatched before its .done.
type Executor interface {
	Go(fn func())
}

// GoExecutor runs each loader on its own goroutine. It is the default.
type GoExecutor struct{}

// Go starts fn on a new goroutine.
func (GoExecutor) Go(fn func()) { go fn() }

// InlineExecutor runs each loader synchronously inside the continuation that
// starts it. The result is still delivered through the inbox, so it is only
// applied by the next Run or Settle. Useful for deterministic tests and the
// conformance harness.
type InlineExecutor struct{}

// Go runs fn immediately.
func (InlineExecutor) Go(fn func()) { fn() }

// runTask executes a loader task and converts a panic into an error.
func runTask(ctx context.Context, task reducer.Task) (done action.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task(ctx)
}
