package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/treestore/internal/action"
)

// DefaultMaxDepth is the default limit on nested dispatches.
const DefaultMaxDepth = 1000

// depthQuota limits how deeply dispatches may nest.
//
// Reducers cannot dispatch, but subscribers and continuations can, and each
// such dispatch runs inside the one that notified them. A subscriber that
// dispatches on every change would otherwise recurse until the stack
// overflows.
type depthQuota struct {
	max     int
	current int
}

// enter counts one more level of nesting. It fails, without counting, when
// the limit would be exceeded.
func (q *depthQuota) enter(a action.Action) error {
	if q.max > 0 && q.current >= q.max {
		return &DepthExceededError{
			Action: a.Name(),
			Depth:  q.current + 1,
			Limit:  q.max,
		}
	}
	q.current++
	return nil
}

func (q *depthQuota) leave() {
	q.current--
}

// DepthExceededError is returned by a Dispatch nested more than the
// configured number of levels deep (see WithMaxDepth).
type DepthExceededError struct {
	Action string
	Depth  int
	Limit  int
}

// Error implements the error interface.
func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("dispatch of %s exceeded max nesting depth: %d > %d limit",
		e.Action, e.Depth, e.Limit)
}

// IsDepthExceededError returns true if the error is a DepthExceededError.
// Uses errors.As to handle wrapped errors.
func IsDepthExceededError(err error) bool {
	var de *DepthExceededError
	return errors.As(err, &de)
}

// WithMaxDepth sets the nested dispatch limit. Zero or less disables it.
// Default: DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(s *Store) {
		s.depth.max = depth
	}
}
