package engine

import (
	"reflect"

	"github.com/roach88/treestore/internal/state"
)

// Subscriber is notified after every successful dispatch, whether or not the
// state changed. Relevance is the subscriber's decision (see Watch).
//
// A store keeps at most one registration per subscriber, compared with ==, so
// subscribers must be comparable. Pointer types always are.
type Subscriber interface {
	StateChanged(prev, curr state.Value)
}

// Listener adapts a function to Subscriber. Each NewListener call is a
// distinct subscriber.
type Listener struct {
	fn func(prev, curr state.Value)
}

// NewListener wraps fn.
func NewListener(fn func(prev, curr state.Value)) *Listener {
	return &Listener{fn: fn}
}

// StateChanged calls the wrapped function.
func (l *Listener) StateChanged(prev, curr state.Value) {
	if l != nil && l.fn != nil {
		l.fn(prev, curr)
	}
}

// Watcher notifies only when the value a selector reads changes identity.
type Watcher struct {
	sel state.Selector
	fn  func(prev, curr state.Value)
}

// Watch returns a subscriber that calls fn with the old and new selected
// values when they are not the same node. Structural sharing makes this a
// cheap comparison: untouched subtrees keep their identity.
func Watch(sel state.Selector, fn func(prev, curr state.Value)) *Watcher {
	return &Watcher{sel: sel, fn: fn}
}

// StateChanged implements Subscriber.
func (w *Watcher) StateChanged(prev, curr state.Value) {
	if w == nil || w.fn == nil || state.Same(prev, curr) {
		return
	}
	before := state.Select(prev, w.sel)
	after := state.Select(curr, w.sel)
	if state.Same(before, after) {
		return
	}
	w.fn(before, after)
}

// isComparable checks the dynamic value: a struct whose interface field
// holds a func has a comparable type but panics under ==.
func isComparable(sub Subscriber) bool {
	return sub != nil && reflect.ValueOf(sub).Comparable()
}
