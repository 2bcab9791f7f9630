package engine

import (
	"sync"

	"github.com/roach88/treestore/internal/action"
)

// MessageType distinguishes between inbox message kinds.
type MessageType int

const (
	// MessageTypePosted is an action posted from any goroutine.
	MessageTypePosted MessageType = iota + 1
	// MessageTypeCompletion is the outcome of an async loader.
	MessageTypeCompletion
)

// Message wraps posted actions and loader completions for the inbox.
type Message struct {
	Type MessageType

	// Action is the action to dispatch: the posted action, or the Done
	// action a loader produced.
	Action action.Action

	// Origin is the Base action that started a loader (completions only).
	Origin action.Action

	// Err is the loader failure, if any (completions only).
	Err error
}

// inbox is a thread-safe FIFO queue of messages for a store's owner goroutine.
//
// The inbox is unbounded so loaders and Post never block on a slow owner.
// It uses a channel for signaling to enable context-aware waiting in Run
// and Settle.
type inbox struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
	signal   chan struct{} // Signals message availability (buffered, size 1)
}

// newInbox creates an empty inbox.
func newInbox() *inbox {
	return &inbox{
		messages: make([]Message, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the inbox.
// Thread-safe: may be called from any goroutine.
// Returns false if the inbox is closed.
func (q *inbox) Enqueue(m Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.messages = append(q.messages, m)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front message without blocking.
// Returns (Message{}, false) if the inbox is empty.
func (q *inbox) TryDequeue() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return Message{}, false
	}

	m := q.messages[0]

	// Nil out the slot so the backing array does not retain state trees.
	q.messages[0] = Message{}

	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}

	return m, true
}

// Wait returns a channel that signals when messages may be available.
// The channel is closed once the inbox is closed.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current inbox length.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close rejects further messages and wakes any waiters.
// Messages already queued can still be dequeued.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
