// Package engine implements the store: the dispatch engine and the
// configurator that builds it.
//
// ARCHITECTURE:
//
// Single Owner:
// A store is driven by one goroutine. Dispatch reduces synchronously,
// commits, notifies subscribers and then runs deferred continuations. A
// Dispatch issued from inside a reducer is rejected with ErrReentrantDispatch,
// not queued.
//
// Async Actions:
// An async registration defers a continuation instead of reducing. The
// continuation dispatches {type}.loading and hands the loader to an Executor.
// The loader's outcome lands in the store's inbox, and the owner applies it
// as {type}.done from Run or Settle. So .loading is always visible to
// subscribers before .done, even for loaders that finish instantly.
//
// Dispatch Flow:
//  1. Dispatch(action) or an inbox message (Post, loader completion)
//  2. reducer tree computes the next state (panics recovered, nothing committed)
//  3. state committed, clock advanced, recorder called
//  4. subscribers notified in subscription order
//  5. pending continuations drained
//
// Stores are independent: no queue, clock or registry is global.
package engine
