// Package state provides the immutable value tree held by a store.
//
// A state tree is built from a small, sealed set of value types: Null, String,
// Int, Float, Bool, *Array and *Object. Containers are pointers and are never
// mutated after construction; every "write" returns a new container that shares
// all untouched children with its input.
//
// Identity vs equality:
//   - Same(a, b) is reference identity for containers and value equality for
//     scalars. It is the cheap "did this subtree change" check that reducers,
//     scoped registrations and subscribers rely on.
//   - Equal(a, b) is deep structural equality, used by tests and assertions.
//
// Paths and selectors:
//   - A Path is an ordered list of keys (object fields or array indexes).
//   - A Selector reads a sub-tree through a Cursor. ResolvePath runs a selector
//     once against a recording cursor to learn which path it reads.
//   - SetIn rebuilds only the spine named by a path (structural sharing).
//
// This package imports nothing internal. All other internal packages import it.
package state
