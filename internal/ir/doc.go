// Package ir holds the compiled form of declarative store definitions.
//
// The compiler turns CUE into these types; the builder turns them into a
// configured store. ir imports only the state package, so both sides can
// depend on it without cycles.
//
// Key design constraints:
//   - Paths are kept in their dotted string form ("deep.nested.prop")
//   - A definition is identified by a content hash (SpecHash), never by
//     file name or load order
//   - All JSON tags use snake_case
package ir
