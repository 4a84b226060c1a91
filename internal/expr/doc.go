// Package expr compiles CUE expressions into engine predicates, transition
// conditions and argument functions, so definitions can be authored in
// scenario files instead of Go.
//
// Expressions see the snapshot through fixed names: `state` for predicates,
// `prev` and `cur` for transitions and arguments. Snapshots are bound with
// FillPath, so any value CUE can encode (maps, structs with json tags) works.
// CUE has no % operator; use mod(a, b).
package expr
