// Package engine coordinates tasks that react to a mutating state source.
//
// Three operations are provided, all driven by a Source whose every mutation
// is delivered, in order and without drops, to each subscription:
//
//   - ObserveUntil / ObserveWhile: suspend until a predicate becomes true
//     (or false) for the current snapshot.
//   - ObserveAndRun: fork a reaction for every matching transition between
//     consecutive snapshots, until an optional termination predicate holds.
//   - RunWhile: race a primary task against one watch per named invariant;
//     when an invariant goes false the primary is cancelled and violation
//     handlers run with every invariant false at that instant.
//
// ARCHITECTURE:
//
// Per-mutation snapshots:
// Each mutation carries the snapshot it produced. Predicates are evaluated
// against those snapshots one by one, so an A->B->A burst that the consumer
// was too busy to watch live is still seen as two transitions.
//
// Races:
// Race starts all entries, resolves on the first to return, cancels the rest
// and waits for them. Violation handling starts only after the primary task
// has exited.
//
// Reactions:
// Reactions are linked to the reactor by default (errgroup semantics). See
// WithDetachedReactions for fire-and-forget.
//
// Observability:
// Sessions log through slog, open an OpenTelemetry span, and count outcomes
// in Prometheus. WithRecorder persists outcomes (see package journal).
package engine
