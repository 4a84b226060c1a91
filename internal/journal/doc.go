// Package journal provides SQLite-backed durable storage for store
// mutations and session outcomes.
//
// The journal is append-only:
//   - Mutations: every published store mutation with its snapshot as JSON
//   - Sessions: the outcome and violation tags of every finished session
//
// It is an audit trail. Nothing reads it back to resume an observation.
//
// # Ordering
//
//   - Mutations are keyed and ordered by seq (the store's logical clock)
//   - Sessions are ordered by insertion, never by wall-clock time
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package journal
