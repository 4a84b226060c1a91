// Package store is an in-memory, reducer-driven owner of immutable state
// snapshots.
//
// A Store applies actions through a Reducer, stamps each resulting snapshot
// with a logical seq from its Clock, optionally journals it, and publishes
// it to every subscription through a mutation.Broadcaster. It is the state
// source the engine observes; the engine never mutates it.
//
// Example:
//
//	st := store.New(reduce, State{Val: 0})
//	go engine.ObserveUntil(ctx, st, engine.Is(func(s State) bool { return s.Val > 40 }))
//	st.Dispatch(ctx, store.Action{Type: "set", Payload: map[string]any{"val": 45}})
package store
