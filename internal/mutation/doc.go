// Package mutation delivers store mutations to independent subscribers.
//
// Every subscription owns a private Channel. A Channel never drops a
// mutation: when a push finds the ring full, capacity doubles. A consumer
// that is busy (running a forked reaction, losing a race, evaluating a slow
// predicate) therefore sees every mutation that happened after it
// subscribed, in publication order, one wake per mutation.
//
// # Growth Policy
//
// Channels start at DefaultCapacity slots (100) and double on overflow. The
// buffer is never shrunk while the subscription is live; Unsubscribe releases
// it. Growth is a resource-usage concern only: a slow consumer costs memory,
// never correctness. vigil_mutation_buffer_growths_total counts doublings.
//
// # Ordering
//
// Broadcaster.Publish must be called by a single writer (the store holds its
// lock while publishing). Each subscription then receives mutations in the
// order they were published. Subscriptions never share buffers, so one slow
// consumer cannot starve another.
package mutation
