package mutation

import (
	"context"
	"sync"
)

// Broadcaster fans published mutations out to every live subscription.
//
// Publish is expected to be called by a single writer. Subscribe and
// Unsubscribe are safe from any goroutine; once Unsubscribe returns, the
// subscription receives no further deliveries.
type Broadcaster[S any] struct {
	mu       sync.Mutex
	subs     []*Subscription[S]
	capacity int
}

// NewBroadcaster creates a broadcaster whose subscriptions start with the
// given channel capacity.
func NewBroadcaster[S any](capacity int) *Broadcaster[S] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster[S]{capacity: capacity}
}

// Subscribe registers a new subscription with its own buffer.
func (b *Broadcaster[S]) Subscribe() *Subscription[S] {
	sub := &Subscription[S]{
		ch:    NewChannel[S](b.capacity),
		owner: b,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	activeSubscriptions.Inc()
	return sub
}

// Publish delivers m to every subscription in subscription order.
func (b *Broadcaster[S]) Publish(m Mutation[S]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		sub.ch.Push(m)
	}
}

// Len returns the number of live subscriptions.
func (b *Broadcaster[S]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Idle reports whether at least min subscriptions are live and every one of
// them is parked waiting for a mutation with an empty buffer.
func (b *Broadcaster[S]) Idle(min int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) < min {
		return false
	}
	for _, sub := range b.subs {
		if !sub.ch.Idle() {
			return false
		}
	}
	return true
}

func (b *Broadcaster[S]) remove(target *Subscription[S]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscription is one consumer's view of the mutation stream.
type Subscription[S any] struct {
	ch    *Channel[S]
	owner *Broadcaster[S]
	once  sync.Once
}

// Next blocks until at least one mutation has occurred since the previous
// call (or since Subscribe, for the first call) and returns the oldest one.
func (s *Subscription[S]) Next(ctx context.Context) (Mutation[S], error) {
	return s.ch.Next(ctx)
}

// Pending returns the number of undelivered mutations.
func (s *Subscription[S]) Pending() int {
	return s.ch.Len()
}

// Capacity returns the current buffer capacity.
func (s *Subscription[S]) Capacity() int {
	return s.ch.Cap()
}

// Unsubscribe detaches the subscription and releases its buffer.
// Safe to call more than once.
func (s *Subscription[S]) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s)
		s.ch.Close()
		activeSubscriptions.Dec()
	})
}
