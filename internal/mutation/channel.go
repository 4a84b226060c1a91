package mutation

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the initial number of slots in a Channel.
const DefaultCapacity = 100

// ErrClosed is returned by Next once the channel has been closed.
var ErrClosed = errors.New("mutation channel closed")

// Mutation is one state change delivered to a subscription.
//
// State is the snapshot produced by the mutation. It is owned by the store
// and must be treated as read-only.
type Mutation[S any] struct {
	Seq    int64
	Action string
	State  S
}

// Channel is a FIFO of pending mutations for exactly one consumer.
//
// The ring grows without bound so pushes never block and never drop. The
// consumer side uses a 1-slot signal channel for context-aware waiting;
// signals coalesce but Next re-checks the ring on every wake, so one pending
// mutation is always returned per call.
//
// Thread-safety: Push, Len, Cap and Close are safe from any goroutine. Next
// must be called from a single consumer goroutine.
type Channel[S any] struct {
	mu      sync.Mutex
	ring    []Mutation[S]
	head    int
	count   int
	closed  bool
	waiting bool
	signal  chan struct{}
	done    chan struct{}
}

// NewChannel creates an empty channel with the given initial capacity.
// Non-positive capacities use DefaultCapacity.
func NewChannel[S any](capacity int) *Channel[S] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[S]{
		ring:   make([]Mutation[S], capacity),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a mutation, doubling the ring when it is full.
// Returns false if the channel is closed.
func (c *Channel[S]) Push(m Mutation[S]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.count == len(c.ring) {
		c.grow()
	}

	c.ring[(c.head+c.count)%len(c.ring)] = m
	c.count++

	select {
	case c.signal <- struct{}{}:
	default:
	}

	return true
}

// grow doubles the ring, unrolling pending entries to the front.
// Caller must hold c.mu.
func (c *Channel[S]) grow() {
	next := make([]Mutation[S], len(c.ring)*2)
	for i := 0; i < c.count; i++ {
		next[i] = c.ring[(c.head+i)%len(c.ring)]
	}
	c.ring = next
	c.head = 0
	bufferGrowths.Inc()
}

// pop removes the front entry. Caller must hold c.mu and ensure count > 0.
func (c *Channel[S]) pop() Mutation[S] {
	m := c.ring[c.head]

	// Zero the slot so the ring does not pin old snapshots.
	var zero Mutation[S]
	c.ring[c.head] = zero

	c.head = (c.head + 1) % len(c.ring)
	c.count--
	return m
}

// TryNext removes the front mutation without blocking.
func (c *Channel[S]) TryNext() (Mutation[S], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.count == 0 {
		var zero Mutation[S]
		return zero, false
	}
	return c.pop(), true
}

// Next blocks until a mutation is pending, then removes and returns it.
//
// Returns ctx.Err() if the context ends first, or ErrClosed once the
// channel is closed.
func (c *Channel[S]) Next(ctx context.Context) (Mutation[S], error) {
	var zero Mutation[S]

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if c.count > 0 {
			m := c.pop()
			c.waiting = false
			c.mu.Unlock()
			return m, nil
		}
		c.waiting = true
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.waiting = false
			c.mu.Unlock()
			return zero, ctx.Err()
		case <-c.done:
		case <-c.signal:
		}
	}
}

// Idle reports whether the consumer is parked in Next with nothing pending,
// or the channel is closed. A consumer that has popped a mutation is not
// idle until it asks for the next one.
func (c *Channel[S]) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || (c.waiting && c.count == 0)
}

// Len returns the number of pending mutations.
func (c *Channel[S]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Cap returns the current ring capacity.
func (c *Channel[S]) Cap() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ring)
}

// Close releases the buffer and wakes a blocked consumer.
// Pending mutations are discarded. Close is idempotent.
func (c *Channel[S]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.ring = nil
	c.head = 0
	c.count = 0
	close(c.done)
}
