package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/vigil/internal/mutation"
)

// ErrUnknownAction is returned by reducers for action types they do not handle.
var ErrUnknownAction = errors.New("unknown action")

// Action is a request to change state.
type Action struct {
	Type    string
	Payload map[string]any
}

// Reducer computes the next snapshot from the current one.
// It must not mutate state in place.
type Reducer[S any] func(state S, action Action) (S, error)

// Journal durably records mutations as they are applied.
type Journal interface {
	AppendMutation(ctx context.Context, seq int64, action string, state []byte) error
}

// Store owns the authoritative state snapshot and publishes a mutation for
// every successful dispatch.
//
// Thread-safety model:
//   - Dispatch: safe from any goroutine; dispatches are serialized
//   - State, Subscribe: safe from any goroutine; they never wait on the
//     reducer or the journal of an in-flight dispatch
//
// INVARIANTS:
//   - seq strictly increases by one per published mutation
//   - every subscriber receives mutations in seq order
//   - a subscriber registered by Subscribe sees every mutation after the
//     snapshot Subscribe returned
type Store[S any] struct {
	// dispatchMu serializes Dispatch, including the journal write.
	dispatchMu sync.Mutex

	// mu guards state and subscription registration. It is held only to
	// swap the snapshot and publish.
	mu    sync.RWMutex
	state S

	reduce  Reducer[S]
	clock   *Clock
	hub     *mutation.Broadcaster[S]
	journal Journal
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*config)

type config struct {
	capacity int
	journal  Journal
	clock    *Clock
	logger   *slog.Logger
}

// WithInitialBuffer sets the starting capacity of each subscription buffer.
//
// Default: mutation.DefaultCapacity (100). Buffers double on overflow.
func WithInitialBuffer(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithJournal records every applied mutation before it is published.
func WithJournal(j Journal) Option {
	return func(c *config) {
		c.journal = j
	}
}

// WithClock continues numbering from an existing clock.
func WithClock(clock *Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a store holding initial and applying reduce on dispatch.
func New[S any](reduce Reducer[S], initial S, opts ...Option) *Store[S] {
	cfg := config{
		capacity: mutation.DefaultCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = new(Clock)
	}

	return &Store[S]{
		state:   initial,
		reduce:  reduce,
		clock:   cfg.clock,
		hub:     mutation.NewBroadcaster[S](cfg.capacity),
		journal: cfg.journal,
		logger:  cfg.logger,
	}
}

// State returns the latest snapshot. Never blocks on subscribers.
func (s *Store[S]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a subscription and returns the snapshot it starts
// from. Registration and the read happen under the same lock as publish, so
// no mutation can fall between them.
func (s *Store[S]) Subscribe() (S, *mutation.Subscription[S]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.hub.Subscribe()
}

// Dispatch applies action and publishes the resulting mutation.
//
// Every successful dispatch publishes, even when the reducer returns an
// equal snapshot; observers decide for themselves whether state changed.
// On reducer or journal failure nothing is published and state is unchanged.
func (s *Store[S]) Dispatch(ctx context.Context, action Action) (S, error) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	// Only Dispatch writes state, so reading it here needs no other lock.
	cur := s.State()
	next, err := s.reduce(cur, action)
	if err != nil {
		return cur, fmt.Errorf("dispatch %s: %w", action.Type, err)
	}

	seq := s.clock.Last() + 1

	if s.journal != nil {
		data, err := json.Marshal(next)
		if err != nil {
			return cur, fmt.Errorf("dispatch %s: encode state: %w", action.Type, err)
		}
		if err := s.journal.AppendMutation(ctx, seq, action.Type, data); err != nil {
			return cur, fmt.Errorf("dispatch %s: %w", action.Type, err)
		}
	}

	s.mu.Lock()
	s.clock.Advance()
	s.state = next
	s.hub.Publish(mutation.Mutation[S]{Seq: seq, Action: action.Type, State: next})
	s.mu.Unlock()

	s.logger.Debug("mutation published",
		"seq", seq,
		"action", action.Type,
		"subscribers", s.hub.Len(),
	)

	return next, nil
}

// Seq returns the sequence number of the latest mutation.
func (s *Store[S]) Seq() int64 {
	return s.clock.Last()
}

// Subscribers returns the number of live subscriptions.
func (s *Store[S]) Subscribers() int {
	return s.hub.Len()
}

// Idle reports whether at least min subscriptions are live and all of them
// have consumed every published mutation and are waiting for the next one.
func (s *Store[S]) Idle(min int) bool {
	return s.hub.Idle(min)
}
