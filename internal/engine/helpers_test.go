package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vigil/internal/mutation"
	"github.com/roach88/vigil/internal/store"
)

const waitFor = 2 * time.Second

type testState struct {
	Val  int
	Val1 int
	Val2 int
}

func reduceTest(s testState, a store.Action) (testState, error) {
	switch a.Type {
	case "increment":
		s.Val++
	case "set":
		if v, ok := a.Payload["val"].(int); ok {
			s.Val = v
		}
		if v, ok := a.Payload["val1"].(int); ok {
			s.Val1 = v
		}
		if v, ok := a.Payload["val2"].(int); ok {
			s.Val2 = v
		}
	case "noop":
	default:
		return s, fmt.Errorf("%w: %s", store.ErrUnknownAction, a.Type)
	}
	return s, nil
}

func setupTestStore(t *testing.T, initial testState, opts ...store.Option) *store.Store[testState] {
	t.Helper()
	return store.New(reduceTest, initial, opts...)
}

func dispatch(t *testing.T, st *store.Store[testState], typ string, kv ...any) {
	t.Helper()

	var payload map[string]any
	if len(kv) > 0 {
		payload = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			payload[kv[i].(string)] = kv[i+1]
		}
	}
	_, err := st.Dispatch(context.Background(), store.Action{Type: typ, Payload: payload})
	require.NoError(t, err)
}

func storeSet(key string, v int) store.Action {
	return store.Action{Type: "set", Payload: map[string]any{key: v}}
}

// waitSubscribers blocks until n observers are parked on the store.
func waitSubscribers(t *testing.T, st *store.Store[testState], n int) {
	t.Helper()
	require.Eventually(t, func() bool { return st.Idle(n) && st.Subscribers() == n },
		waitFor, time.Millisecond, "expected %d idle subscribers", n)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOpts(ids ...string) []Option {
	opts := []Option{WithLogger(quietLogger())}
	if len(ids) > 0 {
		opts = append(opts, WithIDGenerator(&scriptedIDs{ids: ids}))
	}
	return opts
}

// scriptedIDs hands out ids in order and fails loudly when a test starts
// more sessions than it scripted.
type scriptedIDs struct {
	mu  sync.Mutex
	ids []string
}

func (g *scriptedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		panic("scriptedIDs: no ids left")
	}
	id := g.ids[0]
	g.ids = g.ids[1:]
	return id
}

// countingSource records how often the engine subscribes.
type countingSource[S any] struct {
	Source[S]
	subscribes atomic.Int32
}

func (c *countingSource[S]) Subscribe() (S, *mutation.Subscription[S]) {
	c.subscribes.Add(1)
	return c.Source.Subscribe()
}

type memRecorder struct {
	mu      sync.Mutex
	records []SessionRecord
}

func (r *memRecorder) RecordSession(_ context.Context, rec SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) all() []SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SessionRecord(nil), r.records...)
}

type result[T any] struct {
	val T
	err error
}

func async[T any](f func() (T, error)) <-chan result[T] {
	ch := make(chan result[T], 1)
	go func() {
		v, err := f()
		ch <- result[T]{val: v, err: err}
	}()
	return ch
}

func await[T any](t *testing.T, ch <-chan result[T]) (T, error) {
	t.Helper()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for result")
		var zero T
		return zero, nil
	}
}
