package mutation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_IndependentBuffers(t *testing.T) {
	b := NewBroadcaster[string](2)
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer slow.Unsubscribe()
	defer fast.Unsubscribe()

	for i := int64(1); i <= 5; i++ {
		b.Publish(Mutation[string]{Seq: i, State: "s"})
	}

	// Drain the fast subscriber completely.
	for i := int64(1); i <= 5; i++ {
		m, err := fast.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, m.Seq)
	}

	assert.Equal(t, 0, fast.Pending())
	assert.Equal(t, 5, slow.Pending(), "slow subscriber keeps its own backlog")
	assert.GreaterOrEqual(t, slow.Capacity(), 5)
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroadcaster[int](0)
	sub := b.Subscribe()
	require.Equal(t, 1, b.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, b.Len())

	b.Publish(Mutation[int]{Seq: 1})
	assert.Equal(t, 0, sub.Pending())

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBroadcaster_Idle(t *testing.T) {
	b := NewBroadcaster[int](0)
	assert.False(t, b.Idle(1), "no subscribers yet")
	assert.True(t, b.Idle(0))

	sub := b.Subscribe()
	defer sub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan int64, 10)
	go func() {
		for {
			m, err := sub.Next(ctx)
			if err != nil {
				return
			}
			seen <- m.Seq
		}
	}()

	require.Eventually(t, func() bool { return b.Idle(1) }, time.Second, time.Millisecond)

	b.Publish(Mutation[int]{Seq: 1})
	assert.Equal(t, int64(1), <-seen)
	require.Eventually(t, func() bool { return b.Idle(1) }, time.Second, time.Millisecond)
	assert.False(t, b.Idle(2))
}
