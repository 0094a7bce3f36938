package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/privstream/privrec/pkg/queue"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := queue.New[int](8)
	for i := 0; i < 5; i++ {
		require.True(t, q.TryPush(i))
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Pop(context.Background(), time.Second)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

// A burst of capacity+K items must drop exactly K and never block.
func TestDropNewestUnderBurst(t *testing.T) {
	const capacity = 16
	const overflow = 7

	q := queue.New[int](capacity)

	dropped := 0
	for i := 0; i < capacity+overflow; i++ {
		if !q.TryPush(i) {
			dropped++
		}
	}

	require.Equal(t, overflow, dropped)
	require.Equal(t, capacity, q.Len())

	// the accepted items are the oldest ones, in order
	for i := 0; i < capacity; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestPopTimeout(t *testing.T) {
	q := queue.New[int](1)

	start := time.Now()
	_, ok := q.Pop(context.Background(), 50*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPopCancelled(t *testing.T) {
	q := queue.New[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Pop(ctx, time.Minute)
	require.False(t, ok)
}
