package rategate_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/privstream/privrec/pkg/rategate"
	"github.com/stretchr/testify/require"
)

func TestAdmitWithinBudget(t *testing.T) {
	g := rategate.New()
	g.SetTarget("stream01", 3)

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, g.Admit("stream01", now))
	}
	require.False(t, g.Admit("stream01", now))
}

func TestWindowReset(t *testing.T) {
	g := rategate.New()
	g.SetTarget("stream01", 2)

	now := time.Now()
	require.True(t, g.Admit("stream01", now))
	require.True(t, g.Admit("stream01", now))
	require.False(t, g.Admit("stream01", now))

	later := now.Add(time.Second)
	require.True(t, g.Admit("stream01", later))
}

// A backlog that arrives late is judged against the current window and
// dropped; it does not catch up on missed windows.
func TestBacklogDoesNotCatchUp(t *testing.T) {
	g := rategate.New()
	g.SetTarget("stream01", 5)

	// stall of several seconds, then a burst at one instant
	now := time.Now().Add(10 * time.Second)
	admitted := 0
	for i := 0; i < 50; i++ {
		if g.Admit("stream01", now) {
			admitted++
		}
	}
	require.Equal(t, 5, admitted)
}

// N workers racing on the same stream must never over-admit the window.
func TestConcurrentWorkersNeverOverAdmit(t *testing.T) {
	g := rategate.New()
	g.SetTarget("stream01", 10)

	now := time.Now()
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if g.Admit("stream01", now) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(10), admitted.Load())
}

func TestIndependentStreams(t *testing.T) {
	g := rategate.New()
	g.SetTarget("stream01", 1)
	g.SetTarget("stream02", 4)

	now := time.Now()
	count := func(id string) int {
		n := 0
		for i := 0; i < 10; i++ {
			if g.Admit(id, now) {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, count("stream01"))
	require.Equal(t, 4, count("stream02"))
}

func TestUnconfiguredStreamUnclamped(t *testing.T) {
	g := rategate.New()
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.True(t, g.Admit("adhoc", now))
	}
}
