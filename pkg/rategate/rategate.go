// Package rategate clamps each stream's persisted frame rate with a
// fixed-window counter.
//
// The persistence workers are shared across streams, so several workers may
// race on frames of the same stream at once; the gate is the sole
// correctness boundary for rate. Frames queued during a stall are judged
// against the current window like any other frame, so a backlog is dropped
// instead of catching up.
package rategate

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const window = 1 * time.Second

type budget struct {
	mu          sync.Mutex
	targetFPS   int
	windowStart time.Time
	admitted    int
}

type Gate struct {
	budgets *xsync.Map[string, *budget]
}

func New() *Gate {
	return &Gate{budgets: xsync.NewMap[string, *budget]()}
}

// SetTarget registers or updates the per-second budget for a stream.
// A target of zero or less removes the budget.
func (g *Gate) SetTarget(streamID string, fps int) {
	if fps <= 0 {
		g.budgets.Delete(streamID)
		return
	}
	b, _ := g.budgets.LoadOrStore(streamID, &budget{targetFPS: fps})
	b.mu.Lock()
	b.targetFPS = fps
	b.mu.Unlock()
}

// Target returns the configured budget for a stream, zero when unclamped.
func (g *Gate) Target(streamID string) int {
	b, ok := g.budgets.Load(streamID)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.targetFPS
}

// Admit reports whether a frame of the given stream may be persisted at now.
// Streams without a configured budget are never clamped.
//
// Callers holding the same stream serialize briefly on the budget lock, which
// is what keeps concurrent workers from double-admitting past the target.
func (g *Gate) Admit(streamID string, now time.Time) bool {
	b, ok := g.budgets.Load(streamID)
	if !ok {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= window || now.Before(b.windowStart) {
		b.windowStart = now
		b.admitted = 0
	}
	if b.admitted >= b.targetFPS {
		return false
	}
	b.admitted++
	return true
}
