package persist

import (
	"context"
	"sync"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/segment"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/pkg/pool"
	"github.com/privstream/privrec/pkg/rategate"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

var logger = logrus.WithField("service", "persist")

const popTimeout = 250 * time.Millisecond

// Service is the fixed-size pool of persistence workers. For each frame a
// worker takes its stream's lock, consults the rate gate, writes into the
// stream's current segment (lazily opening one), and checks rotation — all
// inside the same critical section, so segment append order equals
// admission order even though the pool is shared across streams.
type Service struct {
	cfg    *config.Config
	gate   *rategate.Gate
	store  *segment.Store
	stats  *stats.Service
	queues *types.Queues
	bp     *pool.BytesPool

	locks *xsync.Map[string, *sync.Mutex]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	gate *rategate.Gate,
	store *segment.Store,
	st *stats.Service,
	queues *types.Queues,
	bp *pool.BytesPool,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:    cfg,
		gate:   gate,
		store:  store,
		stats:  st,
		queues: queues,
		bp:     bp,
		locks:  xsync.NewMap[string, *sync.Mutex](),
		ctx:    ctx,
		cancel: cancel,
	}

	for _, spec := range cfg.Streams {
		gate.SetTarget(spec.ID, spec.TargetFPS)
	}

	lc.Append(fx.StartStopHook(
		func() {
			logger.Infof("starting %d persistence workers", cfg.PersistWorkers)
			for i := 0; i < cfg.PersistWorkers; i++ {
				s.wg.Add(1)
				go s.worker()
			}
		},
		func() {
			s.drain()
			cancel()
			s.wg.Wait()
		},
	))

	return s
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		frame, ok := s.queues.Persistence.Pop(s.ctx, popTimeout)
		if !ok {
			if s.ctx.Err() != nil {
				return
			}
			continue
		}
		s.Handle(frame, time.Now())
	}
}

// Handle persists one frame. Exported for the pipeline tests; production
// callers are the pool workers only.
func (s *Service) Handle(frame *types.Frame, now time.Time) {
	mu := s.lockFor(frame.StreamID)
	mu.Lock()
	defer mu.Unlock()
	defer s.bp.PutBytes(frame.Payload)

	if !s.gate.Admit(frame.StreamID, now) {
		s.stats.FrameRejected(frame.StreamID)
		return
	}

	seg, ok := s.store.Current(frame.StreamID)
	if !ok {
		var err error
		seg, err = s.store.Open(frame.StreamID, now)
		if err != nil {
			logger.Errorf("cannot open segment for stream %s: %v", frame.StreamID, err)
			s.stats.WriteFailed(frame.StreamID)
			return
		}
	}

	if err := seg.Write(frame.Payload, frame.CapturedAt); err != nil {
		logger.Errorf("cannot write frame %s/%d: %v", frame.StreamID, frame.Seq, err)
		s.stats.WriteFailed(frame.StreamID)
		s.store.Abandon(seg)
		return
	}
	s.stats.FrameSaved(frame.StreamID)

	s.maybeRotate(seg, now)
}

// maybeRotate finalizes the segment once it holds a full duration of frames
// at the target rate, with wall clock as the safety fallback. Frame count
// drives rotation so segments land close to the target playback length even
// when the input temporarily outruns the gate.
func (s *Service) maybeRotate(seg *segment.Segment, now time.Time) {
	target := int64(s.gate.Target(seg.StreamID)) * int64(s.cfg.SegmentSeconds)
	maxAge := time.Duration(float64(s.cfg.SegmentDuration()) * (1 + s.cfg.SegmentTolerance))

	byCount := target > 0 && seg.FrameCount() >= target
	byAge := seg.Age(now) >= maxAge
	if !byCount && !byAge {
		return
	}

	if _, err := s.store.Finalize(seg); err != nil {
		logger.Errorf("cannot rotate segment for stream %s: %v", seg.StreamID, err)
		s.stats.WriteFailed(seg.StreamID)
		return
	}
	s.stats.SegmentFinalized()
}

func (s *Service) lockFor(streamID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(streamID, &sync.Mutex{})
	return mu
}

func (s *Service) drain() {
	deadline := time.Now().Add(s.cfg.ShutdownGrace)
	for s.queues.Persistence.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
