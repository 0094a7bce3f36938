package process

import (
	"context"
	"sync"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/pkg/pool"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

var logger = logrus.WithField("service", "process")

// popTimeout bounds the queue wait so workers re-check cancellation.
const popTimeout = 250 * time.Millisecond

// Transform is the external privacy-blur contract: payload in, transformed
// payload out. Pure per call, must not touch frame identity fields.
type Transform interface {
	Apply(payload []byte) ([]byte, error)
}

// Service is the fixed-size pool of stream-agnostic blur workers between
// the processing and persistence queues.
type Service struct {
	cfg       *config.Config
	transform Transform
	stats     *stats.Service
	queues    *types.Queues
	bp        *pool.BytesPool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	transform Transform,
	st *stats.Service,
	queues *types.Queues,
	bp *pool.BytesPool,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:       cfg,
		transform: transform,
		stats:     st,
		queues:    queues,
		bp:        bp,
		ctx:       ctx,
		cancel:    cancel,
	}

	lc.Append(fx.StartStopHook(
		func() {
			logger.Infof("starting %d processing workers", cfg.ProcessWorkers)
			for i := 0; i < cfg.ProcessWorkers; i++ {
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
		frame, ok := s.queues.Processing.Pop(s.ctx, popTimeout)
		if !ok {
			if s.ctx.Err() != nil {
				return
			}
			continue
		}
		s.handle(frame)
	}
}

// handle blurs one frame and passes it on. Every failure is contained here:
// a transform error or panic costs that frame only, never the worker.
func (s *Service) handle(frame *types.Frame) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("transform panicked on frame %s/%d: %v", frame.StreamID, frame.Seq, r)
			s.stats.TransformFailed(frame.StreamID)
			s.bp.PutBytes(frame.Payload)
		}
	}()

	out, err := s.transform.Apply(frame.Payload)
	if err != nil {
		s.stats.TransformFailed(frame.StreamID)
		s.bp.PutBytes(frame.Payload)
		return
	}

	frame.Payload = out
	frame.ProcessedAt = time.Now()

	if s.queues.Persistence.TryPush(frame) {
		s.stats.FrameProcessed()
	} else {
		s.stats.FrameDiscarded(frame.StreamID)
		s.bp.PutBytes(frame.Payload)
	}
}

// drain gives in-flight frames a bounded grace period to clear the queue
// before workers are cancelled.
func (s *Service) drain() {
	deadline := time.Now().Add(s.cfg.ShutdownGrace)
	for s.queues.Processing.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
