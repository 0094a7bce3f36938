package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/pkg/pool"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

var logger = logrus.WithField("service", "capture")

var ErrStreamNotConfigured = fmt.Errorf("stream is not configured")
var ErrStreamRunning = fmt.Errorf("stream capture already running")
var ErrStreamFailed = fmt.Errorf("stream reached its retry ceiling")

// Service runs one capture goroutine per started stream. Each loop reads
// frames from its source, timestamps them, and hands them to the shared
// processing queue, dropping the newest frame when the queue is full so
// capture never stalls on a congested downstream.
type Service struct {
	cfg    *config.Config
	src    Source
	stats  *stats.Service
	queues *types.Queues
	bp     *pool.BytesPool

	states *xsync.Map[string, *StreamState]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	src Source,
	st *stats.Service,
	queues *types.Queues,
	bp *pool.BytesPool,
) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:    cfg,
		src:    src,
		stats:  st,
		queues: queues,
		bp:     bp,
		states: xsync.NewMap[string, *StreamState](),
		ctx:    ctx,
		cancel: cancel,
	}

	lc.Append(fx.StartStopHook(
		func() {
			if !cfg.AutoStart {
				return
			}
			for _, spec := range cfg.Streams {
				if err := s.Start(spec.ID); err != nil {
					logger.Errorf("cannot start stream %s: %v", spec.ID, err)
				}
			}
		},
		func() {
			cancel()
			s.wg.Wait()
		},
	))

	return s
}

// Start launches the capture loop for a configured stream.
func (s *Service) Start(streamID string) error {
	spec, ok := s.lookup(streamID)
	if !ok {
		return ErrStreamNotConfigured
	}

	// a failed stream may be started again; a live one may not
	if existing, ok := s.states.Load(streamID); ok && existing.Status() != Failed {
		return ErrStreamRunning
	}

	ctx, cancel := context.WithCancel(s.ctx)
	st := newStreamState(spec, cancel)
	s.states.Store(streamID, st)

	s.wg.Add(1)
	go s.run(ctx, st)
	return nil
}

// Stop cancels a stream's capture loop. Returns false when it was not
// running.
func (s *Service) Stop(streamID string) bool {
	st, ok := s.states.LoadAndDelete(streamID)
	if !ok {
		return false
	}
	st.cancel()
	return true
}

// State returns the live state for a running (or failed) stream.
func (s *Service) State(streamID string) (*StreamState, bool) {
	return s.states.Load(streamID)
}

func (s *Service) ListStreams() []*StreamInfo {
	infos := make([]*StreamInfo, 0)
	s.states.Range(func(_ string, st *StreamState) bool {
		infos = append(infos, st.Info())
		return true
	})
	return infos
}

func (s *Service) lookup(streamID string) (types.StreamSpec, bool) {
	for _, spec := range s.cfg.Streams {
		if spec.ID == streamID {
			return spec, true
		}
	}
	return types.StreamSpec{}, false
}

// run is the per-stream supervisor: connect, read until failure, back off,
// reconnect. A stream that exhausts its retries is marked failed and left
// in the state map; sibling streams and the shared pools are unaffected.
func (s *Service) run(ctx context.Context, st *StreamState) {
	defer s.wg.Done()

	l := logger.WithField("stream", st.Spec.ID)
	retryDelay := s.cfg.RetryDelay

	for {
		if ctx.Err() != nil {
			st.status.Store(disconnectedPtr)
			return
		}

		st.status.Store(connectingPtr)
		conn, err := s.src.Connect(ctx, st.Spec.URL)
		if err != nil {
			l.Warnf("cannot connect: %v", err)
			st.errorCount.Add(1)
			if !s.backoff(ctx, st, &retryDelay, l) {
				return
			}
			continue
		}

		st.status.Store(streamingPtr)
		retryDelay = s.cfg.RetryDelay
		l.Info("stream connected")

		s.readLoop(ctx, st, conn, l)
		_ = conn.Close()

		if ctx.Err() != nil {
			st.status.Store(disconnectedPtr)
			return
		}
		if !s.backoff(ctx, st, &retryDelay, l) {
			return
		}
	}
}

// backoff sleeps before the next reconnect attempt, doubling the delay up
// to the cap. Returns false when the retry ceiling is reached or the
// context is cancelled.
func (s *Service) backoff(ctx context.Context, st *StreamState, delay *time.Duration, l *logrus.Entry) bool {
	retries := st.retryCount.Add(1)
	if retries > int64(s.cfg.MaxRetries) {
		st.status.Store(failedPtr)
		l.Errorf("retry ceiling reached (%d), stream marked failed", s.cfg.MaxRetries)
		return false
	}

	st.status.Store(backoffPtr)
	l.Infof("reconnecting in %v (attempt %d/%d)", *delay, retries, s.cfg.MaxRetries)

	timer := time.NewTimer(*delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		st.status.Store(disconnectedPtr)
		return false
	}

	*delay *= 2
	if *delay > s.cfg.MaxRetryDelay {
		*delay = s.cfg.MaxRetryDelay
	}
	return true
}

// readLoop pulls frames until the connection fails or the context ends.
// Read timeouts are transient and retried on the same connection.
func (s *Service) readLoop(ctx context.Context, st *StreamState, conn Conn, l *logrus.Entry) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := conn.ReadFrame(s.cfg.ReadTimeout)
		if err == ErrReadTimeout {
			continue
		}
		if err != nil {
			l.Warnf("stream read ended: %v", err)
			st.errorCount.Add(1)
			return
		}

		st.seq++
		frame := &types.Frame{
			StreamID:   st.Spec.ID,
			Seq:        st.seq,
			CapturedAt: time.Now(),
			Payload:    payload,
		}

		st.received.Add(1)
		st.lastFrame.Store(frame.CapturedAt.UnixNano())
		s.stats.FrameReceived(st.Spec.ID)

		if !s.queues.Processing.TryPush(frame) {
			st.lost.Add(1)
			s.stats.FrameLost(st.Spec.ID)
			s.bp.PutBytes(payload)
		}
	}
}
