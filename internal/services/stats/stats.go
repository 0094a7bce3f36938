package stats

import (
	"context"
	"os"
	"time"

	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/types"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

var logger = logrus.WithField("service", "stats")

// Service aggregates counters from every pipeline stage. Stages only ever
// increment; Snapshot is a point-in-time read that never blocks producers.
// Nothing in the pipeline makes control-flow decisions off these numbers.
type Service struct {
	received        *xsync.Counter // frames read from sources
	captureDropped  *xsync.Counter // dropped at the processing queue (full)
	processed       *xsync.Counter // blurred and handed to persistence queue
	processDropped  *xsync.Counter // dropped at the persistence queue (full)
	transformErrors *xsync.Counter
	saved           *xsync.Counter // written into a segment
	rateRejected    *xsync.Counter // rejected by the rate gate
	writeErrors     *xsync.Counter
	finalized       *xsync.Counter // segments finalized
	relocated       *xsync.Counter // segments moved to durable tier

	streams *xsync.Map[string, *StreamCounters]

	queues    *types.Queues
	startTime time.Time
	proc      *process.Process
}

type StreamCounters struct {
	Received     *xsync.Counter
	Lost         *xsync.Counter
	Saved        *xsync.Counter
	RateRejected *xsync.Counter
	Errors       *xsync.Counter
}

func NewService(lc fx.Lifecycle, cfg *config.Config, queues *types.Queues) *Service {
	s := &Service{
		received:        xsync.NewCounter(),
		captureDropped:  xsync.NewCounter(),
		processed:       xsync.NewCounter(),
		processDropped:  xsync.NewCounter(),
		transformErrors: xsync.NewCounter(),
		saved:           xsync.NewCounter(),
		rateRejected:    xsync.NewCounter(),
		writeErrors:     xsync.NewCounter(),
		finalized:       xsync.NewCounter(),
		relocated:       xsync.NewCounter(),
		streams:         xsync.NewMap[string, *StreamCounters](),
		queues:          queues,
		startTime:       time.Now(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StartStopHook(
		func() {
			go s.logPeriodically(ctx, cfg.StatsInterval)
		},
		func() { cancel() },
	))

	return s
}

func (s *Service) stream(id string) *StreamCounters {
	sc, _ := s.streams.LoadOrStore(id, &StreamCounters{
		Received:     xsync.NewCounter(),
		Lost:         xsync.NewCounter(),
		Saved:        xsync.NewCounter(),
		RateRejected: xsync.NewCounter(),
		Errors:       xsync.NewCounter(),
	})
	return sc
}

func (s *Service) FrameReceived(streamID string) {
	s.received.Inc()
	s.stream(streamID).Received.Inc()
}

// FrameLost records a drop at the capture→processing handoff.
func (s *Service) FrameLost(streamID string) {
	s.captureDropped.Inc()
	s.stream(streamID).Lost.Inc()
}

func (s *Service) FrameProcessed() {
	s.processed.Inc()
}

// FrameDiscarded records a drop at the processing→persistence handoff.
func (s *Service) FrameDiscarded(streamID string) {
	s.processDropped.Inc()
	s.stream(streamID).Lost.Inc()
}

func (s *Service) TransformFailed(streamID string) {
	s.transformErrors.Inc()
	s.stream(streamID).Errors.Inc()
}

func (s *Service) FrameSaved(streamID string) {
	s.saved.Inc()
	s.stream(streamID).Saved.Inc()
}

func (s *Service) FrameRejected(streamID string) {
	s.rateRejected.Inc()
	s.stream(streamID).RateRejected.Inc()
}

func (s *Service) WriteFailed(streamID string) {
	s.writeErrors.Inc()
	s.stream(streamID).Errors.Inc()
}

func (s *Service) SegmentFinalized() {
	s.finalized.Inc()
}

func (s *Service) SegmentRelocated() {
	s.relocated.Inc()
}

func (s *Service) logPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := s.Snapshot()
			logger.Infof("received=%d saved=%d dropped=%d rejected=%d errors=%d queues=%d/%d",
				snap.Pipeline.Received, snap.Pipeline.Saved,
				snap.Pipeline.CaptureDropped+snap.Pipeline.ProcessDropped,
				snap.Pipeline.RateRejected,
				snap.Pipeline.TransformErrors+snap.Pipeline.WriteErrors,
				snap.Queues.ProcessingDepth, snap.Queues.PersistenceDepth)
		case <-ctx.Done():
			return
		}
	}
}
