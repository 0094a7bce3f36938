package stats

import (
	"time"
)

type PipelineCounts struct {
	Received        int64 `json:"received"`
	CaptureDropped  int64 `json:"capture_dropped"`
	Processed       int64 `json:"processed"`
	ProcessDropped  int64 `json:"process_dropped"`
	TransformErrors int64 `json:"transform_errors"`
	Saved           int64 `json:"saved"`
	RateRejected    int64 `json:"rate_rejected"`
	WriteErrors     int64 `json:"write_errors"`
	Finalized       int64 `json:"segments_finalized"`
	Relocated       int64 `json:"segments_relocated"`
}

type StreamCounts struct {
	Received     int64 `json:"received"`
	Lost         int64 `json:"lost"`
	Saved        int64 `json:"saved"`
	RateRejected int64 `json:"rate_rejected"`
	Errors       int64 `json:"errors"`
}

type QueueDepths struct {
	ProcessingDepth  int `json:"processing_depth"`
	ProcessingCap    int `json:"processing_cap"`
	PersistenceDepth int `json:"persistence_depth"`
	PersistenceCap   int `json:"persistence_cap"`
}

type SystemStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

type Snapshot struct {
	Pipeline       PipelineCounts          `json:"pipeline"`
	Streams        map[string]StreamCounts `json:"streams"`
	Queues         QueueDepths             `json:"queues"`
	System         SystemStats             `json:"system"`
	UptimeSeconds  int64                   `json:"uptime_seconds"`
}

// Snapshot reads all counters and current queue depths. Counters are read
// individually, so the result is consistent per counter, not across them;
// good enough for monitoring, never used for control flow.
func (s *Service) Snapshot() *Snapshot {
	snap := &Snapshot{
		Pipeline: PipelineCounts{
			Received:        s.received.Value(),
			CaptureDropped:  s.captureDropped.Value(),
			Processed:       s.processed.Value(),
			ProcessDropped:  s.processDropped.Value(),
			TransformErrors: s.transformErrors.Value(),
			Saved:           s.saved.Value(),
			RateRejected:    s.rateRejected.Value(),
			WriteErrors:     s.writeErrors.Value(),
			Finalized:       s.finalized.Value(),
			Relocated:       s.relocated.Value(),
		},
		Streams:       make(map[string]StreamCounts),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}

	s.streams.Range(func(id string, sc *StreamCounters) bool {
		snap.Streams[id] = StreamCounts{
			Received:     sc.Received.Value(),
			Lost:         sc.Lost.Value(),
			Saved:        sc.Saved.Value(),
			RateRejected: sc.RateRejected.Value(),
			Errors:       sc.Errors.Value(),
		}
		return true
	})

	if s.queues != nil {
		snap.Queues = QueueDepths{
			ProcessingDepth:  s.queues.Processing.Len(),
			ProcessingCap:    s.queues.Processing.Cap(),
			PersistenceDepth: s.queues.Persistence.Len(),
			PersistenceCap:   s.queues.Persistence.Cap(),
		}
	}

	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			snap.System.CPUPercent = cpu
		}
		if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
			snap.System.RSSBytes = mem.RSS
		}
	}

	return snap
}
