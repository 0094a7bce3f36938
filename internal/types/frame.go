package types

import "time"

// Frame is the unit of work flowing through the pipeline. Ownership moves
// with the frame: exactly one stage holds it between queue handoffs, and the
// payload buffer is recycled once the persistence stage is done with it.
type Frame struct {
	StreamID    string
	Seq         uint64
	CapturedAt  time.Time
	ProcessedAt time.Time
	Payload     []byte
}

// StreamSpec describes one configured source.
type StreamSpec struct {
	// ID is the stable stream identity embedded in filenames, e.g. "stream01".
	ID string
	// URL is the source descriptor handed to the FrameSource, e.g. an RTSP URL.
	URL string
	// TargetFPS is the per-second persistence budget for this stream.
	TargetFPS int
}
