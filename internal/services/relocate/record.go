package relocate

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"
)

// Record describes one finalized segment file traveling through the
// relocation chain.
type Record struct {
	StreamID  string    `json:"stream_id"`
	Label     string    `json:"label"`
	StartTime time.Time `json:"start_time"`
	Ext       string    `json:"ext"`
	SrcPath   string    `json:"-"`
	DstPath   string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	Telemetry string    `json:"telemetry,omitempty"`
}

// IndexKey identifies a segment in the index bucket.
func (r *Record) IndexKey() string {
	return fmt.Sprintf("%s/%d", r.StreamID, r.StartTime.Unix())
}

// Partition returns the date/hour partition path under the durable root.
func (r *Record) Partition() string {
	return filepath.Join(
		r.StartTime.Format("2006"),
		r.StartTime.Format("01"),
		r.StartTime.Format("02"),
		r.StartTime.Format("15"),
	)
}

// finalized segment names: {label}_{streamID}_{YYMMDD}_{HHMMSS}.{mp4|srt}
var segmentNameRe = regexp.MustCompile(`^([^_]+)_(.+)_(\d{6})_(\d{6})\.(mp4|srt)$`)

// ParseSegmentName extracts the filename contract fields from a finalized
// segment basename. Returns an error for temp files and foreign files.
func ParseSegmentName(base string) (*Record, error) {
	m := segmentNameRe.FindStringSubmatch(base)
	if m == nil {
		return nil, fmt.Errorf("not a finalized segment name: %s", base)
	}
	start, err := time.ParseInLocation("060102_150405", m[3]+"_"+m[4], time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp in segment name %s: %w", base, err)
	}
	return &Record{
		Label:     m[1],
		StreamID:  m[2],
		StartTime: start,
		Ext:       m[5],
	}, nil
}
