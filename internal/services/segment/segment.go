package segment

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// TempPrefix marks segment files still being written. The relocator must
// never treat a file carrying it as complete.
const TempPrefix = "temp_"

const writerBufferSize = 4 * 1024 * 1024

func newWriter(f *os.File) *bufio.Writer {
	return bufio.NewWriterSize(f, writerBufferSize)
}

// Segment is one open output file for one stream. It exists only between
// the first admitted frame after a rotation and finalize; after finalize
// the struct is inert and every mutating call is a no-op or error.
type Segment struct {
	StreamID  string
	StartTime time.Time

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer

	srtFile   *os.File
	srtWriter *bufio.Writer
	cueIndex  int
	lastCueAt time.Duration

	frames    atomic.Int64
	bytes     atomic.Int64
	finalized atomic.Bool

	tempPath  string
	finalPath string
}

func (s *Segment) FrameCount() int64 {
	return s.frames.Load()
}

func (s *Segment) Bytes() int64 {
	return s.bytes.Load()
}

func (s *Segment) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

func (s *Segment) Finalized() bool {
	return s.finalized.Load()
}

// Write appends one frame payload, plus a timecode cue when the sidecar is
// enabled. capturedAt feeds the cue text so playback can be aligned with
// wall-clock time later.
func (s *Segment) Write(payload []byte, capturedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized.Load() || s.writer == nil {
		return fmt.Errorf("segment %s already closed", s.tempPath)
	}

	n, err := s.writer.Write(payload)
	if err != nil {
		return err
	}
	s.bytes.Add(int64(n))
	s.frames.Add(1)

	if s.srtWriter != nil {
		s.writeCue(capturedAt)
	}
	return nil
}

// writeCue appends one SRT cue covering the span since the previous frame.
// Called with s.mu held.
func (s *Segment) writeCue(capturedAt time.Time) {
	start := s.lastCueAt
	end := capturedAt.Sub(s.StartTime)
	if end <= start {
		end = start + 40*time.Millisecond
	}
	s.cueIndex++
	s.lastCueAt = end
	fmt.Fprintf(s.srtWriter, "%d\n%s --> %s\n%s\n\n",
		s.cueIndex, srtTimestamp(start), srtTimestamp(end),
		capturedAt.Format("2006-01-02 15:04:05.000"))
}

func srtTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}

// flush pushes buffered bytes to the OS without closing anything.
func (s *Segment) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized.Load() || s.writer == nil {
		return nil
	}
	if s.srtWriter != nil {
		if err := s.srtWriter.Flush(); err != nil {
			return err
		}
	}
	return s.writer.Flush()
}

// closeFiles flushes and closes both handles. Called with s.mu held.
func (s *Segment) closeFiles() error {
	var firstErr error
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			firstErr = err
		}
		if err := s.file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.writer, s.file = nil, nil
	}
	if s.srtWriter != nil {
		if err := s.srtWriter.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.srtFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.srtWriter, s.srtFile = nil, nil
	}
	return firstErr
}
