package segment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/privstream/privrec/internal/modules/config"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
)

var logger = logrus.WithField("service", "segment")

// Store owns the open-segment-per-stream map. Segments are created under a
// temp_ name and become visible to the relocator only through the atomic
// rename in Finalize.
type Store struct {
	cfg  *config.Config
	open *xsync.Map[string, *Segment]
}

func NewStore(lc fx.Lifecycle, cfg *config.Config) *Store {
	s := &Store{
		cfg:  cfg,
		open: xsync.NewMap[string, *Segment](),
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.StartStopHook(
		func() {
			go s.flushPeriodically(ctx)
		},
		func() {
			cancel()
			s.FinalizeAll()
		},
	))

	return s
}

// Current returns the open segment for a stream, if any.
func (s *Store) Current(streamID string) (*Segment, bool) {
	return s.open.Load(streamID)
}

// Open creates a new segment for a stream. The previous segment for the
// stream must have been finalized or abandoned first.
func (s *Store) Open(streamID string, start time.Time) (*Segment, error) {
	dir := filepath.Join(s.cfg.OutputDir, streamID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "cannot create stream output dir")
	}

	base := fmt.Sprintf("%s_%s_%s", s.cfg.Label, streamID, start.Format("060102_150405"))
	finalPath := filepath.Join(dir, base+"."+s.cfg.SegmentExt)
	tempPath := filepath.Join(dir, TempPrefix+base+"."+s.cfg.SegmentExt)

	file, err := os.Create(tempPath)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create segment file")
	}

	seg := &Segment{
		StreamID:  streamID,
		StartTime: start,
		file:      file,
		tempPath:  tempPath,
		finalPath: finalPath,
	}
	seg.writer = newWriter(file)

	if s.cfg.WriteTimecodes {
		srtTemp := filepath.Join(dir, TempPrefix+base+".srt")
		srtFile, err := os.Create(srtTemp)
		if err != nil {
			_ = file.Close()
			_ = os.Remove(tempPath)
			return nil, errors.Wrap(err, "cannot create timecode sidecar")
		}
		seg.srtFile = srtFile
		seg.srtWriter = newWriter(srtFile)
	}

	s.open.Store(streamID, seg)
	logger.WithField("stream", streamID).Debugf("opened segment %s", filepath.Base(tempPath))
	return seg, nil
}

// Finalize flushes, closes, and atomically renames the segment (and its
// sidecar) to the final name. Idempotent: the second call on an already
// finalized segment is a no-op returning the same final path.
func (s *Store) Finalize(seg *Segment) (string, error) {
	if !seg.finalized.CompareAndSwap(false, true) {
		return seg.finalPath, nil
	}

	seg.mu.Lock()
	defer seg.mu.Unlock()

	s.dropCurrent(seg)

	if err := seg.closeFiles(); err != nil {
		// keep the temp name: the relocator must never see a
		// half-written file under its final name
		return "", errors.Wrap(err, "cannot close segment")
	}
	if err := os.Rename(seg.tempPath, seg.finalPath); err != nil {
		return "", errors.Wrap(err, "cannot finalize segment")
	}
	if srtTemp := sidecarPath(seg.tempPath); srtTemp != "" {
		if _, err := os.Stat(srtTemp); err == nil {
			if err := os.Rename(srtTemp, sidecarPath(seg.finalPath)); err != nil {
				logger.Warnf("cannot finalize timecode sidecar: %v", err)
			}
		}
	}

	logger.WithField("stream", seg.StreamID).
		Infof("finalized segment %s (%d frames, %d bytes)",
			filepath.Base(seg.finalPath), seg.FrameCount(), seg.Bytes())
	return seg.finalPath, nil
}

// Abandon closes a segment after a write failure, leaving it under its temp
// name for later cleanup, and clears the stream's open-segment reference so
// the next admitted frame opens a fresh one.
func (s *Store) Abandon(seg *Segment) {
	if !seg.finalized.CompareAndSwap(false, true) {
		return
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	s.dropCurrent(seg)
	if err := seg.closeFiles(); err != nil {
		logger.Warnf("error closing abandoned segment %s: %v", seg.tempPath, err)
	}
	logger.WithField("stream", seg.StreamID).
		Warnf("abandoned segment %s after write failure", filepath.Base(seg.tempPath))
}

// FinalizeAll force-finalizes every open segment, even partially full ones.
// Used on shutdown so no captured data is discarded.
func (s *Store) FinalizeAll() {
	s.open.Range(func(streamID string, seg *Segment) bool {
		if _, err := s.Finalize(seg); err != nil {
			logger.Errorf("cannot finalize segment for stream %s on shutdown: %v", streamID, err)
		}
		return true
	})
}

func (s *Store) dropCurrent(seg *Segment) {
	if current, ok := s.open.Load(seg.StreamID); ok && current == seg {
		s.open.Delete(seg.StreamID)
	}
}

func (s *Store) flushPeriodically(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.open.Range(func(_ string, seg *Segment) bool {
				if err := seg.flush(); err != nil {
					logger.Warnf("error flushing segment %s: %v", seg.tempPath, err)
				}
				return true
			})
		case <-ctx.Done():
			return
		}
	}
}

func sidecarPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.TrimSuffix(path, ext) + ".srt"
}
