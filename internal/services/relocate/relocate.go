// Package relocate implements the two-stage storage collaborator: it
// observes finalized segments in the fast tier and moves them into the
// date/hour-partitioned durable tree, indexing and optionally reporting
// each one. It only ever touches files under their final names; anything
// carrying the temp prefix is invisible to it.
package relocate

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jellydator/ttlcache/v3"
	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/services/segment"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/pkg/db"
	"github.com/privstream/privrec/pkg/pipeline"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"golang.org/x/sync/semaphore"
)

var logger = logrus.WithField("service", "relocate")

const seenTTL = 5 * time.Minute

type Service struct {
	cfg    *config.Config
	stats  *stats.Service
	client *db.Client
	bucket *db.Bucket

	pipe    *pipeline.Pipe[*Record]
	watcher *fsnotify.Watcher
	sem     *semaphore.Weighted
	seen    *ttlcache.Cache[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(lc fx.Lifecycle, cfg *config.Config, st *stats.Service) (*Service, error) {
	client, err := db.Open(cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket("segments")
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:    cfg,
		stats:  st,
		client: client,
		bucket: bucket,
		sem:    semaphore.NewWeighted(int64(cfg.RelocateWorkers)),
		seen: ttlcache.New(
			ttlcache.WithTTL[string, struct{}](seenTTL),
			ttlcache.WithCapacity[string, struct{}](1000),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	s.pipe = s.newPipeline()

	lc.Append(fx.StartStopHook(s.start, func() {
		cancel()
		s.wg.Wait()
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		s.seen.Stop()
		s.pipe.Close()
		_ = client.Close()
	}))

	return s, nil
}

// newPipeline builds the finalize chain: move into the durable tree, record
// in the index, report to the external API. Reporting failures never undo
// the move.
func (s *Service) newPipeline() *pipeline.Pipe[*Record] {
	stages := []*pipeline.Stage[*Record]{
		pipeline.NewStage("move", &moveProcessor{archiveRoot: s.cfg.ArchiveDir},
			pipeline.WithTimeout[*Record](time.Minute)),
		pipeline.NewStage("index", &indexProcessor{bucket: s.bucket}),
	}
	if s.cfg.ReportURL != "" {
		stages = append(stages, pipeline.NewStage("report",
			newReportProcessor(s.cfg.ReportURL, s.cfg.ReportRPS),
			pipeline.WithErrorStrategy[*Record](pipeline.ContinueOnError)))
	}
	return pipeline.New(stages...)
}

func (s *Service) start() error {
	if !s.cfg.TwoStageStorage {
		logger.Info("two-stage storage disabled, relocation inactive")
		return nil
	}

	if err := s.pipe.Open(s.ctx); err != nil {
		return err
	}

	go s.seen.Start()

	if err := os.MkdirAll(s.cfg.OutputDir, 0755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher
	if err := watcher.Add(s.cfg.OutputDir); err != nil {
		logger.Warnf("cannot watch output dir %s: %v", s.cfg.OutputDir, err)
	}

	s.wg.Add(1)
	go s.watchLoop()

	// pick up segments a previous run finalized but never relocated
	s.sweep()
	return nil
}

func (s *Service) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if isDir(event.Name) {
				// per-stream subdirectories appear after startup
				if err := s.watcher.Add(event.Name); err != nil {
					logger.Warnf("cannot watch %s: %v", event.Name, err)
				}
				continue
			}
			s.offer(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("watcher error: %v", err)
		case <-s.ctx.Done():
			return
		}
	}
}

// sweep walks the fast tier for finalized segments, both at startup and to
// catch events the watcher may have missed.
func (s *Service) sweep() {
	err := filepath.WalkDir(s.cfg.OutputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != s.cfg.OutputDir {
				_ = s.watcher.Add(path)
			}
			return nil
		}
		s.offer(path)
		return nil
	})
	if err != nil {
		logger.Warnf("sweep failed: %v", err)
	}
}

// offer inspects a candidate path and, when it is an unseen finalized
// segment, schedules its relocation on a bounded number of movers.
func (s *Service) offer(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, segment.TempPrefix) {
		return
	}
	rec, err := ParseSegmentName(base)
	if err != nil {
		return
	}
	if s.seen.Has(base) {
		return
	}
	s.seen.Set(base, struct{}{}, ttlcache.DefaultTTL)

	rec.SrcPath = path
	rec.Telemetry = s.cfg.Telemetry

	if err := s.sem.Acquire(s.ctx, 1); err != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		if _, err := s.pipe.Process(s.ctx, rec); err != nil {
			logger.Errorf("cannot relocate %s: %v", base, err)
			s.seen.Delete(base)
			return
		}
		if rec.Ext == "mp4" {
			s.stats.SegmentRelocated()
		}
	}()
}

// ListSegments returns indexed segment records, newest last, optionally
// filtered by stream.
func (s *Service) ListSegments(streamID string) ([]*Record, error) {
	records := make([]*Record, 0)
	err := s.bucket.ForEach(func(k, v []byte) error {
		if streamID != "" && !strings.HasPrefix(string(k), streamID+"/") {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil
		}
		records = append(records, &rec)
		return nil
	})
	return records, err
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
