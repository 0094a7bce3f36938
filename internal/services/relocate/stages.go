package relocate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/privstream/privrec/pkg/db"
	"github.com/privstream/privrec/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// moveProcessor relocates the segment file into its date/hour partition
// under the durable root.
type moveProcessor struct {
	archiveRoot string
}

func (p *moveProcessor) Open(ctx context.Context, log *logrus.Entry) error {
	return os.MkdirAll(p.archiveRoot, 0755)
}

func (p *moveProcessor) Process(ctx context.Context, log *logrus.Entry, rec *Record) (*Record, error) {
	if info, err := os.Stat(rec.SrcPath); err == nil {
		rec.SizeBytes = info.Size()
	}
	dst := filepath.Join(p.archiveRoot, rec.Partition(), filepath.Base(rec.SrcPath))
	if err := utils.MoveFile(rec.SrcPath, dst); err != nil {
		return rec, errors.Wrap(err, "cannot relocate segment")
	}
	rec.DstPath = dst
	log.Debugf("relocated %s", filepath.Base(dst))
	return rec, nil
}

func (p *moveProcessor) Close() error {
	return nil
}

// indexProcessor records the relocated segment in the bbolt index.
// Sidecars are not indexed; they share their video segment's record.
type indexProcessor struct {
	bucket *db.Bucket
}

func (p *indexProcessor) Open(ctx context.Context, log *logrus.Entry) error {
	return nil
}

func (p *indexProcessor) Process(ctx context.Context, log *logrus.Entry, rec *Record) (*Record, error) {
	if rec.Ext != "mp4" {
		return rec, nil
	}
	if err := p.bucket.PutJSON(rec.IndexKey(), rec); err != nil {
		return rec, errors.Wrap(err, "cannot index segment")
	}
	return rec, nil
}

func (p *indexProcessor) Close() error {
	return nil
}

// reportProcessor posts the segment record to the external reporting API,
// throttled so a burst of finalized segments cannot flood it.
type reportProcessor struct {
	url     string
	client  *resty.Client
	limiter *rate.Limiter
}

func newReportProcessor(url string, rps int) *reportProcessor {
	if rps <= 0 {
		rps = 1
	}
	return &reportProcessor{
		url:     url,
		client:  resty.New(),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (p *reportProcessor) Open(ctx context.Context, log *logrus.Entry) error {
	return nil
}

func (p *reportProcessor) Process(ctx context.Context, log *logrus.Entry, rec *Record) (*Record, error) {
	if rec.Ext != "mp4" {
		return rec, nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return rec, err
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(rec).
		Post(p.url)
	if err != nil {
		return rec, errors.Wrap(err, "cannot report segment")
	}
	if resp.IsError() {
		return rec, fmt.Errorf("report rejected with status %d", resp.StatusCode())
	}
	return rec, nil
}

func (p *reportProcessor) Close() error {
	return nil
}
