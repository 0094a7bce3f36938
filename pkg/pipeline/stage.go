package pipeline

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type ErrorStrategy int

const (
	// StopOnError aborts the pipe run and returns the error to the caller.
	StopOnError ErrorStrategy = iota
	// ContinueOnError logs the error and passes the stage input through
	// unchanged.
	ContinueOnError
	// RetryOnError retries the stage a bounded number of times before
	// giving up with the last error.
	RetryOnError
)

type Processor[T any] interface {
	Open(ctx context.Context, log *logrus.Entry) error
	Process(ctx context.Context, log *logrus.Entry, item T) (T, error)
	io.Closer
}

type Stage[T any] struct {
	name      string
	processor Processor[T]
	logger    *logrus.Entry

	strategy      ErrorStrategy
	maxRetries    int
	retryInterval time.Duration
	timeout       time.Duration
	closed        atomic.Bool
}

type StageOption[T any] func(*Stage[T])

func NewStage[T any](name string, processor Processor[T], options ...StageOption[T]) *Stage[T] {
	s := &Stage[T]{
		name:          name,
		processor:     processor,
		strategy:      StopOnError,
		maxRetries:    3,
		retryInterval: 1 * time.Second,
		timeout:       10 * time.Second,
		logger:        logger.WithField("stage", name),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Stage[T]) run(ctx context.Context, item T) (T, error) {
	next, err := s.process(ctx, item)
	if err == nil {
		return next, nil
	}
	switch s.strategy {
	case ContinueOnError:
		s.logger.Warnf("continuing despite error in stage %s: %v", s.name, err)
		return item, nil
	case RetryOnError:
		for range s.maxRetries {
			s.logger.Warnf("retrying stage %s due to error: %v", s.name, err)
			select {
			case <-time.After(s.retryInterval):
			case <-ctx.Done():
				return item, ctx.Err()
			}
			next, err = s.process(ctx, item)
			if err == nil {
				return next, nil
			}
		}
		s.logger.Errorf("stage %s failed after %d retries", s.name, s.maxRetries)
		return item, err
	default:
		return item, err
	}
}

func (s *Stage[T]) process(ctx context.Context, item T) (T, error) {
	if s.closed.Load() {
		var zero T
		return zero, io.ErrClosedPipe
	}
	c, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.processor.Process(c, s.logger, item)
}

// close is idempotent; only the first call reaches the processor.
func (s *Stage[T]) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.processor.Close()
}

func WithErrorStrategy[T any](strategy ErrorStrategy) StageOption[T] {
	return func(s *Stage[T]) {
		s.strategy = strategy
	}
}

func WithRetryOptions[T any](maxRetries int, retryInterval time.Duration) StageOption[T] {
	return func(s *Stage[T]) {
		s.maxRetries = maxRetries
		if retryInterval > 0 {
			s.retryInterval = retryInterval
		}
	}
}

func WithTimeout[T any](timeout time.Duration) StageOption[T] {
	return func(s *Stage[T]) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}
