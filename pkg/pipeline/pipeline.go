// Package pipeline chains ordered processors over a single item type.
// The relocator drives its finalize chain (move, index, report) through it.
package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("pkg", "pipeline")

type Pipe[T any] struct {
	stages []*Stage[T]
}

func New[T any](stages ...*Stage[T]) *Pipe[T] {
	return &Pipe[T]{stages: stages}
}

// Open prepares every stage in order. A stage that fails to open aborts the
// whole pipe; already-opened stages are closed again.
func (p *Pipe[T]) Open(ctx context.Context) error {
	for i, stage := range p.stages {
		if err := stage.processor.Open(ctx, stage.logger); err != nil {
			for _, opened := range p.stages[:i] {
				if cerr := opened.close(); cerr != nil {
					opened.logger.Errorf("error closing stage: %v", cerr)
				}
			}
			return err
		}
	}
	return nil
}

// Process feeds item through every stage, each receiving the previous
// stage's output. Behavior on a stage error follows that stage's strategy.
func (p *Pipe[T]) Process(ctx context.Context, item T) (T, error) {
	current := item
	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		default:
		}
		next, err := stage.run(ctx, current)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

func (p *Pipe[T]) Close() {
	for _, stage := range p.stages {
		if err := stage.close(); err != nil {
			stage.logger.Errorf("error closing stage: %v", err)
		}
	}
}
