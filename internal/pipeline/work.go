package pipeline

import (
	"context"
	"fmt"

	"framepipe/internal/frames"
	"framepipe/internal/jobstate"
	"framepipe/internal/processor"
	"framepipe/internal/progress"
)

// frameWork is the per-item function handed to the pool.
type frameWork struct {
	chain    *processor.Chain
	store    *jobstate.Store
	key      jobstate.JobKey
	runID    string
	reporter *progress.Reporter
}

// process runs one frame through the chain and records it. A frame is only
// marked after its output has been written; the mark outlives cancellation
// so a frame that finished is never redone.
func (w *frameWork) process(ctx context.Context, _ int, item frames.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", item.ID(), r)
		}
	}()

	if err := w.chain.ProcessFile(ctx, item.Path); err != nil {
		return err
	}
	if err := w.store.MarkProcessed(context.WithoutCancel(ctx), w.key, item.ID(), w.runID); err != nil {
		return fmt.Errorf("record %s: %w", item.ID(), err)
	}
	w.reporter.Advance(1)
	return nil
}
