package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ItemFunc processes one item. worker is the zero-based slice index.
type ItemFunc[T any] func(ctx context.Context, worker int, item T) error

// Pool runs partitioned slices concurrently.
type Pool[T any] struct {
	// OnItemError is called from the worker goroutine when fn fails.
	OnItemError func(worker int, item T, err error)
	// OnWorkerDone is called when a worker has walked its whole slice (or
	// stopped early on cancellation).
	OnWorkerDone func(worker int, processed, failed int)
}

// Result summarizes a Run.
type Result struct {
	Workers   int
	Attempted int
	Succeeded int
	Failed    int
	// Canceled is true when ctx ended before every slice was walked.
	Canceled bool
}

// Run starts one goroutine per non-empty slice and blocks until all of them
// return. Empty slices finish immediately without a goroutine.
func (p *Pool[T]) Run(ctx context.Context, slices [][]T, fn ItemFunc[T]) Result {
	var (
		attempted atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		canceled  atomic.Bool
		started   int
	)

	var g errgroup.Group
	for worker, slice := range slices {
		if len(slice) == 0 {
			if p.OnWorkerDone != nil {
				p.OnWorkerDone(worker, 0, 0)
			}
			continue
		}
		started++
		g.Go(func() error {
			var ok, bad int
			for _, item := range slice {
				if ctx.Err() != nil {
					canceled.Store(true)
					break
				}
				attempted.Add(1)
				if err := fn(ctx, worker, item); err != nil {
					bad++
					failed.Add(1)
					if p.OnItemError != nil {
						p.OnItemError(worker, item, err)
					}
					continue
				}
				ok++
				succeeded.Add(1)
			}
			if p.OnWorkerDone != nil {
				p.OnWorkerDone(worker, ok, bad)
			}
			return nil
		})
	}
	_ = g.Wait()

	return Result{
		Workers:   started,
		Attempted: int(attempted.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Canceled:  canceled.Load(),
	}
}
