// Package parallel provides small fan-out helpers.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// Parallelize divides items into one contiguous range per CPU core and
// runs fn on each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn(0, items) inline when items <= threshold,
// otherwise it behaves like Parallelize.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ForEach calls fn for every index in [0, n) with at most limit calls in
// flight. limit <= 1 runs the calls in order on the calling goroutine. The
// first error cancels the context passed to the remaining calls and is
// returned. A panicking call is returned as an *errors.PanicError. Results
// must be written by index; ForEach gives no ordering guarantee when
// limit > 1.
func ForEach(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if limit <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := call(ctx, i, fn); err != nil {
				return err
			}
		}
		return nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return call(gCtx, i, fn)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func call(ctx context.Context, i int, fn func(ctx context.Context, i int) error) error {
	return errors.SafeExecute("parallel.ForEach", func() error { return fn(ctx, i) })
}
