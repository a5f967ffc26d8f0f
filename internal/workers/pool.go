// Package workers provides a small worker pool for embarrassingly parallel
// numeric batches.
//
// Jobs are identified by index. Workers never share mutable state: each job
// writes its results into caller-owned storage at its own index, so no merge
// step or locking is needed beyond the final wait.
package workers

import (
	"context"
	"runtime"
	"sync"
)

// Pool manages a fixed number of worker goroutines for parallel evaluation.
type Pool struct {
	numWorkers int
}

// NewPool creates a pool with the specified number of workers. A count of
// zero or less falls back to the number of logical CPUs.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{numWorkers: numWorkers}
}

// Size returns the configured worker count.
func (p *Pool) Size() int {
	return p.numWorkers
}

// ForEach executes fn(idx) for every index in [0, n), distributing indices
// across the pool's workers. fn must confine its writes to storage owned by
// its own index.
//
// The context is checked between jobs, not inside them. On cancellation the
// remaining jobs are abandoned and ctx.Err() is returned. If fn returns an
// error, no new jobs are started and the first error is returned.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(idx int) error) error {
	if n <= 0 {
		return nil
	}

	numActualWorkers := p.numWorkers
	if n < numActualWorkers {
		numActualWorkers = n // Don't spawn more workers than jobs
	}

	// An internal cancel lets the first failure stop the other workers.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, n)
	for idx := 0; idx < n; idx++ {
		jobs <- idx
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for w := 0; w < numActualWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-runCtx.Done():
					return
				default:
				}
				if err := fn(idx); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
