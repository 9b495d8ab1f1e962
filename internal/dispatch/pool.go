// Package dispatch runs a probing function over a batch of items with
// bounded parallelism. Results stay index-aligned with the input so every
// item appears exactly once in the output regardless of completion order.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultConcurrency bounds in-flight work when Options.Concurrency is zero.
const DefaultConcurrency = 20

// Progress is a snapshot of batch completion, emitted at a bounded rate.
type Progress struct {
	Done    int
	Matched int
	Total   int
}

// Options configures one batch run.
type Options[R any] struct {
	// Concurrency is the maximum number of in-flight invocations.
	Concurrency int
	// Matched counts results satisfying a success predicate for progress
	// reporting. Nil leaves Progress.Matched at zero.
	Matched func(R) bool
	// OnProgress receives throttled progress snapshots plus one final
	// snapshot after the batch completes. It is called from a dedicated
	// goroutine and never blocks or slows the workers.
	OnProgress func(Progress)
	// ProgressEvery is the minimum interval between snapshots; zero means
	// one second.
	ProgressEvery time.Duration
}

// Run executes fn for every item with at most Concurrency in flight and
// returns the results aligned to items. fn must surface its own failures as
// part of R; Run never drops an item. The batch waits for every dispatched
// invocation, so overall completion is bounded by the slowest invocation's
// own timeout, not by a batch deadline.
func Run[T, R any](ctx context.Context, items []T, fn func(context.Context, T) R, opts Options[R]) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}

	conc := opts.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	var done, matched atomic.Int64

	stop := make(chan struct{})
	var progWg sync.WaitGroup
	if opts.OnProgress != nil {
		every := opts.ProgressEvery
		if every <= 0 {
			every = time.Second
		}
		progWg.Add(1)
		go func() {
			defer progWg.Done()
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-t.C:
					opts.OnProgress(Progress{
						Done:    int(done.Load()),
						Matched: int(matched.Load()),
						Total:   len(items),
					})
				}
			}
		}()
	}

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	for i := range items {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			r := fn(ctx, items[i])
			results[i] = r
			if opts.Matched != nil && opts.Matched(r) {
				matched.Add(1)
			}
			done.Add(1)
		}(i)
	}
	wg.Wait()

	if opts.OnProgress != nil {
		close(stop)
		progWg.Wait()
		opts.OnProgress(Progress{
			Done:    len(items),
			Matched: int(matched.Load()),
			Total:   len(items),
		})
	}
	return results
}
