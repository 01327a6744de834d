// Package worker provides bounded parallel execution for taskhive.
// The importer uses it to read and parse several master lists at once
// while keeping results in input order.
package worker

import (
	"context"
	"sync"
	"time"
)

// Result holds the outcome of a single job.
type Result[R any] struct {
	Index    int
	Value    R
	Duration time.Duration
	Error    error
}

// Pool runs jobs with at most MaxWorkers in flight.
type Pool[T, R any] struct {
	maxWorkers int
	fn         func(ctx context.Context, item T) (R, error)
}

// NewPool creates a new worker pool. maxWorkers below 1 means sequential.
// fn should honour ctx cancellation.
func NewPool[T, R any](maxWorkers int, fn func(ctx context.Context, item T) (R, error)) *Pool[T, R] {
	return &Pool[T, R]{maxWorkers: maxWorkers, fn: fn}
}

// Run executes fn over all items and returns one result per item, in the
// same order as items.
func (p *Pool[T, R]) Run(ctx context.Context, items []T) []Result[R] {
	if p.maxWorkers <= 1 || len(items) <= 1 {
		return p.runSequential(ctx, items)
	}
	return p.runParallel(ctx, items)
}

func (p *Pool[T, R]) runSequential(ctx context.Context, items []T) []Result[R] {
	results := make([]Result[R], len(items))
	for i, item := range items {
		results[i] = p.execute(ctx, i, item)
	}
	return results
}

func (p *Pool[T, R]) runParallel(ctx context.Context, items []T) []Result[R] {
	sem := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup

	results := make([]Result[R], len(items))

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{} // Acquire worker slot.

		go func(idx int, it T) {
			defer wg.Done()
			defer func() { <-sem }() // Release worker slot.

			results[idx] = p.execute(ctx, idx, it)
		}(i, item)
	}

	wg.Wait()
	return results
}

func (p *Pool[T, R]) execute(ctx context.Context, idx int, item T) Result[R] {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result[R]{Index: idx, Error: err}
	}
	v, err := p.fn(ctx, item)
	return Result[R]{Index: idx, Value: v, Duration: time.Since(start), Error: err}
}
