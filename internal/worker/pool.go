// Package worker bounds how many analyses run at once.
package worker

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned when every slot is taken. Callers are not queued.
var ErrBusy = errors.New("all analysis slots are busy")

// Pool admits at most size concurrent jobs.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Run executes fn in the caller's goroutine if a slot is free, and returns
// ErrBusy otherwise.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !p.sem.TryAcquire(1) {
		return ErrBusy
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

func (p *Pool) Size() int { return int(p.size) }
