// Package workers provides the bounded worker pool used to fan out fetch and
// scan work.
package workers

import (
	"context"
	"runtime"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("ddebs/workers")

// Task is one independent unit of work. Tasks contain their own failures: a
// task returns an error only when the whole run must stop.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines, fed through a
// bounded queue. Submit blocks while the queue is full, which keeps a lazy
// producer from running ahead of the workers.
type Pool struct {
	parent context.Context
	ctx    context.Context
	queue  chan Task
	group  *errgroup.Group
	close  sync.Once
}

// NewPool starts workers goroutines reading from a queue of queueSize tasks.
// A workers value below 1 means one per CPU; a queueSize below 1 means equal to
// the worker count.
func NewPool(ctx context.Context, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if queueSize < 1 {
		queueSize = workers
	}
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		parent: ctx,
		ctx:    gctx,
		queue:  make(chan Task, queueSize),
		group:  group,
	}
	log.Debugf("starting pool with %d workers, queue of %d", workers, queueSize)
	for range workers {
		group.Go(func() error {
			return Worker(gctx, p.queue, func(task Task) error {
				return task(gctx)
			}, nil)
		})
	}
	return p
}

// Submit queues task, blocking until there is room. It fails once the pool
// has stopped because a task returned an error or the context ended; call
// Wait to learn why.
func (p *Pool) Submit(task Task) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.queue <- task:
		return nil
	}
}

// Wait closes the queue, waits for queued tasks to drain and returns the
// first error any task returned. No tasks may be submitted afterwards.
func (p *Pool) Wait() error {
	p.close.Do(func() { close(p.queue) })
	if err := p.group.Wait(); err != nil {
		return err
	}
	// Workers may have seen the closed queue before the canceled context.
	return p.parent.Err()
}
