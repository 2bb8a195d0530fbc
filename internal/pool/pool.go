// Package pool provides the shared worker pool and buffer reuse for transfers.
//
// A Pool runs a fixed number of workers over a FIFO queue. It is the only
// resource shared between concurrent transfers and bounds the number of
// network operations in flight: once every worker is busy, submitted tasks
// wait in the queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Submit once the pool has shut down.
var ErrClosed = errors.New("pool: closed")

// Task is a unit of work executed by a worker.
type Task func()

// Stats tracks pool usage statistics.
type Stats struct {
	Workers   int
	Queued    int
	Running   int
	Submitted int64
	Completed int64
	Panics    int64
}

// Pool is a fixed size worker pool.
type Pool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Task
	size     int
	alive    int
	running  int
	draining bool
	closed   bool
	done     chan struct{}
	stats    Stats
}

// New starts a pool with size workers.
func New(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}

	p := &Pool{
		size:  size,
		alive: size,
		done:  make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues a task. It never blocks.
// Tasks submitted while the pool drains are still accepted so that running
// tasks can schedule their follow-up work.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.stats.Submitted++
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting work once the queue is empty and no task is
// running, then waits for the workers to exit or ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.cond.Broadcast()
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool shutdown: %w", ctx.Err())
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.Workers = p.size
	s.Queued = len(p.queue)
	s.Running = p.running
	return s
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !(p.draining && p.running == 0) {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.exit()
			p.mu.Unlock()
			return
		}

		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		panicked := run(task)

		p.mu.Lock()
		p.running--
		p.stats.Completed++
		if panicked {
			p.stats.Panics++
		}
		if p.draining && p.running == 0 && len(p.queue) == 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()
	}
}

// exit must be called with p.mu held.
func (p *Pool) exit() {
	p.alive--
	p.cond.Broadcast()
	if p.alive == 0 {
		p.closed = true
		close(p.done)
	}
}

func run(task Task) (panicked bool) {
	defer func() {
		if recover() != nil {
			panicked = true
		}
	}()
	task()
	return false
}
