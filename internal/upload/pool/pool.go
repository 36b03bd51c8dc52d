// Package pool runs submitted upload tasks on a fixed set of worker goroutines
// fed by an unbounded FIFO queue.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned by Submit after Shutdown has been called
var ErrClosed = errors.New("worker pool is closed")

// Task is a unit of work executed by one worker
type Task func()

// Stats is a point-in-time view of the pool
type Stats struct {
	Workers int
	Queued  int
	Active  int
}

// Pool is a bounded-concurrency executor. Submissions never block; they wait
// in the queue until a worker is free.
type Pool struct {
	logger  *slog.Logger
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	active int
	closed bool

	wg sync.WaitGroup
}

// New starts a pool with the given number of workers. A non-positive count
// uses the number of available CPUs.
func New(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p := &Pool{
		logger:  logger,
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)
	p.spawnWorkers()

	return p
}

// spawnWorkers launches the worker goroutines
func (p *Pool) spawnWorkers() {
	p.logger.Info("Spawning upload worker pool",
		slog.Int("concurrency", p.workers),
	)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
}

// Submit enqueues a task for execution
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("nil task")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()

	return nil
}

// workerLoop is the main loop for each worker goroutine
func (p *Pool) workerLoop(workerNum int) {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			p.logger.Debug("Upload worker stopping", slog.Int("worker_num", workerNum))
			return
		}

		p.run(workerNum, task)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// next blocks until a task is available or the pool is closed and drained
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.active++

	return task, true
}

func (p *Pool) run(workerNum int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Upload task panicked",
				slog.Int("worker_num", workerNum),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	task()
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. It returns the context error if the wait is cut short; calling it
// again resumes the wait.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		p.cond.Broadcast()
		p.logger.Info("Stopping upload worker pool")
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Upload worker pool stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Upload worker pool shutdown timed out")
		return ctx.Err()
	}
}

// Stats returns the current worker, queue and activity counts
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Workers: p.workers,
		Queued:  len(p.queue),
		Active:  p.active,
	}
}
