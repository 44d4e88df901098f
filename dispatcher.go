package playkit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Task is a unit of billing work run on the dispatcher.
type Task func(ctx context.Context)

// dispatcher runs billing calls on a fixed pool of workers, paced by a rate limiter,
// so that listener callbacks never block on the billing service.
type dispatcher struct {
	taskQueue   chan Task
	wg          sync.WaitGroup
	rateLimiter *rate.Limiter
	closeOnce   sync.Once
	mu          sync.RWMutex
	isClosed    bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newDispatcher(ctx context.Context, workers, queueSize int, limiter *rate.Limiter) (*dispatcher, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be greater than 0, got %d", workers)
	}
	if queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be greater than 0, got %d", queueSize)
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter must not be nil")
	}
	dctx, cancel := context.WithCancel(ctx)

	d := &dispatcher{
		taskQueue:   make(chan Task, queueSize),
		rateLimiter: limiter,
		ctx:         dctx,
		cancel:      cancel,
	}
	d.startWorkers(workers)
	return d, nil
}

// Submit queues a task without blocking. When the queue is at capacity the
// task waits for room on its own goroutine, so work is only dropped by abort.
// It fails with ErrClosed after close.
func (d *dispatcher) Submit(task Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.isClosed {
		return ErrClosed
	}

	select {
	case d.taskQueue <- task:
	default:
		go d.enqueue(task)
	}
	return nil
}

// enqueue blocks until the queue takes task or the dispatcher is aborted.
// The read lock keeps close from closing the queue under a pending send.
func (d *dispatcher) enqueue(task Task) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.isClosed {
		return
	}
	select {
	case d.taskQueue <- task:
	case <-d.ctx.Done():
	}
}

func (d *dispatcher) startWorkers(workerCount int) {
	d.wg.Add(workerCount)
	for range workerCount {
		go func() {
			defer d.wg.Done()

			for {
				select {
				case task, ok := <-d.taskQueue:
					if !ok {
						return
					}
					if err := d.rateLimiter.Wait(d.ctx); err != nil {
						return
					}
					task(d.ctx)
				case <-d.ctx.Done():
					return
				}
			}
		}()
	}
}

// close stops accepting work, lets queued tasks drain and waits for the workers.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.isClosed = true
		close(d.taskQueue)
		d.mu.Unlock()

		d.wg.Wait()
		d.cancel()
	})
}

// abort cancels in-flight work and waits for the workers to exit.
func (d *dispatcher) abort() {
	d.cancel()
	d.close()
}
