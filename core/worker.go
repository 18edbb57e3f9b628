package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"warptrace/metrics"
	"warptrace/util/goroutine"
)

var (
	ErrWorkerPoolNotRunning = errors.New("worker pool is not running")
	ErrWorkerPoolQueueFull  = errors.New("worker pool task queue is full")
)

// stopTimeout bounds how long Stop waits for in-flight jobs. An analysis
// stuck past this is abandoned rather than blocking shutdown.
const stopTimeout = 30 * time.Second

// WorkerPool runs queued jobs on a fixed set of goroutines. Upload analyses
// go through here so a burst of analyze requests cannot fork an unbounded
// number of pipelines; the queue bound turns overload into a Submit error
// the HTTP layer can answer with 503.
type WorkerPool struct {
	name    string
	workers int
	jobs    chan func()
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// NewWorkerPool builds a pool of the given size. Workers do not run until
// Start; cancelling parentCtx aborts them between jobs.
func NewWorkerPool(parentCtx context.Context, workers, queueSize int, name string, logger *zap.SugaredLogger) *WorkerPool {
	if name == "" {
		name = "default"
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &WorkerPool{
		name:    name,
		workers: workers,
		jobs:    make(chan func(), queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling Start on a running pool is a no-op.
func (wp *WorkerPool) Start() error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.started {
		return nil
	}
	wp.started = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.run(i)
	}

	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.name).Set(float64(wp.workers))
	wp.logger.Infow("Worker pool started",
		"pool", wp.name,
		"workers", wp.workers,
		"queue_capacity", cap(wp.jobs))
	return nil
}

// Stop closes the queue and waits for the workers to finish. Jobs already
// accepted still run, queued ones included, so an upload cannot be left
// stuck in processing by a restart. Past stopTimeout the wait is abandoned
// and the remaining workers are cancelled between jobs.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.started {
		wp.mu.Unlock()
		return
	}
	wp.started = false
	close(wp.jobs)
	wp.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.name).Set(0)
		wp.logger.Infow("Worker pool drained", "pool", wp.name)
	case <-time.After(stopTimeout):
		wp.logger.Errorw("Worker pool did not drain in time, abandoning workers",
			"pool", wp.name,
			"timeout", stopTimeout)
	}
	wp.cancel()
}

// Submit enqueues a job without blocking. Callers surface the error as
// back-pressure instead of stalling.
func (wp *WorkerPool) Submit(job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.started {
		return ErrWorkerPoolNotRunning
	}

	select {
	case wp.jobs <- job:
		metrics.WorkerPoolQueueSize.WithLabelValues(wp.name).Set(float64(len(wp.jobs)))
		return nil
	default:
		return ErrWorkerPoolQueueFull
	}
}

// WorkerPoolStats is a point-in-time snapshot of pool load.
type WorkerPoolStats struct {
	Name     string
	Workers  int
	Running  bool
	Queued   int
	Capacity int
}

// Stats reports the pool's current state.
func (wp *WorkerPool) Stats() WorkerPoolStats {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	return WorkerPoolStats{
		Name:     wp.name,
		Workers:  wp.workers,
		Running:  wp.started,
		Queued:   len(wp.jobs),
		Capacity: cap(wp.jobs),
	}
}

func (wp *WorkerPool) run(id int) {
	defer wp.wg.Done()
	defer goroutine.Recover(fmt.Sprintf("%s-worker-%d", wp.name, id), wp.logger)

	for {
		select {
		case <-wp.ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			metrics.WorkerPoolQueueSize.WithLabelValues(wp.name).Set(float64(len(wp.jobs)))
			wp.execute(id, job)
		}
	}
}

// execute runs one job with panic isolation. A panicking job takes down
// neither its worker nor the pool.
func (wp *WorkerPool) execute(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Job panicked in worker pool",
				"pool", wp.name,
				"worker", id,
				"panic", r)
		}
	}()
	job()
	metrics.WorkerPoolTasksProcessed.WithLabelValues(wp.name).Inc()
}
