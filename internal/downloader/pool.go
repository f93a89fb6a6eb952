package downloader

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"imgharvest/pkg/logger"
)

// Job is one candidate queued for download. Seq is the candidate's position
// in the dispatch order.
type Job struct {
	Seq int
	URL string
}

// Processor handles a single job and reports its outcome
type Processor func(ctx context.Context, job Job, workerID int) Outcome

// WorkerPool manages concurrent download workers
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Outcome
	group       *errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	process     Processor
	logger      logger.Logger
	stopOnce    sync.Once
}

// NewWorkerPool creates a pool whose workers run process. Cancelling parent
// stops dispatch; jobs still queued are drained without being processed.
func NewWorkerPool(parent context.Context, numWorkers int, process Processor, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Outcome, numWorkers),
		group:       group,
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      log,
	}
}

// Start launches all workers
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		wp.group.Go(func() error {
			wp.worker(id)
			return nil
		})
	}
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Stop closes the queue, waits for the workers and closes Results. It must
// be called by the goroutine that submits jobs.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.jobQueue)
		wp.group.Wait()
		close(wp.resultQueue)
		wp.cancel()
		wp.logger.Debug("Worker pool stopped")
	})
}

// Cancel stops dispatch without waiting
func (wp *WorkerPool) Cancel() {
	wp.cancel()
}

// Results returns the outcome channel. It is closed by Stop.
func (wp *WorkerPool) Results() <-chan Outcome {
	return wp.resultQueue
}

// Context is cancelled once the pool stops dispatching
func (wp *WorkerPool) Context() context.Context {
	return wp.ctx
}

func (wp *WorkerPool) worker(id int) {
	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			continue
		}
		// the consumer drains Results until Stop closes it
		wp.resultQueue <- wp.process(wp.ctx, job, id)
	}

	wp.logger.DebugWithFields("Worker stopping - job queue closed", map[string]interface{}{
		"worker_id": id,
	})
}
