// Package async runs extraction jobs on a bounded worker pool. At most one
// job per company is admitted at a time; a second submission for the same
// company is rejected while the first is in flight.
package async

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
)

// Task is one queued extraction request.
type Task struct {
	Job *entity.Job
	PDF []byte
}

// Runner executes a single task end to end.
type Runner interface {
	Run(ctx context.Context, job *entity.Job, pdf []byte) error
}

type JobQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Task
	wg   sync.WaitGroup
	enq  sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	closed   bool
	inflight map[uuid.UUID]struct{}
}

type Option func(*JobQueue)

func WithWorkers(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *JobQueue) {
		if n > 0 {
			q.ch = make(chan Task, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *JobQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewJobQueue(runner Runner, logger *slog.Logger, opts ...Option) *JobQueue {
	q := &JobQueue{
		runner:   runner,
		logger:   logger,
		workers:  4,
		timeout:  5 * time.Minute,
		ch:       make(chan Task, 64),
		inflight: make(map[uuid.UUID]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *JobQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for task := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					err := q.runner.Run(ctx, task.Job, task.PDF)
					cancel()
					q.release(task.Job.CompanyID)

					if err != nil {
						q.logger.Error("job failed",
							"worker_id", workerID, "job_id", task.Job.ID, "error", err)
					} else {
						q.logger.Info("job completed",
							"worker_id", workerID, "job_id", task.Job.ID)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue admits a task unless the queue is shutting down or another job for
// the same company is already queued or running.
func (q *JobQueue) Enqueue(_ context.Context, task Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", task.Job.ID)
		return common.ErrBusy
	}
	if _, held := q.inflight[task.Job.CompanyID]; held {
		q.mu.Unlock()
		q.logger.Warn("rejecting concurrent extraction",
			"job_id", task.Job.ID, "company_id", task.Job.CompanyID)
		return common.ErrBusy
	}
	q.inflight[task.Job.CompanyID] = struct{}{}
	// Register the pending send while still under the lock so Shutdown
	// cannot close the channel underneath it.
	q.enq.Add(1)
	q.mu.Unlock()
	defer q.enq.Done()

	select {
	case q.ch <- task:
		q.logger.Info("queued extraction job",
			"job_id", task.Job.ID, "company_id", task.Job.CompanyID, "bytes", len(task.PDF))
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", task.Job.ID)
		q.ch <- task
	}
	return nil
}

func (q *JobQueue) release(companyID uuid.UUID) {
	q.mu.Lock()
	delete(q.inflight, companyID)
	q.mu.Unlock()
}

func (q *JobQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// Producers that registered before closed was set may still be blocked
	// in the backpressure send; workers keep draining until they finish, so
	// this wait terminates. Only then is the channel safe to close.
	q.enq.Wait()
	close(q.ch)

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
