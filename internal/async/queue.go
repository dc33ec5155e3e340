package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Submit after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Job is one unit of work. Name is used for logging only.
type Job struct {
	Name        string
	Run         func(ctx context.Context) error
	SubmittedAt time.Time
}

type Queue interface {
	Submit(ctx context.Context, job Job) (<-chan error, error)
	Shutdown(ctx context.Context)
}

type envelope struct {
	job  Job
	done chan error
}

// WorkerQueue runs jobs on a fixed pool of workers. With WithProcessTimeout
// each job runs under its own deadline; by default jobs carry none and rely
// on the budgets of the calls they make.
type WorkerQueue struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan envelope
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*WorkerQueue)

func WithWorkers(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *WorkerQueue) {
		if n > 0 {
			q.ch = make(chan envelope, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *WorkerQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewWorkerQueue(logger *slog.Logger, opts ...Option) *WorkerQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &WorkerQueue{
		logger:  logger,
		workers: 4,
		ch:      make(chan envelope, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *WorkerQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for env := range q.ch {
					err := q.run(env.job)
					if err != nil {
						q.logger.Error("job failed", "worker_id", workerID, "job", env.job.Name, "error", err)
					} else {
						q.logger.Debug("job done", "worker_id", workerID, "job", env.job.Name,
							"waited", time.Since(env.job.SubmittedAt))
					}
					env.done <- err
					close(env.done)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *WorkerQueue) run(job Job) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	if q.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), q.timeout)
	}
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run(ctx)
}

// Submit enqueues job and returns a channel that receives its result. It
// blocks while the queue is full until ctx is done.
func (q *WorkerQueue) Submit(ctx context.Context, job Job) (<-chan error, error) {
	if job.Run == nil {
		return nil, fmt.Errorf("job %q has no Run func", job.Name)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	env := envelope{job: job, done: make(chan error, 1)}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot submit: queue is shutting down", "job", job.Name)
		return nil, ErrQueueClosed
	}
	select {
	case q.ch <- env:
		return env.done, nil
	default:
	}
	q.logger.Debug("queue full, applying backpressure", "job", job.Name)
	select {
	case q.ch <- env:
		return env.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do submits fn and waits for it.
func (q *WorkerQueue) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	done, err := q.Submit(ctx, Job{Name: name, Run: fn})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *WorkerQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}

var _ Queue = (*WorkerQueue)(nil)
