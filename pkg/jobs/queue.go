package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when every buffer slot is taken.
var ErrQueueFull = errors.New("queue full")

// Job is one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. The context is cancelled when the queue stops.
type Handler func(context.Context, Job) error

// QueueConfig sizes the worker pool. MaxRetries of zero disables retries; a negative value
// selects the default. OnDiscard receives every job still buffered when the queue stops.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	OnDiscard  func(Job)
	Logger     *zap.Logger
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Queued   int `json:"queued"`
	Active   int `json:"active"`
	Capacity int `json:"capacity"`
}

// Queue dispatches jobs to a fixed pool of goroutines over a bounded buffer.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs   chan Job
	active int64

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewQueue builds a queue; nothing runs until Start.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.BufferSize))
}

// Stop cancels the workers, waits for them and hands buffered jobs to OnDiscard.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started || q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()

	discarded := 0
	for {
		select {
		case job := <-q.jobs:
			discarded++
			if q.cfg.OnDiscard != nil {
				q.cfg.OnDiscard(job)
			}
		default:
			q.logger.Info("queue stopped", zap.Int("discarded", discarded))
			return
		}
	}
}

// Enqueue buffers job without blocking. The send happens under the same lock Stop takes,
// so a job accepted here is either run or handed to OnDiscard.
func (q *Queue) Enqueue(job Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if q.stopped {
		return fmt.Errorf("queue %s stopped: %w", q.name, context.Canceled)
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// Stats reports buffered and running jobs.
func (q *Queue) Stats() Stats {
	return Stats{
		Queued:   len(q.jobs),
		Active:   int(atomic.LoadInt64(&q.active)),
		Capacity: cap(q.jobs),
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if q.ctx.Err() != nil {
				q.requeue(job)
				return
			}
			q.run(workerID, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	atomic.AddInt64(&q.active, 1)
	defer atomic.AddInt64(&q.active, -1)

	q.logger.Debug("job picked up",
		zap.Int("worker", workerID),
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Duration("waited", time.Since(job.Enqueued)),
	)
	if err := q.handler(q.ctx, job); err != nil {
		q.retry(job, err)
	}
}

func (q *Queue) retry(job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if job.Attempt > q.cfg.MaxRetries {
		q.logger.Error("job failed", fields...)
		return
	}
	q.logger.Warn("job failed, retrying", fields...)

	go func(j Job) {
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}

// requeue returns a job picked up after cancellation to the buffer so Stop discards it.
func (q *Queue) requeue(job Job) {
	select {
	case q.jobs <- job:
	default:
		if q.cfg.OnDiscard != nil {
			q.cfg.OnDiscard(job)
		}
	}
}
