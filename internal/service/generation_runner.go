package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-scheduler/internal/dto"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/jobs"
)

const jobTypeGenerate = "schedule.generate"

type runGenerator interface {
	Validate(req dto.GenerateRequest) error
	generate(ctx context.Context, runID string, req dto.GenerateRequest) (*dto.GenerateResponse, error)
}

// RunnerConfig sizes the background worker pool.
type RunnerConfig struct {
	Workers   int
	QueueSize int
	RunTTL    time.Duration
}

// GenerationRunner executes generations in the background and keeps their status pollable
// for RunTTL after they finish.
type GenerationRunner struct {
	generator runGenerator
	queue     *jobs.Queue
	runs      *runStore
	logger    *zap.Logger
}

// NewGenerationRunner builds the runner. Call Start before submitting.
func NewGenerationRunner(generator runGenerator, cfg RunnerConfig, logger *zap.Logger) *GenerationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 30 * time.Minute
	}
	r := &GenerationRunner{
		generator: generator,
		runs:      newRunStore(cfg.RunTTL),
		logger:    logger,
	}
	r.queue = jobs.NewQueue("schedule-generation", r.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.QueueSize,
		MaxRetries: 0,
		OnDiscard:  r.discard,
		Logger:     logger,
	})
	return r
}

// Start launches the workers.
func (r *GenerationRunner) Start(ctx context.Context) { r.queue.Start(ctx) }

// Stop cancels in-flight runs and waits for the workers to exit. Runs still queued end
// CANCELLED.
func (r *GenerationRunner) Stop() { r.queue.Stop() }

// QueueStats reports the worker pool load.
func (r *GenerationRunner) QueueStats() jobs.Stats { return r.queue.Stats() }

// Submit queues a generation and returns its run record.
func (r *GenerationRunner) Submit(req dto.GenerateRequest) (*dto.GenerationRun, error) {
	if err := r.generator.Validate(req); err != nil {
		return nil, err
	}
	r.runs.prune()

	run := dto.GenerationRun{
		ID:        uuid.NewString(),
		State:     dto.RunStateQueued,
		Request:   req,
		CreatedAt: time.Now().UTC(),
	}
	r.runs.save(run)
	if err := r.queue.Enqueue(jobs.Job{ID: run.ID, Type: jobTypeGenerate, Payload: req}); err != nil {
		r.runs.delete(run.ID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue is full")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue unavailable")
	}
	return &run, nil
}

// Get returns the current view of a run.
func (r *GenerationRunner) Get(id string) (*dto.GenerationRun, error) {
	run, ok := r.runs.get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}
	return &run, nil
}

// Cancel stops a queued or running generation. A running generation reaches CANCELLED once
// the search observes the cancellation.
func (r *GenerationRunner) Cancel(id string) (*dto.GenerationRun, error) {
	run, err := r.runs.cancel(id)
	if err != nil {
		return nil, err
	}
	r.logger.Info("generation run cancel requested", zap.String("run_id", id), zap.String("state", string(run.State)))
	return &run, nil
}

func (r *GenerationRunner) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateRequest)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !r.runs.start(job.ID, cancel) {
		return nil
	}
	resp, err := r.generator.generate(runCtx, job.ID, req)
	r.runs.finish(job.ID, resp, err)
	return nil
}

func (r *GenerationRunner) discard(job jobs.Job) {
	if _, err := r.runs.cancel(job.ID); err != nil {
		r.logger.Warn("could not cancel discarded generation run", zap.String("run_id", job.ID), zap.Error(err))
	}
}

type runEntry struct {
	run    dto.GenerationRun
	cancel context.CancelFunc
}

type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]*runEntry
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{ttl: ttl, items: make(map[string]*runEntry)}
}

func (s *runStore) save(run dto.GenerationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = &runEntry{run: run}
}

func (s *runStore) delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *runStore) get(id string) (dto.GenerationRun, bool) {
	s.mu.RLock()
	entry, ok := s.items[id]
	var run dto.GenerationRun
	if ok {
		run = entry.run
	}
	s.mu.RUnlock()
	if !ok {
		return dto.GenerationRun{}, false
	}
	if s.expired(run) {
		s.delete(id)
		return dto.GenerationRun{}, false
	}
	return run, true
}

func (s *runStore) expired(run dto.GenerationRun) bool {
	return run.State.Finished() && run.FinishedAt != nil && time.Since(*run.FinishedAt) > s.ttl
}

func (s *runStore) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.items {
		if s.expired(entry.run) {
			delete(s.items, id)
		}
	}
}

func (s *runStore) start(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok || entry.run.State != dto.RunStateQueued {
		return false
	}
	now := time.Now().UTC()
	entry.run.State = dto.RunStateRunning
	entry.run.StartedAt = &now
	entry.cancel = cancel
	return true
}

func (s *runStore) finish(id string, resp *dto.GenerateResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	entry.run.FinishedAt = &now
	entry.cancel = nil
	switch {
	case err == nil:
		entry.run.State = dto.RunStateSucceeded
		entry.run.Result = resp
	case appErrors.HasCode(err, appErrors.ErrCancelled.Code):
		entry.run.State = dto.RunStateCancelled
		entry.run.Error = appErrors.FromError(err)
	default:
		entry.run.State = dto.RunStateFailed
		entry.run.Error = appErrors.FromError(err)
	}
}

func (s *runStore) cancel(id string) (dto.GenerationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok || s.expired(entry.run) {
		return dto.GenerationRun{}, appErrors.Clone(appErrors.ErrNotFound, "generation run not found or expired")
	}
	switch entry.run.State {
	case dto.RunStateQueued:
		now := time.Now().UTC()
		entry.run.State = dto.RunStateCancelled
		entry.run.FinishedAt = &now
		entry.run.Error = appErrors.Clone(appErrors.ErrCancelled, "generation cancelled before start")
	case dto.RunStateRunning:
		if entry.cancel != nil {
			entry.cancel()
		}
	default:
		return dto.GenerationRun{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("generation run already %s", entry.run.State))
	}
	return entry.run, nil
}
