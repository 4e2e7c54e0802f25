package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"scrapeflow/internal/domain"
	"scrapeflow/internal/monitoring"
	"scrapeflow/internal/task"

	"go.uber.org/zap"
)

// ResultSink receives tasks that reached the completed state, e.g. a result
// archive or a message publisher. Sink failures are logged, never fatal to
// the task.
type ResultSink interface {
	Record(ctx context.Context, t *domain.Task) error
}

// Scheduler accepts scrape submissions into a bounded queue and runs the
// worker pool that drains it. A task id is enqueued exactly once and a
// worker owns the task for its full lifetime, so at most one worker ever
// processes a given task.
type Scheduler struct {
	store      task.Store
	controller *Controller
	sinks      []ResultSink
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	workers    int

	queue    chan string
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScheduler(
	store task.Store,
	controller *Controller,
	sinks []ResultSink,
	m *monitoring.Metrics,
	l *zap.Logger,
	workers, queueSize int,
) *Scheduler {
	return &Scheduler{
		store:      store,
		controller: controller,
		sinks:      sinks,
		metrics:    m,
		logger:     l,
		workers:    workers,
		queue:      make(chan string, queueSize),
		stopChan:   make(chan struct{}),
	}
}

// Submit creates a task record and enqueues it, returning the task id
// without waiting for processing. When the queue is full the record is
// rolled back and domain.ErrQueueFull returned so the caller can retry.
func (s *Scheduler) Submit(ctx context.Context, url string) (string, error) {
	t, err := s.store.Create(ctx, url)
	if err != nil {
		return "", err
	}

	select {
	case s.queue <- t.ID:
		s.metrics.QueueDepth.Inc()
		s.logger.Debug("task enqueued", zap.String("task_id", t.ID), zap.String("url", url))
		return t.ID, nil
	default:
		if delErr := s.store.Delete(ctx, t.ID); delErr != nil {
			s.logger.Error("failed to roll back rejected task",
				zap.String("task_id", t.ID), zap.Error(delErr))
		}
		s.metrics.IncError("queue_full")
		return "", domain.ErrQueueFull
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.logger.Info("scheduler started", zap.Int("workers", s.workers))
}

// Stop signals the workers and waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopChan:
			return
		case id := <-s.queue:
			s.metrics.QueueDepth.Dec()
			s.process(id)
		}
	}
}

func (s *Scheduler) process(id string) {
	ctx := context.Background()

	t, err := s.store.Transition(ctx, id, domain.StateQueued, domain.StateProcessing, domain.TransitionPayload{})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentModification) {
			// The queue hands out each id once, so a second claimant means
			// a scheduler bug, not a transient race.
			s.logger.DPanic("task claimed by two workers",
				zap.String("task_id", id), zap.Error(err))
			return
		}
		s.logger.Error("failed to claim task", zap.String("task_id", id), zap.Error(err))
		s.metrics.IncError("persistence")
		return
	}

	start := time.Now()
	outcome, runErr := s.controller.Run(ctx, t)
	s.metrics.ScrapeDuration.Observe(time.Since(start).Seconds())

	if runErr != nil {
		s.finish(ctx, id, domain.StateFailed, domain.TransitionPayload{
			Error:        runErr.Error(),
			Reason:       reasonFor(runErr),
			AttemptCount: outcome.Attempts,
		})
		s.metrics.IncProcessed("failed")
		return
	}

	s.finish(ctx, id, domain.StateCompleted, domain.TransitionPayload{
		Result:       outcome.Result,
		AttemptCount: outcome.Attempts,
	})
	s.metrics.IncProcessed("completed")

	if len(s.sinks) > 0 {
		if t, err := s.store.Get(ctx, id); err == nil {
			s.record(ctx, t)
		}
	}
}

func (s *Scheduler) finish(ctx context.Context, id string, state domain.TaskState, payload domain.TransitionPayload) {
	_, err := s.store.Transition(ctx, id, domain.StateProcessing, state, payload)
	if err == nil {
		s.logger.Info("task finished",
			zap.String("task_id", id),
			zap.String("state", string(state)),
			zap.Int("attempts", payload.AttemptCount))
		return
	}
	if errors.Is(err, domain.ErrConcurrentModification) {
		s.logger.DPanic("terminal transition raced with another writer",
			zap.String("task_id", id), zap.Error(err))
		return
	}
	s.logger.Error("failed to record task outcome",
		zap.String("task_id", id), zap.Error(err))
	s.metrics.IncError("persistence")
}

func (s *Scheduler) record(ctx context.Context, t *domain.Task) {
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, t); err != nil {
			s.logger.Warn("result sink failed",
				zap.String("task_id", t.ID), zap.Error(err))
		}
	}
}

// reasonFor maps a pipeline error onto the failure taxonomy exposed to API
// callers.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrMaxRetries):
		return domain.ReasonMaxRetriesExceeded
	case errors.Is(err, domain.ErrGeneration):
		return domain.ReasonGenerationFailed
	case errors.Is(err, domain.ErrPersistence):
		return domain.ReasonPersistenceError
	default:
		return domain.ReasonMaxRetriesExceeded
	}
}
