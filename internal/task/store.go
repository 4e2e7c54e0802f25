package task

import (
	"context"
	"time"

	"scrapeflow/internal/domain"

	"github.com/google/uuid"
)

// Store holds task records keyed by task id.
//
// Transition enforces the monotonic state machine and per-task mutual
// exclusion: it compares the supplied expected state against the stored one
// and fails with domain.ErrConcurrentModification when they disagree, so two
// workers can never both move the same task.
type Store interface {
	Create(ctx context.Context, url string) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	Transition(ctx context.Context, id string, expected, next domain.TaskState, payload domain.TransitionPayload) (*domain.Task, error)
	// Delete removes a record. Used to roll back a submit rejected by the
	// queue and by external purge policies.
	Delete(ctx context.Context, id string) error
}

// newTask builds a fresh queued record for a URL. Fails on URLs without a
// parseable host, since the domain is the rule-set key.
func newTask(url string) (*domain.Task, error) {
	d, err := domain.DomainOf(url)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &domain.Task{
		ID:        uuid.NewString(),
		URL:       url,
		Domain:    d,
		State:     domain.StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// applyTransition validates expected/next against the record and returns the
// updated copy. Shared by both store implementations so the state machine
// lives in one place.
func applyTransition(t *domain.Task, expected, next domain.TaskState, payload domain.TransitionPayload) (*domain.Task, error) {
	if t.State != expected {
		return nil, domain.ErrConcurrentModification
	}
	if !t.State.CanTransitionTo(next) {
		return nil, domain.ErrInvalidTransition
	}
	updated := *t
	updated.State = next
	updated.UpdatedAt = time.Now().UTC()
	if payload.AttemptCount > 0 {
		updated.AttemptCount = payload.AttemptCount
	}
	switch next {
	case domain.StateCompleted:
		updated.Result = payload.Result
	case domain.StateFailed:
		updated.Error = payload.Error
		updated.Reason = payload.Reason
	}
	return &updated, nil
}
