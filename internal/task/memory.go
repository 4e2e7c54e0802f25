package task

import (
	"context"
	"sync"

	"scrapeflow/internal/domain"
)

// MemoryStore is an in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*domain.Task)}
}

func (s *MemoryStore) Create(ctx context.Context, url string) (*domain.Task, error) {
	t, err := newTask(url)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tasks[t.ID] = t
	s.mu.Unlock()
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, expected, next domain.TaskState, payload domain.TransitionPayload) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	updated, err := applyTransition(t, expected, next, payload)
	if err != nil {
		return nil, err
	}
	s.tasks[id] = updated
	cp := *updated
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}
