package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"scrapeflow/internal/domain"
	"scrapeflow/internal/task"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingSink captures tasks handed to a result sink.
type recordingSink struct {
	mu    sync.Mutex
	tasks []*domain.Task
}

func (s *recordingSink) Record(ctx context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *recordingSink) recorded() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Task(nil), s.tasks...)
}

func newTestScheduler(store task.Store, ex *stubExtractor, sinks []ResultSink, workers, queueSize int) *Scheduler {
	controller := newTestController(newStubRuleStore(), &stubGenerator{}, ex, testPolicy())
	return NewScheduler(store, controller, sinks, testMetrics, zap.NewNop(), workers, queueSize)
}

func TestSchedulerSubmitReturnsImmediately(t *testing.T) {
	store := task.NewMemoryStore()
	sched := newTestScheduler(store, &stubExtractor{results: []extractStep{{result: goodResult()}}}, nil, 1, 10)
	// Workers not started: the task must sit in the queue.

	id, err := sched.Submit(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateQueued, got.State, "before processing a task is queued, never terminal")
}

func TestSchedulerSubmitInvalidURL(t *testing.T) {
	store := task.NewMemoryStore()
	sched := newTestScheduler(store, &stubExtractor{results: []extractStep{{result: goodResult()}}}, nil, 1, 10)

	_, err := sched.Submit(context.Background(), "::nope")
	assert.ErrorIs(t, err, domain.ErrInvalidURL)
}

func TestSchedulerQueueFullBackpressure(t *testing.T) {
	store := task.NewMemoryStore()
	sched := newTestScheduler(store, &stubExtractor{results: []extractStep{{result: goodResult()}}}, nil, 1, 1)
	// Workers not started, so the single queue slot stays occupied.

	_, err := sched.Submit(context.Background(), "https://example.com/1")
	require.NoError(t, err)

	id, err := sched.Submit(context.Background(), "https://example.com/2")
	assert.ErrorIs(t, err, domain.ErrQueueFull)
	assert.Empty(t, id)
}

func TestSchedulerProcessesToCompletion(t *testing.T) {
	store := task.NewMemoryStore()
	sink := &recordingSink{}
	ex := &stubExtractor{results: []extractStep{{result: goodResult()}}}
	sched := newTestScheduler(store, ex, []ResultSink{sink}, 2, 10)
	sched.Start()
	defer sched.Stop()

	id, err := sched.Submit(context.Background(), "https://example.com/article")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), id)
		return err == nil && got.State.Terminal()
	}, 3*time.Second, 10*time.Millisecond)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.Result)
	assert.Equal(t, "headline", got.Result.Title)
	assert.Empty(t, got.Error)

	recorded := sink.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, id, recorded[0].ID)

	// Terminal data is stable across reads.
	again, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSchedulerRecordsFailureWithReason(t *testing.T) {
	store := task.NewMemoryStore()
	ex := &stubExtractor{results: []extractStep{{err: fmt.Errorf("%w: page gone", domain.ErrExtraction)}}}
	sched := newTestScheduler(store, ex, nil, 1, 10)
	sched.Start()
	defer sched.Stop()

	id, err := sched.Submit(context.Background(), "https://example.com/article")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), id)
		return err == nil && got.State == domain.StateFailed
	}, 3*time.Second, 10*time.Millisecond)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMaxRetriesExceeded, got.Reason)
	assert.Contains(t, got.Error, "page gone")
	assert.Equal(t, 3, got.AttemptCount)
	assert.Nil(t, got.Result)
}

func TestSchedulerParallelTasksIsolated(t *testing.T) {
	store := task.NewMemoryStore()
	ex := &stubExtractor{results: []extractStep{{result: goodResult()}}}
	sched := newTestScheduler(store, ex, nil, 4, 32)
	sched.Start()
	defer sched.Stop()

	ids := make([]string, 8)
	for i := range ids {
		id, err := sched.Submit(context.Background(), fmt.Sprintf("https://site-%d.com/a", i))
		require.NoError(t, err)
		ids[i] = id
	}

	require.Eventually(t, func() bool {
		for _, id := range ids {
			got, err := store.Get(context.Background(), id)
			if err != nil || !got.State.Terminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	for _, id := range ids {
		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateCompleted, got.State)
	}
}
