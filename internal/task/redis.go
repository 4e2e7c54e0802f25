package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scrapeflow/internal/domain"

	"github.com/redis/go-redis/v9"
)

const taskKeyPrefix = "task:"

// RedisStore persists task records as JSON values under task:{id}.
//
// Transitions run inside a WATCH/MULTI block: the expected-state check plus
// the optimistic lock on the key give per-task mutual exclusion without any
// global lock.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects a Store to Redis. Records expire after ttl, which
// is the retention policy for finished tasks (Redis handles the purge).
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func taskKey(id string) string { return taskKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, url string) (*domain.Task, error) {
	t, err := newTask(url)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal task: %v", domain.ErrPersistence, err)
	}
	if err := s.client.Set(ctx, taskKey(t.ID), raw, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return t, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	raw, err := s.client.Get(ctx, taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: unmarshal task %s: %v", domain.ErrPersistence, id, err)
	}
	return &t, nil
}

func (s *RedisStore) Transition(ctx context.Context, id string, expected, next domain.TaskState, payload domain.TransitionPayload) (*domain.Task, error) {
	key := taskKey(id)
	var updated *domain.Task

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		var current domain.Task
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("%w: unmarshal task %s: %v", domain.ErrPersistence, id, err)
		}
		updated, err = applyTransition(&current, expected, next, payload)
		if err != nil {
			return err
		}
		out, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("%w: marshal task: %v", domain.ErrPersistence, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the record between read and write.
		return nil, domain.ErrConcurrentModification
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, taskKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}
