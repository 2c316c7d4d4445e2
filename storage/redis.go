package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/songzhibin97/workflow-engine/types"
)

const (
	definitionPrefix    = "workflow-engine:definition:"
	executionPrefix     = "workflow-engine:execution:"
	nodeExecutionPrefix = "workflow-engine:node-exec:" // + executionID, a Redis list
)

// ErrNotFound is returned when a requested key does not exist in Redis.
var ErrNotFound = errors.New("resource not found")

// RedisStore is a Redis-backed implementation of DefinitionStore,
// ExecutionStore and NodeExecutionStore.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions extends redis.Options with the connection settings this
// package exposes.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	IdleTimeout  time.Duration
}

// NewRedisStore creates a RedisStore, failing fast if the server cannot be
// reached.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		IdleTimeout:  opts.IdleTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisStore{client: client}, nil
}

func withContextError(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

func (s *RedisStore) saveJSON(ctx context.Context, key string, value interface{}) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %v", key, err)
		}
		if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set %s in Redis: %v", key, err)
		}
		return nil
	})
}

func getJSON[T any](ctx context.Context, client *redis.Client, key string) (T, error) {
	return withContext(ctx, func() (T, error) {
		var zero T
		data, err := client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return zero, fmt.Errorf("%w: key=%s", ErrNotFound, key)
		} else if err != nil {
			return zero, fmt.Errorf("failed to get %s from Redis: %v", key, err)
		}
		var result T
		if err := json.Unmarshal(data, &result); err != nil {
			return zero, fmt.Errorf("failed to unmarshal %s: %v", key, err)
		}
		return result, nil
	})
}

func (s *RedisStore) SaveDefinition(ctx context.Context, def types.Definition) error {
	return s.saveJSON(ctx, fmt.Sprintf("%s%d", definitionPrefix, def.ID), def)
}

func (s *RedisStore) GetDefinition(ctx context.Context, id uint64) (types.Definition, error) {
	return getJSON[types.Definition](ctx, s.client, fmt.Sprintf("%s%d", definitionPrefix, id))
}

func (s *RedisStore) SaveExecution(ctx context.Context, exec Execution) error {
	return s.saveJSON(ctx, fmt.Sprintf("%s%d", executionPrefix, exec.ID), exec)
}

func (s *RedisStore) GetExecution(ctx context.Context, id uint64) (Execution, error) {
	return getJSON[Execution](ctx, s.client, fmt.Sprintf("%s%d", executionPrefix, id))
}

// SaveNodeExecution appends rec to the execution's node-execution list.
// Records are append-only in Redis (unlike MemoryStore, which overwrites
// by id) since RPUSH cannot update in place; ListNodeExecutions returns
// every version recorded for a node visit, most recent last.
func (s *RedisStore) SaveNodeExecution(ctx context.Context, rec NodeExecution) error {
	return withContextError(ctx, func() error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal node execution %s: %v", rec.ID, err)
		}
		key := fmt.Sprintf("%s%d", nodeExecutionPrefix, rec.ExecutionID)
		if err := s.client.RPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("failed to push node execution to Redis: %v", err)
		}
		return nil
	})
}

func (s *RedisStore) ListNodeExecutions(ctx context.Context, executionID uint64) ([]NodeExecution, error) {
	return withContext(ctx, func() ([]NodeExecution, error) {
		key := fmt.Sprintf("%s%d", nodeExecutionPrefix, executionID)
		raw, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read node executions from Redis: %v", err)
		}
		out := make([]NodeExecution, 0, len(raw))
		for _, item := range raw {
			var rec NodeExecution
			if err := json.Unmarshal([]byte(item), &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal node execution: %v", err)
			}
			out = append(out, rec)
		}
		return out, nil
	})
}

// ClearCompleted removes execution and node-execution keys whose execution
// has reached a terminal status.
func (s *RedisStore) ClearCompleted(ctx context.Context) error {
	return withContextError(ctx, func() error {
		keys, err := s.client.Keys(ctx, executionPrefix+"*").Result()
		if err != nil {
			return fmt.Errorf("failed to scan execution keys: %v", err)
		}

		pipe := s.client.Pipeline()
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			} else if err != nil {
				return fmt.Errorf("failed to get %s: %v", key, err)
			}

			var exec Execution
			if err := json.Unmarshal(data, &exec); err != nil {
				return fmt.Errorf("failed to unmarshal %s: %v", key, err)
			}

			if exec.Status == types.StatusCompleted || exec.Status == types.StatusFailed {
				pipe.Del(ctx, key)
				pipe.Del(ctx, fmt.Sprintf("%s%d", nodeExecutionPrefix, exec.ID))
			}
		}

		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to execute pipeline for deletion: %v", err)
		}
		return nil
	})
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
