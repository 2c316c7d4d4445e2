package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/songzhibin97/workflow-engine/types"
)

// MemoryStore is an in-memory implementation of DefinitionStore,
// ExecutionStore and NodeExecutionStore, useful for tests and for running
// the engine without an external database.
type MemoryStore struct {
	mu             sync.RWMutex
	definitions    map[uint64]types.Definition
	executions     map[uint64]Execution
	nodeExecutions map[uint64][]NodeExecution // keyed by ExecutionID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions:    make(map[uint64]types.Definition),
		executions:     make(map[uint64]Execution),
		nodeExecutions: make(map[uint64][]NodeExecution),
	}
}

// getItem is a standalone generic helper function, parameterized over
// whichever record map the caller holds.
func getItem[T any](ctx context.Context, m map[uint64]T, id uint64, errNotFound error) (T, error) {
	return withContext(ctx, func() (T, error) {
		item, ok := m[id]
		if !ok {
			var zero T
			return zero, fmt.Errorf("%w: id=%d", errNotFound, id)
		}
		return item, nil
	})
}

func (s *MemoryStore) SaveDefinition(ctx context.Context, def types.Definition) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.definitions[def.ID] = def
		return struct{}{}, nil
	})
	return err
}

func (s *MemoryStore) GetDefinition(ctx context.Context, id uint64) (types.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.definitions, id, ErrDefinitionNotFound)
}

func (s *MemoryStore) SaveExecution(ctx context.Context, exec Execution) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.executions[exec.ID] = exec
		return struct{}{}, nil
	})
	return err
}

func (s *MemoryStore) GetExecution(ctx context.Context, id uint64) (Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.executions, id, ErrExecutionNotFound)
}

func (s *MemoryStore) SaveNodeExecution(ctx context.Context, rec NodeExecution) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.nodeExecutions[rec.ExecutionID]
		for i, existing := range list {
			if existing.ID == rec.ID {
				list[i] = rec
				s.nodeExecutions[rec.ExecutionID] = list
				return struct{}{}, nil
			}
		}
		s.nodeExecutions[rec.ExecutionID] = append(list, rec)
		return struct{}{}, nil
	})
	return err
}

func (s *MemoryStore) ListNodeExecutions(ctx context.Context, executionID uint64) ([]NodeExecution, error) {
	return withContext(ctx, func() ([]NodeExecution, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		list := s.nodeExecutions[executionID]
		out := make([]NodeExecution, len(list))
		copy(out, list)
		return out, nil
	})
}

// ClearCompleted removes executions that have reached a terminal status.
func (s *MemoryStore) ClearCompleted(ctx context.Context) error {
	_, err := withContext(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for id, exec := range s.executions {
			if exec.Status == types.StatusCompleted || exec.Status == types.StatusFailed {
				delete(s.executions, id)
				delete(s.nodeExecutions, id)
			}
		}
		return struct{}{}, nil
	})
	return err
}
