// Package storage implements the persistence interfaces for definitions,
// executions and per-node execution records, each with a
// memory-backed and a Redis-backed implementation: small interfaces, a
// context-aware helper for cancellation, separate memory/redis files,
// with record types built around
// Definition/Execution/NodeExecution.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/songzhibin97/workflow-engine/tracker"
	"github.com/songzhibin97/workflow-engine/types"
)

// Errors returned by MemoryStore for a missing definition or execution.
// RedisStore reports a missing key with ErrNotFound instead.
var (
	ErrDefinitionNotFound = types.ErrDefinitionNotFound
	ErrExecutionNotFound  = types.ErrExecutionNotFound
)

// Execution is the persisted shape of one running (or finished) instance.
// ID is the same uint64 the engine calls its workflowID — one execution
// per started workflow, no separate re-run/retry identity.
type Execution struct {
	ID           uint64
	DefinitionID uint64
	Status       types.Status
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// NodeExecution is the persisted shape of one node visit, fed by
// tracker.AsyncSink through a RecordWriter adapter.
type NodeExecution struct {
	ID           string
	ExecutionID  uint64
	WorkflowID   uint64
	TokenID      string
	NodeID       string
	NodeType     types.NodeKind
	Status       types.NodeExecutionStatus
	InputData    map[string]interface{}
	OutputData   map[string]interface{}
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  time.Time
	DurationMs   int64
}

// DefinitionStore persists process graphs.
type DefinitionStore interface {
	SaveDefinition(ctx context.Context, def types.Definition) error
	GetDefinition(ctx context.Context, id uint64) (types.Definition, error)
}

// ExecutionStore persists per-instance execution metadata.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, exec Execution) error
	GetExecution(ctx context.Context, id uint64) (Execution, error)
}

// NodeExecutionStore persists the per-node visit history of an execution.
type NodeExecutionStore interface {
	SaveNodeExecution(ctx context.Context, rec NodeExecution) error
	ListNodeExecutions(ctx context.Context, executionID uint64) ([]NodeExecution, error)
}

// withContext is a standalone generic helper: it turns a context
// cancellation into an error before running fn, rather than running fn
// unconditionally.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
		return fn()
	}
}

func fromRecord(rec tracker.Record) NodeExecution {
	return NodeExecution{
		ID:           rec.ID,
		ExecutionID:  rec.ExecutionID,
		WorkflowID:   rec.WorkflowID,
		TokenID:      rec.TokenID.String(),
		NodeID:       rec.NodeID,
		NodeType:     rec.NodeType,
		Status:       rec.Status,
		InputData:    rec.InputData,
		OutputData:   rec.OutputData,
		ErrorMessage: rec.ErrorMessage,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
		DurationMs:   rec.DurationMs,
	}
}

// TrackerWriter adapts a NodeExecutionStore into a tracker.RecordWriter so
// tracker.AsyncSink can be pointed directly at persistent storage.
type TrackerWriter struct {
	Store NodeExecutionStore
}

// WriteRecord implements tracker.RecordWriter.
func (w TrackerWriter) WriteRecord(ctx context.Context, rec tracker.Record) error {
	if w.Store == nil {
		return errors.New("storage: TrackerWriter has no backing NodeExecutionStore")
	}
	return w.Store.SaveNodeExecution(ctx, fromRecord(rec))
}
