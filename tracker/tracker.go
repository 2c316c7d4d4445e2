// Package tracker implements the NodeExecutionSink contract: a stream of
// node lifecycle events (Start/Complete/Fail/MarkWaiting/MarkSkipped)
// delivered to an external writer without blocking the engine's event
// loop. AsyncSink queues writes on an unbounded mailbox.Mailbox drained
// by one goroutine, logging (and otherwise ignoring) write errors: a
// single best-effort dispatch rather than multi-topic pub/sub fan-out.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/common-fate/clio"
	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/types"
)

// Handle is an opaque correlation token returned by Start. The zero value
// is invalid; all methods treat an invalid handle as a no-op — a failed
// Start returns a null handle and all later calls on that handle are
// no-ops.
type Handle struct {
	id    string
	valid bool
}

// StartInput carries everything a sink needs to open a node execution
// record.
type StartInput struct {
	WorkflowID  uint64
	ExecutionID uint64
	TokenID     uuid.UUID
	NodeID      string
	NodeType    types.NodeKind
	InputData   map[string]interface{}
}

// NodeExecutionSink is the engine's external observer for per-node
// lifecycle events.
type NodeExecutionSink interface {
	Start(ctx context.Context, in StartInput) (Handle, error)
	Complete(ctx context.Context, h Handle, output map[string]interface{})
	Fail(ctx context.Context, h Handle, errMessage string)
	MarkWaiting(ctx context.Context, h Handle)
	MarkSkipped(ctx context.Context, h Handle)
}

// Record is the in-memory shape of one node execution, dispatched to a
// RecordWriter. It mirrors the persisted NodeExecution row.
type Record struct {
	ID           string
	WorkflowID   uint64
	ExecutionID  uint64
	TokenID      uuid.UUID
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

// RecordWriter persists (or otherwise observes) a Record. Implementations
// must tolerate concurrent calls.
type RecordWriter interface {
	WriteRecord(ctx context.Context, rec Record) error
}

// AsyncSink dispatches every state change to a RecordWriter on a single
// background goroutine so a slow writer can never stall the engine.
type AsyncSink struct {
	mu      sync.Mutex
	records map[string]*Record
	writer  RecordWriter
	mb      *mailbox.Mailbox[func()]
}

// NewAsyncSink creates a sink that dispatches to writer. writer may be
// nil, in which case Start still hands out valid handles (so engine-side
// bookkeeping works the same way) but nothing is persisted.
func NewAsyncSink(writer RecordWriter) *AsyncSink {
	s := &AsyncSink{
		records: make(map[string]*Record),
		writer:  writer,
		mb:      mailbox.New[func()](),
	}
	go s.mb.Run(func(fn func()) { fn() })
	return s
}

func (s *AsyncSink) dispatch(ctx context.Context, rec Record) {
	if s.writer == nil {
		return
	}
	writer := s.writer
	s.mb.Send(func() {
		if err := writer.WriteRecord(ctx, rec); err != nil {
			clio.Errorf("tracker: failed to write node execution record %s: %v", rec.ID, err)
		}
	})
}

func (s *AsyncSink) Start(ctx context.Context, in StartInput) (Handle, error) {
	id := uuid.New().String()
	rec := &Record{
		ID:          id,
		WorkflowID:  in.WorkflowID,
		ExecutionID: in.ExecutionID,
		TokenID:     in.TokenID,
		NodeID:      in.NodeID,
		NodeType:    in.NodeType,
		Status:      types.NodeExecExecuting,
		InputData:   in.InputData,
		StartedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()

	s.dispatch(ctx, *rec)
	return Handle{id: id, valid: true}, nil
}

func (s *AsyncSink) Complete(ctx context.Context, h Handle, output map[string]interface{}) {
	if !h.valid {
		return
	}
	s.mu.Lock()
	rec, ok := s.records[h.id]
	if ok {
		rec.Status = types.NodeExecCompleted
		rec.OutputData = output
		rec.CompletedAt = time.Now().UTC()
		rec.DurationMs = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
		delete(s.records, h.id)
	}
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, *rec)
	}
}

func (s *AsyncSink) Fail(ctx context.Context, h Handle, errMessage string) {
	if !h.valid {
		return
	}
	s.mu.Lock()
	rec, ok := s.records[h.id]
	if ok {
		rec.Status = types.NodeExecFailed
		rec.ErrorMessage = errMessage
		rec.CompletedAt = time.Now().UTC()
		rec.DurationMs = rec.CompletedAt.Sub(rec.StartedAt).Milliseconds()
		delete(s.records, h.id)
	}
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, *rec)
	}
}

func (s *AsyncSink) MarkWaiting(ctx context.Context, h Handle) {
	if !h.valid {
		return
	}
	s.mu.Lock()
	rec, ok := s.records[h.id]
	var snapshot Record
	if ok {
		rec.Status = types.NodeExecWaiting
		snapshot = *rec
	}
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, snapshot)
	}
}

func (s *AsyncSink) MarkSkipped(ctx context.Context, h Handle) {
	if !h.valid {
		return
	}
	s.mu.Lock()
	rec, ok := s.records[h.id]
	if ok {
		rec.Status = types.NodeExecSkipped
		rec.CompletedAt = time.Now().UTC()
		delete(s.records, h.id)
	}
	s.mu.Unlock()
	if ok {
		s.dispatch(ctx, *rec)
	}
}

// NoopSink discards every event. Used as the engine's default when no
// tracker is configured.
type NoopSink struct{}

func (NoopSink) Start(ctx context.Context, in StartInput) (Handle, error) { return Handle{}, nil }
func (NoopSink) Complete(ctx context.Context, h Handle, output map[string]interface{}) {}
func (NoopSink) Fail(ctx context.Context, h Handle, errMessage string)                {}
func (NoopSink) MarkWaiting(ctx context.Context, h Handle)                            {}
func (NoopSink) MarkSkipped(ctx context.Context, h Handle)                            {}
