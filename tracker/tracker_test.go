package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/types"
)

type fakeWriter struct {
	mu   sync.Mutex
	recs []Record
}

func (w *fakeWriter) WriteRecord(ctx context.Context, rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recs = append(w.recs, rec)
	return nil
}

func (w *fakeWriter) snapshot() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Record, len(w.recs))
	copy(out, w.recs)
	return out
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAsyncSinkStartThenComplete(t *testing.T) {
	w := &fakeWriter{}
	s := NewAsyncSink(w)

	h, err := s.Start(context.Background(), StartInput{WorkflowID: 1, NodeID: "a", TokenID: uuid.New()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Complete(context.Background(), h, map[string]interface{}{"ok": true})

	waitUntil(t, time.Second, func() bool { return len(w.snapshot()) == 2 })

	recs := w.snapshot()
	if recs[0].Status != types.NodeExecExecuting {
		t.Fatalf("expected first dispatched record to be executing, got %s", recs[0].Status)
	}
	last := recs[len(recs)-1]
	if last.Status != types.NodeExecCompleted {
		t.Fatalf("expected final record to be completed, got %s", last.Status)
	}
	if last.DurationMs < 0 {
		t.Fatalf("expected non-negative duration, got %d", last.DurationMs)
	}
}

func TestAsyncSinkFail(t *testing.T) {
	w := &fakeWriter{}
	s := NewAsyncSink(w)

	h, err := s.Start(context.Background(), StartInput{NodeID: "a", TokenID: uuid.New()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Fail(context.Background(), h, "boom")

	waitUntil(t, time.Second, func() bool {
		recs := w.snapshot()
		return len(recs) > 0 && recs[len(recs)-1].Status == types.NodeExecFailed
	})

	last := w.snapshot()[len(w.snapshot())-1]
	if last.ErrorMessage != "boom" {
		t.Fatalf("expected error message 'boom', got %q", last.ErrorMessage)
	}
}

func TestAsyncSinkInvalidHandleIsNoop(t *testing.T) {
	w := &fakeWriter{}
	s := NewAsyncSink(w)

	s.Complete(context.Background(), Handle{}, nil)
	s.Fail(context.Background(), Handle{}, "nope")
	s.MarkWaiting(context.Background(), Handle{})
	s.MarkSkipped(context.Background(), Handle{})

	time.Sleep(20 * time.Millisecond)
	if len(w.snapshot()) != 0 {
		t.Fatalf("expected no dispatch for an invalid handle, got %d records", len(w.snapshot()))
	}
}

func TestAsyncSinkWithNilWriterStillHandsOutHandles(t *testing.T) {
	s := NewAsyncSink(nil)
	h, err := s.Start(context.Background(), StartInput{NodeID: "a", TokenID: uuid.New()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !h.valid {
		t.Fatal("expected a valid handle even with a nil writer")
	}
	s.Complete(context.Background(), h, nil) // must not panic
}

func TestNoopSink(t *testing.T) {
	var s NoopSink
	h, err := s.Start(context.Background(), StartInput{})
	if err != nil || h.valid {
		t.Fatalf("expected NoopSink.Start to return a zero, invalid handle, got %#v err=%v", h, err)
	}
	s.Complete(context.Background(), h, nil)
	s.Fail(context.Background(), h, "x")
	s.MarkWaiting(context.Background(), h)
	s.MarkSkipped(context.Background(), h)
}
