package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/types"
)

// fakeSink records every call a worker makes to its EngineSink, so node
// tests can assert on routing decisions without a real engine.
type fakeSink struct {
	mu                sync.Mutex
	forwarded         []Forward
	splits            []struct {
		parentID string
		children []Forward
	}
	executed          []string
	waiting           []string
	activityCompleted []string
	workflowCompleted []string
}

func (s *fakeSink) ForwardToken(nodeID string, tok types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwarded = append(s.forwarded, Forward{NodeID: nodeID, Token: tok})
}

func (s *fakeSink) Split(parentID string, children []Forward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.splits = append(s.splits, struct {
		parentID string
		children []Forward
	}{parentID, children})
}

func (s *fakeSink) NodeExecuted(nodeID string, tok types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, nodeID)
}

func (s *fakeSink) ActivityWaiting(nodeID string, tok types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = append(s.waiting, nodeID)
}

func (s *fakeSink) ActivityCompleted(nodeID string, tok types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activityCompleted = append(s.activityCompleted, nodeID)
}

func (s *fakeSink) WorkflowCompleted(nodeID string, tok types.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflowCompleted = append(s.workflowCompleted, nodeID)
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

func TestStartEventSingleSuccessorForwards(t *testing.T) {
	sink := &fakeSink{}
	s := NewStartEvent("start", []string{"a"}, sink)
	defer s.Close()

	s.Execute(context.Background(), types.NewToken(nil))

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.forwarded) == 1
	})
	if sink.forwarded[0].NodeID != "a" {
		t.Fatalf("expected forward to 'a', got %q", sink.forwarded[0].NodeID)
	}
}

func TestStartEventMultiSuccessorSplits(t *testing.T) {
	sink := &fakeSink{}
	s := NewStartEvent("start", []string{"a", "b"}, sink)
	defer s.Close()

	tok := types.NewToken(nil)
	s.Execute(context.Background(), tok)

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.splits) == 1
	})
	split := sink.splits[0]
	if split.parentID != tok.ID.String() {
		t.Fatalf("expected split parent id to be the original token id")
	}
	if len(split.children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(split.children))
	}
	if split.children[0].Token.ID == split.children[1].Token.ID {
		t.Fatal("expected distinct cloned token ids per branch")
	}
}

func TestEndEventCompletesWorkflow(t *testing.T) {
	sink := &fakeSink{}
	e := NewEndEvent("end", sink)
	defer e.Close()

	tok := types.NewToken(nil)
	e.Execute(context.Background(), tok)

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.workflowCompleted) == 1
	})
}

func TestGatewayInclusiveFallsBackToAllOnNoMatch(t *testing.T) {
	sink := &fakeSink{}
	g := NewGateway(GatewayConfig{
		ID:          "g",
		GatewayType: types.GatewayInclusive,
		NextNodes:   []string{"a", "b"},
		Conditions:  map[string]string{"a": "false", "b": "false"},
		Evaluator:   rules.NewExprEvaluator(),
	}, sink)
	defer g.Close()

	g.Execute(context.Background(), types.NewToken(nil))

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.splits) == 1
	})
	if len(sink.splits[0].children) != 2 {
		t.Fatalf("expected fallback to forward to all successors, got %d", len(sink.splits[0].children))
	}
}

func TestGatewayExclusiveWithConditionFn(t *testing.T) {
	sink := &fakeSink{}
	callables := registry.New()
	if err := callables.RegisterConditionFn("only-b", func(ctx context.Context, tok types.Token, candidate string) (bool, error) {
		return candidate == "b", nil
	}); err != nil {
		t.Fatal(err)
	}

	g := NewGateway(GatewayConfig{
		ID:              "g",
		GatewayType:     types.GatewayExclusive,
		NextNodes:       []string{"a", "b"},
		ConditionFnName: "only-b",
		Callables:       callables,
	}, sink)
	defer g.Close()

	g.Execute(context.Background(), types.NewToken(nil))

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.forwarded) == 1
	})
	if sink.forwarded[0].NodeID != "b" {
		t.Fatalf("expected the condition function to route to 'b', got %q", sink.forwarded[0].NodeID)
	}
}

func TestActivityServiceMergesWorkFnOutput(t *testing.T) {
	sink := &fakeSink{}
	callables := registry.New()
	if err := callables.RegisterWorkFn("add-field", func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"processed": true}, nil
	}); err != nil {
		t.Fatal(err)
	}

	a := NewActivity(ActivityConfig{
		ID:           "a",
		ActivityType: types.ActivityService,
		NextNodes:    []string{"end"},
		WorkFnName:   "add-field",
		Callables:    callables,
	}, sink)
	defer a.Close()

	a.Execute(context.Background(), types.NewToken(map[string]interface{}{"x": 1}))

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.forwarded) == 1
	})
	got := sink.forwarded[0].Token
	if got.Data["x"] != 1 || got.Data["processed"] != true {
		t.Fatalf("unexpected merged data: %#v", got.Data)
	}
}

func TestActivityUserTaskWaitsThenCompletes(t *testing.T) {
	sink := &fakeSink{}
	a := NewActivity(ActivityConfig{
		ID:           "u",
		ActivityType: types.ActivityUser,
		NextNodes:    []string{"end"},
	}, sink)
	defer a.Close()

	tok := types.NewToken(map[string]interface{}{"req": "R1"})
	a.Execute(context.Background(), tok)

	waitUntil(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.waiting) == 1
	})

	snap := a.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected one waiting token in snapshot, got %d", len(snap))
	}

	result, err := a.Complete(tok.ID, map[string]interface{}{"approved": true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Data["approved"] != true || result.Data["req"] != "R1" {
		t.Fatalf("unexpected merged data: %#v", result.Data)
	}

	if len(a.Snapshot()) != 0 {
		t.Fatal("expected the waiting table to be empty after Complete")
	}

	_, err = a.Complete(tok.ID, nil)
	if err != types.ErrTokenNotFound {
		t.Fatalf("expected a second Complete for the same token to fail with ErrTokenNotFound, got %v", err)
	}
}
