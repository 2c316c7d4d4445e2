package registry

import (
	"context"
	"testing"

	"github.com/songzhibin97/workflow-engine/types"
)

func TestRegisterAndLookupWorkFn(t *testing.T) {
	r := New()
	fn := func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}
	if err := r.RegisterWorkFn("noop", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.WorkFn("noop")
	if !ok {
		t.Fatal("expected work fn to be found")
	}
	out, err := got(context.Background(), nil)
	if err != nil || out["ok"] != true {
		t.Fatalf("unexpected result: %v, %v", out, err)
	}

	if err := r.RegisterWorkFn("noop", fn); err != ErrAlreadyRegistered {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}

	if _, ok := r.WorkFn("missing"); ok {
		t.Fatal("expected missing lookup to fail")
	}
}

func TestRegisterAndLookupConditionFn(t *testing.T) {
	r := New()
	fn := func(ctx context.Context, tok types.Token, candidate string) (bool, error) {
		return candidate == "a", nil
	}
	if err := r.RegisterConditionFn("isA", fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := r.ConditionFn("isA")
	if !ok {
		t.Fatal("expected condition fn to be found")
	}
	ok2, err := got(context.Background(), types.Token{}, "a")
	if err != nil || !ok2 {
		t.Fatalf("unexpected result: %v, %v", ok2, err)
	}
}

func TestRegisterRejectsEmpty(t *testing.T) {
	r := New()
	if err := r.RegisterWorkFn("", nil); err == nil {
		t.Fatal("expected error for empty registration")
	}
	if err := r.RegisterConditionFn("x", nil); err == nil {
		t.Fatal("expected error for nil fn")
	}
}
