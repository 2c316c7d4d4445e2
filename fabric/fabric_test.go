package fabric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/workflow-engine/storage"
	"github.com/songzhibin97/workflow-engine/types"
)

func newTestFabric(t *testing.T) *Fabric {
	t.Helper()
	f, err := New(Config{Generate: generator.NewSnowflake(time.Now().Add(-1*time.Second), 1)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func sequentialDefinition() types.Definition {
	return types.Definition{
		Name:        "sequential",
		StartNodeID: "start",
		Nodes: []types.NodeSpec{
			{ID: "start", Kind: types.KindStart, NextNodes: []string{"end"}},
			{ID: "end", Kind: types.KindEnd},
		},
	}
}

func TestNewRequiresGenerator(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected New to reject a Config with no Generate")
	}
}

func TestRegisterDefinitionAssignsID(t *testing.T) {
	f := newTestFabric(t)
	def, err := f.RegisterDefinition(context.Background(), sequentialDefinition())
	if err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}
	if def.ID == 0 {
		t.Fatal("expected RegisterDefinition to assign a non-zero id")
	}
}

func TestRegisterDefinitionRejectsInvalid(t *testing.T) {
	f := newTestFabric(t)
	_, err := f.RegisterDefinition(context.Background(), types.Definition{})
	if err == nil {
		t.Fatal("expected RegisterDefinition to reject a definition with no start node")
	}
}

func TestSpawnStartsAnEngine(t *testing.T) {
	f := newTestFabric(t)
	def, err := f.RegisterDefinition(context.Background(), sequentialDefinition())
	if err != nil {
		t.Fatalf("RegisterDefinition: %v", err)
	}

	eng, tok, err := f.Spawn(context.Background(), def.ID, map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if tok.Data["x"] != 1 {
		t.Fatalf("unexpected initial token data: %#v", tok.Data)
	}

	got, ok := f.Engine(eng.WorkflowID())
	if !ok || got != eng {
		t.Fatal("expected Engine(workflowID) to return the spawned engine")
	}

	ids := f.List()
	if len(ids) != 1 || ids[0] != eng.WorkflowID() {
		t.Fatalf("expected List to contain exactly the spawned workflow id, got %v", ids)
	}

	f.Forget(eng.WorkflowID())
	if _, ok := f.Engine(eng.WorkflowID()); ok {
		t.Fatal("expected Forget to remove the engine")
	}
}

func TestSpawnUnknownDefinitionFails(t *testing.T) {
	f := newTestFabric(t)
	_, _, err := f.Spawn(context.Background(), 999999, nil)
	if !errors.Is(err, storage.ErrDefinitionNotFound) {
		t.Fatalf("expected ErrDefinitionNotFound, got %v", err)
	}
}

func TestSpawnUsesLoaderValidation(t *testing.T) {
	f := newTestFabric(t)
	// RegisterDefinition already validates, so manufacture a definition
	// bypassing it to confirm loader.Build's own validation still rejects
	// a bad graph if a store ever holds one.
	mem := storage.NewMemoryStore()
	f.defs = mem
	badDef := types.Definition{ID: 42, StartNodeID: "start"}
	if err := mem.SaveDefinition(context.Background(), badDef); err != nil {
		t.Fatalf("SaveDefinition: %v", err)
	}

	_, _, err := f.Spawn(context.Background(), 42, nil)
	if err == nil {
		t.Fatal("expected Spawn to fail when the stored definition fails validation")
	}
}
