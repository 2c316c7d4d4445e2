// Package fabric is the top-level entry point for running many workflow
// instances side by side: it hands out workflow ids with a
// songzhibin97/gkit generator.Generator, builds one *engine.Engine per
// spawned instance through the loader package, and keeps them addressable
// by id. It is the single object an application holds onto, delegating
// the per-instance state machine to engine.Engine instead of owning a
// shared workflows/instances map itself.
package fabric

import (
	"context"
	"sync"

	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/workflow-engine/engine"
	"github.com/songzhibin97/workflow-engine/loader"
	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/storage"
	"github.com/songzhibin97/workflow-engine/tracker"
	"github.com/songzhibin97/workflow-engine/types"
)

// Fabric owns every live engine.Engine in a process.
type Fabric struct {
	generate  generator.Generator
	callables *registry.CallableRegistry
	evaluator rules.Evaluator
	scripts   rules.ScriptRunner
	sink      tracker.NodeExecutionSink
	defs      storage.DefinitionStore
	execs     storage.ExecutionStore

	mu      sync.RWMutex
	engines map[uint64]*engine.Engine
}

// Config bundles a Fabric's shared dependencies: one CallableRegistry and
// one rules engine serve every workflow it spawns.
type Config struct {
	Generate  generator.Generator
	Callables *registry.CallableRegistry
	Evaluator rules.Evaluator
	Scripts   rules.ScriptRunner
	Sink      tracker.NodeExecutionSink
	Defs      storage.DefinitionStore
	Execs     storage.ExecutionStore
}

// New constructs an empty Fabric. Generate is required; everything else
// falls back to an in-memory or no-op default.
func New(cfg Config) (*Fabric, error) {
	if cfg.Generate == nil {
		return nil, errUninitialized("generator is required")
	}
	if cfg.Callables == nil {
		cfg.Callables = registry.New()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = rules.NewExprEvaluator()
	}
	if cfg.Scripts == nil {
		if runner, ok := cfg.Evaluator.(rules.ScriptRunner); ok {
			cfg.Scripts = runner
		}
	}
	if cfg.Sink == nil {
		cfg.Sink = tracker.NoopSink{}
	}
	if cfg.Defs == nil || cfg.Execs == nil {
		mem := storage.NewMemoryStore()
		if cfg.Defs == nil {
			cfg.Defs = mem
		}
		if cfg.Execs == nil {
			cfg.Execs = mem
		}
	}

	return &Fabric{
		generate:  cfg.Generate,
		callables: cfg.Callables,
		evaluator: cfg.Evaluator,
		scripts:   cfg.Scripts,
		sink:      cfg.Sink,
		defs:      cfg.Defs,
		execs:     cfg.Execs,
		engines:   make(map[uint64]*engine.Engine),
	}, nil
}

type errUninitialized string

func (e errUninitialized) Error() string { return string(e) }

// RegisterDefinition persists def and assigns it a new id if it does not
// already have one.
func (f *Fabric) RegisterDefinition(ctx context.Context, def types.Definition) (types.Definition, error) {
	if def.ID == 0 {
		id, err := f.generate.NextID()
		if err != nil {
			return types.Definition{}, err
		}
		def.ID = id
	}
	if err := loader.Validate(def); err != nil {
		return types.Definition{}, err
	}
	if err := f.defs.SaveDefinition(ctx, def); err != nil {
		return types.Definition{}, err
	}
	return def, nil
}

// Spawn starts a new instance of the definition identified by
// definitionID, assigning it a fresh workflow id and wiring up a fresh
// engine.Engine for it.
func (f *Fabric) Spawn(ctx context.Context, definitionID uint64, initialData map[string]interface{}) (*engine.Engine, types.Token, error) {
	def, err := f.defs.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, types.Token{}, err
	}

	workflowID, err := f.generate.NextID()
	if err != nil {
		return nil, types.Token{}, err
	}

	eng, err := loader.Build(loader.Config{
		WorkflowID:  workflowID,
		ExecutionID: workflowID,
		Definition:  def,
		Callables:   f.callables,
		Evaluator:   f.evaluator,
		Scripts:     f.scripts,
		Sink:        f.sink,
	})
	if err != nil {
		return nil, types.Token{}, err
	}

	f.mu.Lock()
	f.engines[workflowID] = eng
	f.mu.Unlock()

	if err := f.execs.SaveExecution(ctx, storage.Execution{
		ID:           workflowID,
		DefinitionID: definitionID,
		Status:       types.StatusInitialized,
	}); err != nil {
		return nil, types.Token{}, err
	}

	tok, err := eng.StartWorkflow(ctx, initialData)
	if err != nil {
		return nil, types.Token{}, err
	}

	status := eng.GetStatus()
	_ = f.execs.SaveExecution(ctx, storage.Execution{
		ID:           workflowID,
		DefinitionID: definitionID,
		Status:       status.Status,
	})

	return eng, tok, nil
}

// Engine returns the running engine for workflowID, if any.
func (f *Fabric) Engine(workflowID uint64) (*engine.Engine, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.engines[workflowID]
	return e, ok
}

// Forget removes workflowID's engine from the fabric, e.g. once its
// status is completed and its state has been persisted elsewhere.
func (f *Fabric) Forget(workflowID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.engines, workflowID)
}

// List returns the workflow ids of every engine currently live.
func (f *Fabric) List() []uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]uint64, 0, len(f.engines))
	for id := range f.engines {
		out = append(out, id)
	}
	return out
}
