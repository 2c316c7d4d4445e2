// Package loader turns a loosely-typed definition document into a running
// engine.Engine: decode into types.Definition with mapstructure, validate
// the graph shape with dominikbraun/graph, then construct and register one
// node.Worker per node. This mirrors how the common-fate-glide-framework
// dialect packages decode their own step input with mapstructure and
// validate their policy graphs with the same graph library, adapted here
// from workflow-definition-time validation down to process graphs instead
// of policy graphs.
package loader

import (
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/songzhibin97/workflow-engine/engine"
	"github.com/songzhibin97/workflow-engine/node"
	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/tracker"
	"github.com/songzhibin97/workflow-engine/types"
)

// Document is the loosely-typed shape a definition arrives in — decoded
// from JSON or YAML into generic maps — before Decode gives it the
// types.Definition shape the rest of the package requires.
type Document map[string]interface{}

// rawNode and rawDefinition mirror the wire shape of a definition document
// (snake_case keys, a single "type" field collapsing node kind and, for
// "user_task", activity type together). mapstructure decodes into these
// before Decode maps them onto types.Definition/types.NodeSpec.
type rawNode struct {
	ID              string                 `mapstructure:"id"`
	Type            string                 `mapstructure:"type"`
	Name            string                 `mapstructure:"name"`
	NextNodes       []string               `mapstructure:"next_nodes"`
	ActivityType    string                 `mapstructure:"activity_type"`
	WorkFnName      string                 `mapstructure:"work_fn"`
	Script          string                 `mapstructure:"script"`
	FormFields      []types.FormField      `mapstructure:"form_fields"`
	GatewayType     string                 `mapstructure:"gateway_type"`
	ConditionFnName string                 `mapstructure:"condition_fn"`
	Conditions      map[string]string      `mapstructure:"conditions"`
	Metadata        map[string]interface{} `mapstructure:"metadata"`
}

type rawDefinition struct {
	ID          uint64    `mapstructure:"id"`
	Name        string    `mapstructure:"name"`
	StartNodeID string    `mapstructure:"start_node_id"`
	Nodes       []rawNode `mapstructure:"nodes"`
}

// Decode converts a generic document into a types.Definition, resolving
// the "user_task" alias into kind=activity, activityType=user.
func Decode(doc Document) (types.Definition, error) {
	var raw rawDefinition
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return types.Definition{}, errors.Wrap(err, "constructing definition decoder")
	}
	if err := decoder.Decode(doc); err != nil {
		return types.Definition{}, errors.Wrap(err, "decoding definition document")
	}

	def := types.Definition{
		ID:          raw.ID,
		Name:        raw.Name,
		StartNodeID: raw.StartNodeID,
		Nodes:       make([]types.NodeSpec, 0, len(raw.Nodes)),
	}
	for _, n := range raw.Nodes {
		spec, err := decodeNode(n)
		if err != nil {
			return types.Definition{}, errors.Wrapf(err, "decoding node %q", n.ID)
		}
		def.Nodes = append(def.Nodes, spec)
	}
	return def, nil
}

func decodeNode(n rawNode) (types.NodeSpec, error) {
	spec := types.NodeSpec{
		ID:              n.ID,
		Name:            n.Name,
		NextNodes:       n.NextNodes,
		WorkFnName:      n.WorkFnName,
		Script:          n.Script,
		FormFields:      n.FormFields,
		GatewayType:     types.GatewayType(n.GatewayType),
		ConditionFnName: n.ConditionFnName,
		Conditions:      n.Conditions,
		Metadata:        n.Metadata,
		ActivityType:    types.ActivityType(n.ActivityType),
	}

	switch strings.ToLower(n.Type) {
	case "user_task":
		spec.Kind = types.KindActivity
		spec.ActivityType = types.ActivityUser
	case "start", "end", "activity", "gateway":
		spec.Kind = types.NodeKind(n.Type)
	default:
		return types.NodeSpec{}, errors.Errorf("unrecognized node type %q", n.Type)
	}
	return spec, nil
}

// Validate builds a directed graph of def's nodes and checks the
// structural invariants: a declared start node, no successor
// reference to an undeclared node, and every node reachable by walking
// forward from the start. Loops are allowed — a gateway may legitimately
// route back upstream — so, unlike the policy graphs dominikbraun/graph is
// usually asked to validate here, Validate does not pass
// graph.PreventCycles.
func Validate(def types.Definition) error {
	if def.StartNodeID == "" {
		return types.ErrNoStartNode
	}
	if _, ok := def.NodeByID(def.StartNodeID); !ok {
		return errors.Wrapf(types.ErrNoStartNode, "start node %q not declared among definition nodes", def.StartNodeID)
	}

	g := graph.New(func(n types.NodeSpec) string { return n.ID }, graph.Directed())

	seen := make(map[string]bool, len(def.Nodes))
	for _, n := range def.Nodes {
		if seen[n.ID] {
			return errors.Errorf("duplicate node id %q in definition", n.ID)
		}
		seen[n.ID] = true
		if err := g.AddVertex(n); err != nil {
			return errors.Wrapf(err, "adding node %q to validation graph", n.ID)
		}
	}

	for _, n := range def.Nodes {
		for _, next := range n.NextNodes {
			if !seen[next] {
				return errors.Errorf("node %q references undeclared successor %q", n.ID, next)
			}
			if err := g.AddEdge(n.ID, next); err != nil {
				return errors.Wrapf(err, "adding edge %s -> %s", n.ID, next)
			}
		}
	}

	reached := make(map[string]bool, len(def.Nodes))
	if err := graph.BFS(g, def.StartNodeID, func(id string) bool {
		reached[id] = true
		return false
	}); err != nil {
		return errors.Wrap(err, "walking definition graph from start node")
	}

	for _, n := range def.Nodes {
		if !reached[n.ID] {
			return errors.Errorf("node %q is not reachable from start node %q", n.ID, def.StartNodeID)
		}
	}
	return nil
}

// Config bundles everything Build needs to turn a validated Definition
// into a wired engine.Engine.
type Config struct {
	WorkflowID  uint64
	ExecutionID uint64
	Definition  types.Definition
	Callables   *registry.CallableRegistry
	Evaluator   rules.Evaluator
	Scripts     rules.ScriptRunner
	Sink        tracker.NodeExecutionSink
}

// Build validates cfg.Definition and constructs an *engine.Engine with one
// worker per node, ready for StartWorkflow.
func Build(cfg Config) (*engine.Engine, error) {
	if err := Validate(cfg.Definition); err != nil {
		return nil, errors.Wrap(err, "invalid definition")
	}

	eng := engine.New(engine.Config{
		WorkflowID:  cfg.WorkflowID,
		ExecutionID: cfg.ExecutionID,
		Definition:  cfg.Definition,
		Sink:        cfg.Sink,
	})

	for _, spec := range cfg.Definition.Nodes {
		worker, err := buildWorker(spec, cfg, eng)
		if err != nil {
			return nil, errors.Wrapf(err, "building worker for node %q", spec.ID)
		}
		eng.AddNode(worker)
	}

	return eng, nil
}

func buildWorker(spec types.NodeSpec, cfg Config, sink node.EngineSink) (node.Worker, error) {
	switch spec.Kind {
	case types.KindStart:
		return node.NewStartEvent(spec.ID, spec.NextNodes, sink), nil
	case types.KindEnd:
		return node.NewEndEvent(spec.ID, sink), nil
	case types.KindGateway:
		return node.NewGateway(node.GatewayConfig{
			ID:              spec.ID,
			GatewayType:     spec.GatewayType,
			NextNodes:       spec.NextNodes,
			Conditions:      spec.Conditions,
			ConditionFnName: spec.ConditionFnName,
			Callables:       cfg.Callables,
			Evaluator:       cfg.Evaluator,
		}, sink), nil
	case types.KindActivity:
		return node.NewActivity(node.ActivityConfig{
			ID:           spec.ID,
			ActivityType: spec.ActivityType,
			NextNodes:    spec.NextNodes,
			WorkFnName:   spec.WorkFnName,
			Script:       spec.Script,
			FormFields:   spec.FormFields,
			Callables:    cfg.Callables,
			Scripts:      cfg.Scripts,
		}, sink), nil
	default:
		return nil, errors.Wrapf(types.ErrUnknownNodeType, "node %q has kind %q", spec.ID, spec.Kind)
	}
}
