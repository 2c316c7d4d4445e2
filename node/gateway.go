package node

import (
	"context"

	"github.com/common-fate/clio"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/types"
)

// Gateway routes an arriving token without ever pausing.
type Gateway struct {
	id              string
	gatewayType     types.GatewayType
	nextNodes       []string
	conditions      map[string]string // nextNodeID -> expr-lang boolean expression
	conditionFnName string
	callables       *registry.CallableRegistry
	evaluator       rules.Evaluator
	sink            EngineSink
	mb              *mailbox.Mailbox[types.Token]
}

// GatewayConfig bundles a Gateway's static wiring.
type GatewayConfig struct {
	ID              string
	GatewayType     types.GatewayType
	NextNodes       []string
	Conditions      map[string]string
	ConditionFnName string
	Callables       *registry.CallableRegistry
	Evaluator       rules.Evaluator
}

// NewGateway constructs and starts a Gateway worker's goroutine.
func NewGateway(cfg GatewayConfig, sink EngineSink) *Gateway {
	g := &Gateway{
		id:              cfg.ID,
		gatewayType:     cfg.GatewayType,
		nextNodes:       cfg.NextNodes,
		conditions:      cfg.Conditions,
		conditionFnName: cfg.ConditionFnName,
		callables:       cfg.Callables,
		evaluator:       cfg.Evaluator,
		sink:            sink,
		mb:              mailbox.New[types.Token](),
	}
	go g.mb.Run(g.handle)
	return g
}

func (g *Gateway) ID() string           { return g.id }
func (g *Gateway) Kind() types.NodeKind { return types.KindGateway }
func (g *Gateway) Close()               { g.mb.Close() }

func (g *Gateway) Execute(ctx context.Context, tok types.Token) {
	g.mb.Send(tok)
}

func (g *Gateway) handle(tok types.Token) {
	moved := tok.MoveTo(g.id)
	g.sink.NodeExecuted(g.id, moved)

	switch g.gatewayType {
	case types.GatewayParallel:
		g.route(moved, g.nextNodes)
	case types.GatewayInclusive:
		matched := g.matches(moved)
		if len(matched) == 0 {
			// Compatibility fallback: no condition matched, forward to all.
			matched = g.nextNodes
		}
		g.route(moved, matched)
	default: // exclusive
		chosen, ok := g.chooseExclusive(moved)
		if !ok {
			return
		}
		g.route(moved, []string{chosen})
	}
}

// route delivers moved to each of targets, cloning when there is more than
// one destination so each branch gets a distinct token identity (see
// DESIGN.md, "Token conservation through gateway fan-out").
func (g *Gateway) route(moved types.Token, targets []string) {
	switch len(targets) {
	case 0:
		return
	case 1:
		g.sink.ForwardToken(targets[0], moved)
	default:
		children := make([]Forward, len(targets))
		for i, n := range targets {
			children[i] = Forward{NodeID: n, Token: moved.Clone()}
		}
		g.sink.Split(moved.ID.String(), children)
	}
}

// matches evaluates conditions (or conditionFnName) against every
// successor, in declaration order, returning those that match. Used by
// inclusive gateways.
func (g *Gateway) matches(tok types.Token) []string {
	var matched []string
	for _, candidate := range g.nextNodes {
		ok, err := g.eval(tok, candidate)
		if err != nil {
			clio.Errorf("node %s: condition for candidate %s failed: %v", g.id, candidate, err)
			continue
		}
		if ok {
			matched = append(matched, candidate)
		}
	}
	return matched
}

// chooseExclusive returns the first successor, in declaration order,
// whose condition is true. If none match, the fallback is the first
// successor in declaration order (with a warning log) to preserve
// compatibility with existing definitions; if no conditionFn or
// per-successor conditions are configured at all, any non-empty node id
// matches and the first successor is chosen immediately.
func (g *Gateway) chooseExclusive(tok types.Token) (string, bool) {
	if len(g.nextNodes) == 0 {
		return "", false
	}
	if g.conditionFnName == "" && len(g.conditions) == 0 {
		return g.nextNodes[0], true
	}

	for _, candidate := range g.nextNodes {
		ok, err := g.eval(tok, candidate)
		if err != nil {
			clio.Errorf("node %s: condition for candidate %s failed: %v", g.id, candidate, err)
			continue
		}
		if ok {
			return candidate, true
		}
	}

	clio.Warnf("node %s: no exclusive condition matched, falling back to first successor %s", g.id, g.nextNodes[0])
	return g.nextNodes[0], true
}

// eval resolves whether candidate is a valid route for tok, trying a
// registered conditionFn first and falling back to a per-candidate
// expr-lang condition string.
func (g *Gateway) eval(tok types.Token, candidate string) (bool, error) {
	if g.conditionFnName != "" && g.callables != nil {
		fn, ok := g.callables.ConditionFn(g.conditionFnName)
		if ok {
			return fn(context.Background(), tok, candidate)
		}
	}

	expression, ok := g.conditions[candidate]
	if !ok || expression == "" {
		// No condition configured for this specific candidate: treat as
		// an unconditional match. Absent a conditionFn, any non-empty
		// node id matches.
		return candidate != "", nil
	}
	if g.evaluator == nil {
		return false, nil
	}
	return g.evaluator.Evaluate(expression, tok.Data)
}
