// Package engine implements the execution core: it owns the per-instance
// state machine (active/waiting/completed tokens, status, history) and is
// the sole writer of that state, serialized through a single internal
// mailbox exactly like each node worker serializes its own. It implements
// node.EngineSink so workers can report back to it without ever touching
// engine internals directly.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/common-fate/clio"
	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/node"
	"github.com/songzhibin97/workflow-engine/tracker"
	"github.com/songzhibin97/workflow-engine/types"
)

// DefaultHistoryCapacity bounds the execution history ring buffer, per
// DESIGN.md's resolution of the history-retention open question.
const DefaultHistoryCapacity = 1000

// Engine coordinates one running instance of a Definition.
type Engine struct {
	workflowID  uint64
	executionID uint64
	definition  types.Definition

	workers map[string]node.Worker

	sink            tracker.NodeExecutionSink
	historyCapacity int

	mb *mailbox.Mailbox[func()]

	mu              sync.Mutex
	status          types.Status
	active          map[uuid.UUID]types.Token
	waiting         map[uuid.UUID]types.WaitingToken
	completed       []types.Token
	history []types.HistoryEntry
	handles map[string]tracker.Handle // key: nodeID + "/" + tokenID
}

// Config bundles an Engine's static wiring, supplied by the loader once a
// Definition has been validated and its workers constructed.
type Config struct {
	WorkflowID  uint64
	ExecutionID uint64
	Definition  types.Definition
	Sink        tracker.NodeExecutionSink
}

// New constructs an Engine with no workers yet attached. Callers add every
// node with AddNode before calling StartWorkflow.
func New(cfg Config) *Engine {
	sink := cfg.Sink
	if sink == nil {
		sink = tracker.NoopSink{}
	}
	e := &Engine{
		workflowID:      cfg.WorkflowID,
		executionID:     cfg.ExecutionID,
		definition:      cfg.Definition,
		workers:         make(map[string]node.Worker),
		sink:            sink,
		historyCapacity: DefaultHistoryCapacity,
		mb:              mailbox.New[func()](),
		status:          types.StatusInitialized,
		active:          make(map[uuid.UUID]types.Token),
		waiting:         make(map[uuid.UUID]types.WaitingToken),
		handles:         make(map[string]tracker.Handle),
	}
	go e.mb.Run(func(fn func()) { fn() })
	return e
}

// AddNode registers a constructed worker under its own id. A worker whose
// id the engine's Definition does not list yet is added to it, and the
// first start-kind worker added that way becomes the start node if none
// is set, so an engine assembled node by node can be started too.
func (e *Engine) AddNode(w node.Worker) {
	e.mu.Lock()
	e.workers[w.ID()] = w
	if _, ok := e.definition.NodeByID(w.ID()); !ok {
		e.definition.Nodes = append(e.definition.Nodes, types.NodeSpec{ID: w.ID(), Kind: w.Kind()})
		if w.Kind() == types.KindStart && e.definition.StartNodeID == "" {
			e.definition.StartNodeID = w.ID()
		}
	}
	e.mu.Unlock()
}

// WorkflowID returns the identifier this engine was constructed with.
func (e *Engine) WorkflowID() uint64 { return e.workflowID }

// StartWorkflow creates the instance's first token and dispatches it to
// the definition's start node.
func (e *Engine) StartWorkflow(ctx context.Context, initialData map[string]interface{}) (types.Token, error) {
	start, ok := e.definition.StartNode()
	if !ok {
		return types.Token{}, types.ErrNoStartNode
	}
	worker, ok := e.lookup(start.ID)
	if !ok {
		return types.Token{}, types.ErrNodeNotFound
	}

	tok := types.NewToken(initialData)

	e.mu.Lock()
	e.active[tok.ID] = tok
	e.status = types.StatusRunning
	e.mu.Unlock()

	e.startTracking(start.ID, tok, worker.Kind())
	worker.Execute(ctx, tok)
	return tok, nil
}

func (e *Engine) lookup(nodeID string) (node.Worker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.workers[nodeID]
	return w, ok
}

// ---- node.EngineSink --------------------------------------------------

// ForwardToken implements node.EngineSink. Unknown destinations are logged
// and dropped rather than treated as a failure.
func (e *Engine) ForwardToken(nodeID string, tok types.Token) {
	e.mb.Send(func() { e.handleForward(nodeID, tok) })
}

// Split implements node.EngineSink, atomically retiring parentID's token
// from the active set and admitting every child, preserving token
// conservation across a fan-out (DESIGN.md).
func (e *Engine) Split(parentID string, children []node.Forward) {
	e.mb.Send(func() { e.handleSplit(parentID, children) })
}

// NodeExecuted implements node.EngineSink.
func (e *Engine) NodeExecuted(nodeID string, tok types.Token) {
	e.mb.Send(func() { e.handleNodeExecuted(nodeID, tok) })
}

// ActivityWaiting implements node.EngineSink.
func (e *Engine) ActivityWaiting(nodeID string, tok types.Token) {
	e.mb.Send(func() { e.handleActivityWaiting(nodeID, tok) })
}

// ActivityCompleted implements node.EngineSink.
func (e *Engine) ActivityCompleted(nodeID string, tok types.Token) {
	e.mb.Send(func() { e.handleActivityCompleted(nodeID, tok) })
}

// WorkflowCompleted implements node.EngineSink.
func (e *Engine) WorkflowCompleted(nodeID string, tok types.Token) {
	e.mb.Send(func() { e.handleWorkflowCompleted(nodeID, tok) })
}

// ---- internal handlers, all run on the single engine goroutine --------

func (e *Engine) handleForward(nodeID string, tok types.Token) {
	worker, ok := e.lookup(nodeID)
	if !ok {
		clio.Warnf("engine: workflow %d: forwarding to unknown node %q, dropping token %s", e.workflowID, nodeID, tok.ID)
		return
	}
	e.startTracking(nodeID, tok, worker.Kind())
	worker.Execute(context.Background(), tok)
}

func (e *Engine) handleSplit(parentID string, children []node.Forward) {
	parentUUID, err := uuid.Parse(parentID)
	if err != nil {
		clio.Errorf("engine: workflow %d: split from malformed parent id %q: %v", e.workflowID, parentID, err)
		return
	}

	e.mu.Lock()
	delete(e.active, parentUUID)
	for _, c := range children {
		e.active[c.Token.ID] = c.Token
	}
	e.mu.Unlock()

	for _, c := range children {
		worker, ok := e.lookup(c.NodeID)
		if !ok {
			clio.Warnf("engine: workflow %d: split target %q unknown, dropping token %s", e.workflowID, c.NodeID, c.Token.ID)
			e.mu.Lock()
			delete(e.active, c.Token.ID)
			e.mu.Unlock()
			continue
		}
		e.startTracking(c.NodeID, c.Token, worker.Kind())
		worker.Execute(context.Background(), c.Token)
	}
}

func (e *Engine) handleNodeExecuted(nodeID string, tok types.Token) {
	e.mu.Lock()
	e.active[tok.ID] = tok
	e.appendHistory(nodeID, tok)
	e.mu.Unlock()

	if errMsg, failed := workerFailure(tok); failed {
		e.finishTracking(nodeID, tok, func(h tracker.Handle) { e.sink.Fail(context.Background(), h, errMsg) })
		return
	}
	e.finishTracking(nodeID, tok, func(h tracker.Handle) { e.sink.Complete(context.Background(), h, tok.Data) })
}

// workerFailure reports whether a node's own work function or script
// recorded a failure in the token. Errors surface as data, not as
// control flow.
func workerFailure(tok types.Token) (string, bool) {
	raw, ok := tok.Data["error"]
	if !ok {
		return "", false
	}
	msg, ok := raw.(string)
	if !ok {
		return fmt.Sprintf("%v", raw), true
	}
	return msg, true
}

func (e *Engine) handleActivityWaiting(nodeID string, tok types.Token) {
	e.mu.Lock()
	delete(e.active, tok.ID)
	e.waiting[tok.ID] = types.WaitingToken{NodeID: nodeID, Token: tok}
	e.recomputeStatus()
	e.mu.Unlock()

	e.sink.MarkWaiting(context.Background(), e.peekHandle(nodeID, tok.ID))
}

func (e *Engine) handleActivityCompleted(nodeID string, tok types.Token) {
	e.mu.Lock()
	e.active[tok.ID] = tok
	e.appendHistory(nodeID, tok)
	e.recomputeStatus()
	e.mu.Unlock()

	e.finishTracking(nodeID, tok, func(h tracker.Handle) { e.sink.Complete(context.Background(), h, tok.Data) })
}

func (e *Engine) handleWorkflowCompleted(nodeID string, tok types.Token) {
	e.mu.Lock()
	delete(e.active, tok.ID)
	e.completed = append(e.completed, tok)
	e.recomputeStatus()
	e.mu.Unlock()
}

// recomputeStatus applies one deterministic rule: waiting if any token
// is paused, completed if there are no active or
// waiting tokens left and at least one token has completed, running
// if any token is active. With no active, waiting or completed token the
// status is left unchanged. Callers must hold e.mu.
func (e *Engine) recomputeStatus() {
	switch {
	case len(e.waiting) > 0:
		e.status = types.StatusWaiting
	case len(e.active) == 0 && len(e.completed) > 0:
		e.status = types.StatusCompleted
	case len(e.active) > 0:
		e.status = types.StatusRunning
	}
}

func (e *Engine) appendHistory(nodeID string, tok types.Token) {
	entry := types.HistoryEntry{Timestamp: tok.Timestamp, NodeID: nodeID, TokenID: tok.ID.String()}
	e.history = append(e.history, entry)
	if len(e.history) > e.historyCapacity {
		e.history = e.history[len(e.history)-e.historyCapacity:]
	}
}

func handleKey(nodeID string, tokenID uuid.UUID) string {
	return nodeID + "/" + tokenID.String()
}

func (e *Engine) startTracking(nodeID string, tok types.Token, kind types.NodeKind) {
	h, err := e.sink.Start(context.Background(), tracker.StartInput{
		WorkflowID:  e.workflowID,
		ExecutionID: e.executionID,
		TokenID:     tok.ID,
		NodeID:      nodeID,
		NodeType:    kind,
		InputData:   tok.Data,
	})
	if err != nil {
		clio.Errorf("engine: workflow %d: tracker start failed for node %s: %v", e.workflowID, nodeID, err)
		return
	}
	e.mu.Lock()
	e.handles[handleKey(nodeID, tok.ID)] = h
	e.mu.Unlock()
}

// peekHandle returns the open tracker handle for (nodeID, tokenID) without
// consuming it; used by MarkWaiting, which reports an in-progress state
// rather than a terminal one.
func (e *Engine) peekHandle(nodeID string, tokenID uuid.UUID) tracker.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles[handleKey(nodeID, tokenID)]
}

// takeHandle returns and removes the open tracker handle for (nodeID,
// tokenID); used by Complete/Fail, which close out the record.
func (e *Engine) takeHandle(nodeID string, tokenID uuid.UUID) tracker.Handle {
	key := handleKey(nodeID, tokenID)
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.handles[key]
	delete(e.handles, key)
	return h
}

func (e *Engine) finishTracking(nodeID string, tok types.Token, fn func(tracker.Handle)) {
	fn(e.takeHandle(nodeID, tok.ID))
}

// ---- query surface ------------------------------------------------------

// GetState returns a deep snapshot of the instance's current state.
func (e *Engine) GetState() types.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := make([]types.Token, 0, len(e.active))
	for _, t := range e.active {
		active = append(active, t)
	}
	waiting := make(map[string]types.WaitingToken, len(e.waiting))
	for id, w := range e.waiting {
		waiting[id.String()] = w
	}
	completed := make([]types.Token, len(e.completed))
	copy(completed, e.completed)
	history := make([]types.HistoryEntry, len(e.history))
	for i, h := range e.history {
		history[len(e.history)-1-i] = h
	}

	return types.EngineState{
		WorkflowID:       e.workflowID,
		Status:           e.status,
		ActiveTokens:     active,
		WaitingTokens:    waiting,
		CompletedTokens:  completed,
		ExecutionHistory: history,
	}
}

// GetStatus returns the compact summary form of GetState.
func (e *Engine) GetStatus() types.StatusSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.StatusSummary{
		WorkflowID:     e.workflowID,
		Status:         e.status,
		ActiveCount:    len(e.active),
		CompletedCount: len(e.completed),
		NodeCount:      len(e.definition.Nodes),
	}
}

// ListWaiting returns every currently waiting token.
func (e *Engine) ListWaiting() []types.WaitingToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.WaitingToken, 0, len(e.waiting))
	for _, w := range e.waiting {
		out = append(out, w)
	}
	return out
}

// CompleteActivity resumes a waiting token at nodeID with userData. It
// validates the token is actually waiting, and at the node the caller
// claims, before delegating to the worker itself.
func (e *Engine) CompleteActivity(ctx context.Context, nodeID string, tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error) {
	e.mu.Lock()
	w, ok := e.waiting[tokenID]
	if !ok {
		e.mu.Unlock()
		return types.Token{}, types.ErrTokenNotWaiting
	}
	if w.NodeID != nodeID {
		e.mu.Unlock()
		return types.Token{}, types.ErrTokenAtDifferentNode
	}
	delete(e.waiting, tokenID)
	e.recomputeStatus()
	e.mu.Unlock()

	worker, ok := e.lookup(nodeID)
	if !ok {
		return types.Token{}, types.ErrNodeNotFound
	}
	resumable, ok := worker.(node.Resumable)
	if !ok {
		return types.Token{}, types.ErrTokenNotWaiting
	}
	return resumable.Complete(tokenID, userData)
}

// TriggerUserTask is a naming synonym for CompleteActivity, kept because
// callers refer to the same operation under both names depending on
// whether the paused activity is a user task or a manual task.
func (e *Engine) TriggerUserTask(ctx context.Context, nodeID string, tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error) {
	return e.CompleteActivity(ctx, nodeID, tokenID, userData)
}
