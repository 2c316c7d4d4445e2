// Package node implements the per-kind node workers: StartEvent, EndEvent,
// Activity (service/script/user/manual) and Gateway
// (exclusive/parallel/inclusive). Each worker owns a mailbox.Mailbox and a
// single goroutine draining it, so a worker handles at most one Execute at
// a time and never touches another worker's state.
package node

import (
	"context"

	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/types"
)

// Worker is the common contract every node kind satisfies.
type Worker interface {
	ID() string
	Kind() types.NodeKind
	// Execute enqueues tok for processing. Non-blocking.
	Execute(ctx context.Context, tok types.Token)
	// Close stops the worker's mailbox loop.
	Close()
}

// Forward pairs a destination node id with the token to deliver there.
// Used both for a plain single-successor route and as the per-child
// payload of a Split.
type Forward struct {
	NodeID string
	Token  types.Token
}

// EngineSink is the subset of the engine a worker is allowed to talk to:
// a fixed set of typed outbound messages. Workers hold only this
// interface, never a concrete *engine.Engine, so the node package does not
// import the engine package.
type EngineSink interface {
	// ForwardToken dispatches tok to the node nodeID, keeping the same
	// token identity (single-successor routing).
	ForwardToken(nodeID string, tok types.Token)
	// Split atomically retires parentID from the active set and forwards
	// each entry in children (each carrying a freshly cloned token id),
	// preserving token conservation across a fan-out. Used whenever a
	// worker routes one arriving token to more than one successor.
	Split(parentID string, children []Forward)
	// NodeExecuted reports that nodeID finished processing tok and
	// produced tok as its (possibly mutated) output.
	NodeExecuted(nodeID string, tok types.Token)
	// ActivityWaiting reports that tok has paused at nodeID awaiting an
	// external completion.
	ActivityWaiting(nodeID string, tok types.Token)
	// ActivityCompleted reports that a previously waiting tok at nodeID
	// has resumed.
	ActivityCompleted(nodeID string, tok types.Token)
	// WorkflowCompleted reports that tok reached an end event.
	WorkflowCompleted(nodeID string, tok types.Token)
}

// Resumable is implemented by workers that can pause and later resume from
// an external caller rather than their own mailbox, namely user and manual
// Activity instances.
type Resumable interface {
	Complete(tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error)
	Snapshot() []WaitingTokenInfo
}
