// Package api exposes the external completion and query surface over a
// fabric.Fabric: resolving a (workflowId, nodeId, tokenId) triple to the
// right engine before delegating. It is the thin bridge an HTTP or RPC
// handler would sit behind.
package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/fabric"
	"github.com/songzhibin97/workflow-engine/types"
)

// ActivityAPI resolves workflow ids to a running engine and forwards
// calls to it.
type ActivityAPI struct {
	Fabric *fabric.Fabric
}

// CompleteActivity resumes a waiting user or manual activity. It fails
// with ErrTokenAtDifferentNode if tokenID is waiting somewhere other than
// nodeID, and with ErrTokenNotWaiting if tokenID is not currently waiting
// at all.
func (a *ActivityAPI) CompleteActivity(ctx context.Context, workflowID uint64, nodeID string, tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error) {
	eng, ok := a.Fabric.Engine(workflowID)
	if !ok {
		return types.Token{}, types.ErrWorkflowNotFound
	}
	return eng.CompleteActivity(ctx, nodeID, tokenID, userData)
}

// TriggerUserTask is the naming synonym used for manual tasks.
func (a *ActivityAPI) TriggerUserTask(ctx context.Context, workflowID uint64, nodeID string, tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error) {
	return a.CompleteActivity(ctx, workflowID, nodeID, tokenID, userData)
}

// GetStatus returns the compact status summary for workflowID.
func (a *ActivityAPI) GetStatus(workflowID uint64) (types.StatusSummary, error) {
	eng, ok := a.Fabric.Engine(workflowID)
	if !ok {
		return types.StatusSummary{}, types.ErrWorkflowNotFound
	}
	return eng.GetStatus(), nil
}

// GetState returns the full state snapshot for workflowID.
func (a *ActivityAPI) GetState(workflowID uint64) (types.EngineState, error) {
	eng, ok := a.Fabric.Engine(workflowID)
	if !ok {
		return types.EngineState{}, types.ErrWorkflowNotFound
	}
	return eng.GetState(), nil
}

// ListWaitingTokens returns every token currently paused at a user or
// manual activity in workflowID.
func (a *ActivityAPI) ListWaitingTokens(workflowID uint64) ([]types.WaitingToken, error) {
	eng, ok := a.Fabric.Engine(workflowID)
	if !ok {
		return nil, types.ErrWorkflowNotFound
	}
	return eng.ListWaiting(), nil
}
