package node

import (
	"context"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/types"
)

// EndEvent terminates a token's path. An engine accepts multiple end
// nodes; each one is an independent EndEvent worker.
type EndEvent struct {
	id   string
	sink EngineSink
	mb   *mailbox.Mailbox[types.Token]
}

// NewEndEvent constructs and starts an EndEvent worker's goroutine.
func NewEndEvent(id string, sink EngineSink) *EndEvent {
	e := &EndEvent{id: id, sink: sink, mb: mailbox.New[types.Token]()}
	go e.mb.Run(e.handle)
	return e
}

func (e *EndEvent) ID() string           { return e.id }
func (e *EndEvent) Kind() types.NodeKind { return types.KindEnd }
func (e *EndEvent) Close()               { e.mb.Close() }

func (e *EndEvent) Execute(ctx context.Context, tok types.Token) {
	e.mb.Send(tok)
}

func (e *EndEvent) handle(tok types.Token) {
	moved := tok.MoveTo(e.id)
	e.sink.NodeExecuted(e.id, moved)
	e.sink.WorkflowCompleted(e.id, moved)
}
