package node

import (
	"context"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/types"
)

// StartEvent is the single entry point of a definition. A start node with
// more than one successor is an implicit parallel split.
type StartEvent struct {
	id        string
	nextNodes []string
	sink      EngineSink
	mb        *mailbox.Mailbox[types.Token]
}

// NewStartEvent constructs and starts a StartEvent worker's goroutine.
func NewStartEvent(id string, nextNodes []string, sink EngineSink) *StartEvent {
	s := &StartEvent{
		id:        id,
		nextNodes: nextNodes,
		sink:      sink,
		mb:        mailbox.New[types.Token](),
	}
	go s.mb.Run(s.handle)
	return s
}

func (s *StartEvent) ID() string             { return s.id }
func (s *StartEvent) Kind() types.NodeKind   { return types.KindStart }
func (s *StartEvent) Close()                 { s.mb.Close() }

func (s *StartEvent) Execute(ctx context.Context, tok types.Token) {
	s.mb.Send(tok)
}

func (s *StartEvent) handle(tok types.Token) {
	moved := tok.MoveTo(s.id)
	s.sink.NodeExecuted(s.id, moved)

	switch len(s.nextNodes) {
	case 0:
		return
	case 1:
		s.sink.ForwardToken(s.nextNodes[0], moved)
	default:
		children := make([]Forward, len(s.nextNodes))
		for i, n := range s.nextNodes {
			children[i] = Forward{NodeID: n, Token: moved.Clone()}
		}
		s.sink.Split(moved.ID.String(), children)
	}
}
