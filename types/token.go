package types

import (
	"time"

	"github.com/google/uuid"
)

// Token is the unit of flow carried through a workflow instance. It is
// value-typed: every mutation produces a new Token rather than editing one
// in place, so a worker can hand a token to the engine and keep acting on
// its own copy without racing anyone else.
type Token struct {
	ID          uuid.UUID
	ParentID    uuid.UUID // zero value (uuid.Nil) if this token was never split off another
	Data        map[string]interface{}
	CurrentNode string
	Timestamp   time.Time
}

// NewToken creates a fresh token with a new id and the given initial data.
// CurrentNode is empty until the first MoveTo.
func NewToken(data map[string]interface{}) Token {
	return Token{
		ID:        uuid.New(),
		Data:      cloneData(data),
		Timestamp: time.Now().UTC(),
	}
}

// MoveTo returns a copy of the token positioned at nodeID with an updated
// timestamp. It does not touch Data.
func (t Token) MoveTo(nodeID string) Token {
	next := t
	next.CurrentNode = nodeID
	next.Timestamp = time.Now().UTC()
	return next
}

// Merge right-biased-merges update into the token's data and returns the
// resulting token. Nested maps in update replace the corresponding nested
// map in the token rather than being deep-merged.
func (t Token) Merge(update map[string]interface{}) Token {
	next := t
	next.Data = cloneData(t.Data)
	for k, v := range update {
		next.Data[k] = v
	}
	next.Timestamp = time.Now().UTC()
	return next
}

// Clone produces a new token that carries a copy of the data but a fresh
// id, with ParentID set to the cloning token's id. Used by gateways and
// start events to fan a single arriving token out across multiple
// successors while keeping per-token identity unique (see DESIGN.md,
// "Token id after parallel split").
func (t Token) Clone() Token {
	next := t
	next.ID = uuid.New()
	next.ParentID = t.ID
	next.Data = cloneData(t.Data)
	next.Timestamp = time.Now().UTC()
	return next
}

func cloneData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
