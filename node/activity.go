package node

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songzhibin97/workflow-engine/mailbox"
	"github.com/songzhibin97/workflow-engine/registry"
	"github.com/songzhibin97/workflow-engine/rules"
	"github.com/songzhibin97/workflow-engine/types"
)

// WaitingTokenInfo is the snapshot shape Activity.Snapshot returns for the
// external waiting-token query surface.
type WaitingTokenInfo struct {
	ID           uuid.UUID
	Data         map[string]interface{}
	Timestamp    time.Time
	ActivityType types.ActivityType
	FormFields   []types.FormField
}

// Activity implements all four activity variants. Service and script run
// their work inline and forward immediately. User and
// manual pause: they move the token into a local waiting table and rely
// on a later, synchronous Complete call (from the ActivityAPI bridge) to
// resume.
type Activity struct {
	id           string
	activityType types.ActivityType
	nextNodes    []string
	workFnName   string
	script       string
	formFields   []types.FormField
	callables    *registry.CallableRegistry
	scripts      rules.ScriptRunner
	sink         EngineSink
	mb           *mailbox.Mailbox[types.Token]

	mu      sync.Mutex
	waiting map[uuid.UUID]waitEntry
}

type waitEntry struct {
	token types.Token
	since time.Time
}

// ActivityConfig bundles an Activity's static wiring.
type ActivityConfig struct {
	ID           string
	ActivityType types.ActivityType
	NextNodes    []string
	WorkFnName   string
	Script       string
	FormFields   []types.FormField
	Callables    *registry.CallableRegistry
	Scripts      rules.ScriptRunner
}

// NewActivity constructs and starts an Activity worker's goroutine.
func NewActivity(cfg ActivityConfig, sink EngineSink) *Activity {
	a := &Activity{
		id:           cfg.ID,
		activityType: cfg.ActivityType,
		nextNodes:    cfg.NextNodes,
		workFnName:   cfg.WorkFnName,
		script:       cfg.Script,
		formFields:   cfg.FormFields,
		callables:    cfg.Callables,
		scripts:      cfg.Scripts,
		sink:         sink,
		mb:           mailbox.New[types.Token](),
		waiting:      make(map[uuid.UUID]waitEntry),
	}
	go a.mb.Run(a.handle)
	return a
}

func (a *Activity) ID() string           { return a.id }
func (a *Activity) Kind() types.NodeKind { return types.KindActivity }
func (a *Activity) Close()               { a.mb.Close() }

func (a *Activity) Execute(ctx context.Context, tok types.Token) {
	a.mb.Send(tok)
}

func (a *Activity) handle(tok types.Token) {
	moved := tok.MoveTo(a.id)

	switch a.activityType {
	case types.ActivityUser, types.ActivityManual:
		a.mu.Lock()
		a.waiting[moved.ID] = waitEntry{token: moved, since: moved.Timestamp}
		a.mu.Unlock()
		// Per DESIGN.md's resolution of the tracker-lifecycle open
		// question, only ActivityWaiting is emitted here; NodeExecuted is
		// not emitted for a pausing activity at all. The ActivityCompleted
		// that Complete emits on resume is what drives the tracker
		// Complete.
		a.sink.ActivityWaiting(a.id, moved)
		return
	case types.ActivityScript:
		out, err := a.runScript(moved)
		if err != nil {
			out = map[string]interface{}{"error": err.Error()}
		}
		result := moved.Merge(out)
		a.sink.NodeExecuted(a.id, result)
		a.forward(result)
	default: // service
		out, err := a.runWorkFn(moved)
		if err != nil {
			out = map[string]interface{}{"error": err.Error()}
		}
		result := moved.Merge(out)
		a.sink.NodeExecuted(a.id, result)
		a.forward(result)
	}
}

func (a *Activity) runWorkFn(tok types.Token) (map[string]interface{}, error) {
	if a.workFnName == "" || a.callables == nil {
		return map[string]interface{}{}, nil
	}
	fn, ok := a.callables.WorkFn(a.workFnName)
	if !ok {
		return nil, errUnregisteredWorkFn(a.workFnName)
	}
	return fn(context.Background(), tok.Data)
}

func (a *Activity) runScript(tok types.Token) (map[string]interface{}, error) {
	if a.scripts == nil {
		return map[string]interface{}{}, nil
	}
	return a.scripts.Run(a.script, tok.Data)
}

func (a *Activity) forward(tok types.Token) {
	switch len(a.nextNodes) {
	case 0:
		return
	case 1:
		a.sink.ForwardToken(a.nextNodes[0], tok)
	default:
		children := make([]Forward, len(a.nextNodes))
		for i, n := range a.nextNodes {
			children[i] = Forward{NodeID: n, Token: tok.Clone()}
		}
		a.sink.Split(tok.ID.String(), children)
	}
}

// Complete resumes a waiting token with externally-supplied data, per spec
// §4.5. It is a synchronous call from the ActivityAPI bridge, not a
// mailbox message — user/manual activities additionally serialize access
// to their waiting table with a mutex because this call arrives from a
// different goroutine than the mailbox's Execute handler.
func (a *Activity) Complete(tokenID uuid.UUID, userData map[string]interface{}) (types.Token, error) {
	a.mu.Lock()
	entry, ok := a.waiting[tokenID]
	if !ok {
		a.mu.Unlock()
		return types.Token{}, types.ErrTokenNotFound
	}
	delete(a.waiting, tokenID)
	a.mu.Unlock()

	result := entry.token.Merge(userData)
	a.sink.ActivityCompleted(a.id, result)
	a.forward(result)
	return result, nil
}

// Snapshot returns the activity's current waiting tokens.
func (a *Activity) Snapshot() []WaitingTokenInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]WaitingTokenInfo, 0, len(a.waiting))
	for id, entry := range a.waiting {
		out = append(out, WaitingTokenInfo{
			ID:           id,
			Data:         entry.token.Data,
			Timestamp:    entry.since,
			ActivityType: a.activityType,
			FormFields:   a.formFields,
		})
	}
	return out
}

type errUnregisteredWorkFn string

func (e errUnregisteredWorkFn) Error() string {
	return "work function not registered: " + string(e)
}
