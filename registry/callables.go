// Package registry holds the CallableRegistry: a name-keyed table of Go
// functions that definitions reference by name instead of carrying
// closures (which can't cross the persistence boundary). It covers the
// two callable shapes needed: work functions for service activities and
// condition functions for gateways.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/songzhibin97/workflow-engine/types"
)

// ErrAlreadyRegistered is returned when a name is registered twice.
var ErrAlreadyRegistered = errors.New("callable already registered")

// WorkFn is a service activity's unit of work. It receives the token's
// current data and returns the data to merge in (the right-biased merge
// is applied by the caller, not here).
type WorkFn func(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error)

// ConditionFn decides whether a token should route to candidate out of a
// gateway's NextNodes.
type ConditionFn func(ctx context.Context, tok types.Token, candidate string) (bool, error)

// CallableRegistry is safe for concurrent use.
type CallableRegistry struct {
	mu           sync.RWMutex
	workFns      map[string]WorkFn
	conditionFns map[string]ConditionFn
}

// New creates an empty registry.
func New() *CallableRegistry {
	return &CallableRegistry{
		workFns:      make(map[string]WorkFn),
		conditionFns: make(map[string]ConditionFn),
	}
}

// RegisterWorkFn registers a named work function for service activities.
func (r *CallableRegistry) RegisterWorkFn(name string, fn WorkFn) error {
	if name == "" || fn == nil {
		return errors.New("name and fn are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workFns[name]; exists {
		return ErrAlreadyRegistered
	}
	r.workFns[name] = fn
	return nil
}

// RegisterConditionFn registers a named condition function for gateways.
func (r *CallableRegistry) RegisterConditionFn(name string, fn ConditionFn) error {
	if name == "" || fn == nil {
		return errors.New("name and fn are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conditionFns[name]; exists {
		return ErrAlreadyRegistered
	}
	r.conditionFns[name] = fn
	return nil
}

// WorkFn looks up a registered work function by name.
func (r *CallableRegistry) WorkFn(name string) (WorkFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.workFns[name]
	return fn, ok
}

// ConditionFn looks up a registered condition function by name.
func (r *CallableRegistry) ConditionFn(name string) (ConditionFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.conditionFns[name]
	return fn, ok
}
