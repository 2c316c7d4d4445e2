// Package rules evaluates the boolean conditions gateways route on and
// the scripts script activities run, both as expr-lang expressions
// compiled once and cached by source text.
package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator evaluates a boolean expression against a data map. Used by
// exclusive and inclusive gateways.
type Evaluator interface {
	Evaluate(expression string, data map[string]interface{}) (bool, error)
}

// ScriptRunner evaluates a script expression against a data map and
// returns the fields to merge back into the token. Used by script
// activities.
type ScriptRunner interface {
	Run(script string, data map[string]interface{}) (map[string]interface{}, error)
}

// ExprEvaluator implements both Evaluator and ScriptRunner on top of a
// single compiled-program cache.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates an evaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ExprEvaluator) compile(expression string, data map[string]interface{}) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if program, ok = e.cache[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(data))
	if err != nil {
		return nil, err
	}
	e.cache[expression] = program
	return program, nil
}

// Evaluate compiles (or reuses a cached compile of) expression and runs it
// against data, requiring a boolean result.
func (e *ExprEvaluator) Evaluate(expression string, data map[string]interface{}) (bool, error) {
	program, err := e.compile(expression, data)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(program, data)
	if err != nil {
		return false, err
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", expression, result)
	}
	return boolResult, nil
}

// Run compiles (or reuses a cached compile of) script and runs it against
// data. If the script evaluates to a map, that map is returned verbatim
// (to be merged into the token's data by the caller). Any other result
// type is wrapped as {"result": value}. An empty script is a pass-through
// that returns no changes.
func (e *ExprEvaluator) Run(script string, data map[string]interface{}) (map[string]interface{}, error) {
	if script == "" {
		return map[string]interface{}{}, nil
	}

	program, err := e.compile(script, data)
	if err != nil {
		return nil, err
	}

	result, err := expr.Run(program, data)
	if err != nil {
		return nil, err
	}

	if m, ok := result.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"result": result}, nil
}
