package expressions

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// CELEngine implements the Engine interface using Google's Common Expression Language.
// It evaluates event filter predicates for queue event subscriptions.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a new CEL expression engine with a sandboxed environment.
// The environment exposes the fields of a queue event as top-level variables:
//   - type:       string, event name (e.g. "invocation_complete")
//   - queue_id:   string
//   - item_id:    int
//   - batch_id:   string
//   - session_id: string
//   - node_id:    string, invocation node, empty for queue-level events
//   - node_type:  string
//   - status:     string, item status for status-change events
//   - payload:    map(string, dyn), the raw event payload
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("queue_id", cel.StringType),
		cel.Variable("item_id", cel.IntType),
		cel.Variable("batch_id", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("node_id", cel.StringType),
		cel.Variable("node_type", cel.StringType),
		cel.Variable("status", cel.StringType),
		cel.Variable("payload", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// Evaluate compiles (or retrieves from cache) a CEL expression and evaluates it
// against the provided data. The data map should contain keys matching the
// environment variables; missing keys default to zero values.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	activation := buildActivation(data)

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out.Value(), nil
}

// Compile checks an expression without evaluating it. The compiled program
// stays cached for later Evaluate calls.
func (e *CELEngine) Compile(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	_, err := e.getOrCompile(expression)
	return err
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (e *CELEngine) getOrCompile(expression string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

// buildActivation creates the evaluation activation map from the data.
// Missing keys default to zero values to prevent CEL runtime nil-ref errors.
func buildActivation(data map[string]any) map[string]any {
	activation := make(map[string]any, 9)

	for _, key := range []string{"type", "queue_id", "batch_id", "session_id", "node_id", "node_type", "status"} {
		if v, ok := data[key]; ok && v != nil {
			activation[key] = v
		} else {
			activation[key] = ""
		}
	}

	if v, ok := data["item_id"]; ok && v != nil {
		activation["item_id"] = v
	} else {
		activation["item_id"] = 0
	}

	if v, ok := data["payload"]; ok && v != nil {
		activation["payload"] = v
	} else {
		activation["payload"] = map[string]any{}
	}

	return activation
}
