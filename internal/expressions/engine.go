package expressions

import "context"

// Engine evaluates expressions against a JSON-like data map.
// Three implementations: CEL (event filters), Expr (sweep values), GoJQ (result traversal).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
