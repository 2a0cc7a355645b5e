package expressions

import "context"

// Engine evaluates expressions against a data map.
// GoJQ resolves payload paths for interpolation; Expr evaluates success rules.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
