package expressions

import (
	"context"
	"fmt"

	"github.com/rendis/outpost/pkg/schema"
)

// Engine evaluates expressions over a processed execution scope.
// Three implementations: CEL and Expr (rule criteria), GoJQ (result
// extraction and transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines bundles the three dialects available to rule criteria and result
// key extraction.
type Engines struct {
	CEL  *CELEngine
	Expr *ExprEngine
	JQ   *GoJQEngine
}

// NewEngines constructs all three engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("create cel engine: %w", err)
	}
	return &Engines{
		CEL:  celEngine,
		Expr: NewExprEngine(),
		JQ:   NewGoJQEngine(),
	}, nil
}

// ByName returns the engine for a dialect name.
func (e *Engines) ByName(dialect string) (Engine, error) {
	switch dialect {
	case "cel":
		return e.CEL, nil
	case "expr":
		return e.Expr, nil
	case "jq":
		return e.JQ, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"unknown expression dialect %q; available: cel, expr, jq", dialect)
	}
}
