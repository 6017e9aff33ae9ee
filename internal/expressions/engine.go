package expressions

import (
	"context"

	"github.com/rendis/wfgraph/pkg/schema"
)

// Engine evaluates expressions found in workflow definitions and console
// queries. Three implementations: CEL (record filters), Expr (switch and loop
// scripts), GoJQ (JSON_JQ_TRANSFORM queries and projections).
type Engine interface {
	Name() string
	Compile(expression string) error
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// Engines bundles one instance of each engine. All engines are safe for
// concurrent use.
type Engines struct {
	CEL  *CELEngine
	Expr *ExprEngine
	JQ   *GoJQEngine
}

// NewEngines creates the three engines.
func NewEngines() (*Engines, error) {
	celEngine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	return &Engines{
		CEL:  celEngine,
		Expr: NewExprEngine(),
		JQ:   NewGoJQEngine(),
	}, nil
}

// Lookup returns the engine with the given name: cel, expr or jq.
func (e *Engines) Lookup(name string) (Engine, error) {
	switch name {
	case "cel":
		return e.CEL, nil
	case "expr":
		return e.Expr, nil
	case "jq", "gojq":
		return e.JQ, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression engine %q", name)
	}
}
