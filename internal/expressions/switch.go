package expressions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rendis/wfgraph/pkg/schema"
)

// IsScriptEvaluator reports whether a switch evaluator runs a script rather
// than reading an input parameter.
func IsScriptEvaluator(evaluatorType string) bool {
	switch strings.ToLower(evaluatorType) {
	case "javascript", "graaljs":
		return true
	}
	return false
}

// CaseSelection is the branch a switch takes for one input.
type CaseSelection struct {
	Value   any    `json:"value"`
	Case    string `json:"case,omitempty"`
	Default bool   `json:"default"`
}

// SelectCase evaluates a SWITCH or DECISION against its resolved input and
// picks the named case whose value matches, else the default branch.
// value-param switches and DECISION caseValueParam read the named input
// key; script evaluators run the expression with `$` bound to input.
func (e *ExprEngine) SelectCase(ctx context.Context, sw *schema.TaskConfig, input map[string]any) (*CaseSelection, error) {
	if sw.Type.Kind() != schema.KindSwitch {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "task %s is %s, not a switch", sw.Ref(), sw.Type).
			WithTask(sw.Ref())
	}

	var value any
	switch {
	case sw.Type == schema.TaskTypeDecision && sw.CaseValueParam != "":
		value = input[sw.CaseValueParam]
	case IsScriptEvaluator(sw.EvaluatorType):
		out, err := e.EvaluateScript(ctx, sw.Expression, input)
		if err != nil {
			return nil, err
		}
		value = out
	case sw.Expression != "":
		value = input[sw.Expression]
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "switch %s has no expression", sw.Ref()).
			WithTask(sw.Ref())
	}

	sel := &CaseSelection{Value: value}
	if value != nil {
		key := fmt.Sprint(value)
		if _, ok := sw.Case(key); ok {
			sel.Case = key
			return sel, nil
		}
	}
	sel.Default = true
	return sel, nil
}
