package validation

import (
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/pkg/schema"
)

// WorkflowValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (refs, fork/join pairing, expressions)
// 3. Graph (flatten, reachability)
// Executions add a record stage checked against the definition.
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	engines    *expressions.Engines
}

// NewWorkflowValidator creates a WorkflowValidator.
// engines may be nil to skip expression checks.
func NewWorkflowValidator(engines *expressions.Engines) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		engines:    engines,
	}, nil
}

// Validate runs the definition pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and graph stages are skipped.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	// Stage 1: Structural (JSON Schema).
	result := structural(wv.jsonSchema.ValidateDefinition(def))
	if !result.Valid() {
		return result
	}

	// Stage 2: Semantic.
	result.Merge(validateSemantic(def, wv.engines))

	// Stage 3: Graph (skip if semantic errors, the build would fail on them).
	if result.Valid() {
		result.Merge(validateGraph(def))
	}

	return result
}

// ValidateRecords checks an execution document and its record list. def may
// be nil, in which case the execution's embedded definition is used when
// present.
func (wv *WorkflowValidator) ValidateRecords(def *schema.WorkflowDefinition, exec *schema.Execution) *schema.ValidationResult {
	if exec == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "execution is nil")
		return r
	}
	if def == nil {
		def = exec.WorkflowDefinition
	}

	result := structural(wv.jsonSchema.ValidateExecution(exec))
	if !result.Valid() {
		return result
	}
	result.Merge(validateRecords(def, exec))
	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// ValidateExecution satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateExecution(def *schema.WorkflowDefinition, exec *schema.Execution) error {
	return wv.ValidateRecords(def, exec).ToError()
}

// ValidateDefinitionJSON runs the structural stage on a raw document.
func (wv *WorkflowValidator) ValidateDefinitionJSON(data []byte) *schema.ValidationResult {
	return structural(wv.jsonSchema.ValidateDefinitionJSON(data))
}

// structural converts a JSON Schema error into a ValidationResult, one issue
// per violation.
func structural(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	ge, ok := err.(*schema.GraphError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if ge.Details != nil {
		if violations, ok := ge.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, ge.Message)
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
