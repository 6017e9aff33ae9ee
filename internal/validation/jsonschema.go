package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/wfgraph/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	workflowSchemaURL  = "https://wfgraph.dev/schemas/workflow.json"
	executionSchemaURL = "https://wfgraph.dev/schemas/execution.json"
)

// workflowSchemaJSON is the JSON Schema for Conductor workflow definitions.
// Servers attach many bookkeeping fields, so unknown properties are allowed.
const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wfgraph.dev/schemas/workflow.json",
  "type": "object",
  "required": ["name", "tasks"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "version": { "type": "integer", "minimum": 0 },
    "description": { "type": "string" },
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/task" }
    },
    "inputParameters": {
      "type": "array",
      "items": { "type": "string" }
    },
    "schemaVersion": { "type": "integer" },
    "ownerEmail": { "type": "string" },
    "timeoutSeconds": { "type": "integer", "minimum": 0 }
  },
  "$defs": {
    "taskList": {
      "type": "array",
      "items": { "$ref": "#/$defs/task" }
    },
    "task": {
      "type": "object",
      "required": ["name", "taskReferenceName", "type"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "taskReferenceName": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "inputParameters": { "type": "object" },
        "optional": { "type": "boolean" },
        "decisionCases": {
          "type": "object",
          "additionalProperties": { "$ref": "#/$defs/taskList" }
        },
        "defaultCase": { "$ref": "#/$defs/taskList" },
        "evaluatorType": {
          "type": "string",
          "enum": ["value-param", "javascript", "graaljs"]
        },
        "expression": { "type": "string" },
        "caseValueParam": { "type": "string" },
        "forkTasks": {
          "type": "array",
          "items": { "$ref": "#/$defs/taskList" }
        },
        "dynamicForkTasksParam": { "type": "string" },
        "dynamicForkTasksInputParamName": { "type": "string" },
        "joinOn": {
          "type": "array",
          "items": { "type": "string" }
        },
        "loopCondition": { "type": "string" },
        "loopOver": { "$ref": "#/$defs/taskList" },
        "subWorkflowParam": {
          "type": "object",
          "required": ["name"],
          "properties": {
            "name": { "type": "string", "minLength": 1 },
            "version": { "type": "integer" }
          }
        }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "FORK_JOIN" } } },
          "then": { "required": ["forkTasks"], "properties": { "forkTasks": { "minItems": 1 } } }
        },
        {
          "if": { "properties": { "type": { "const": "DO_WHILE" } } },
          "then": { "required": ["loopOver"], "properties": { "loopOver": { "minItems": 1 } } }
        },
        {
          "if": { "properties": { "type": { "const": "SWITCH" } } },
          "then": { "required": ["evaluatorType", "expression"] }
        },
        {
          "if": { "properties": { "type": { "const": "DECISION" } } },
          "then": { "required": ["caseValueParam"] }
        },
        {
          "if": { "properties": { "type": { "const": "SUB_WORKFLOW" } } },
          "then": { "required": ["subWorkflowParam"] }
        }
      ]
    }
  }
}`

// executionSchemaJSON is the JSON Schema for execution documents.
const executionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://wfgraph.dev/schemas/execution.json",
  "type": "object",
  "required": ["workflowId", "status", "tasks"],
  "properties": {
    "workflowId": { "type": "string", "minLength": 1 },
    "status": {
      "type": "string",
      "enum": ["RUNNING", "COMPLETED", "FAILED", "TIMED_OUT", "TERMINATED", "PAUSED"]
    },
    "tasks": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/record" }
    },
    "workflowDefinition": { "type": "object" }
  },
  "$defs": {
    "record": {
      "type": "object",
      "required": ["referenceTaskName", "taskType", "status"],
      "properties": {
        "taskId": { "type": "string" },
        "referenceTaskName": { "type": "string", "minLength": 1 },
        "taskType": { "type": "string", "minLength": 1 },
        "status": {
          "type": "string",
          "enum": [
            "SCHEDULED", "IN_PROGRESS", "COMPLETED", "COMPLETED_WITH_ERRORS",
            "FAILED", "FAILED_WITH_TERMINAL_ERROR", "TIMED_OUT", "CANCELED", "SKIPPED"
          ]
        },
        "parentTaskReferenceName": { "type": "string" },
        "iteration": { "type": "integer", "minimum": 0 },
        "retryCount": { "type": "integer", "minimum": 0 }
      }
    }
  }
}`

// JSONSchemaValidator checks definition and execution documents against the
// embedded JSON Schemas (Draft 2020-12). It is safe for concurrent use.
type JSONSchemaValidator struct {
	workflowSchema  *jsonschema.Schema
	executionSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles both schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	resources := []struct{ url, doc string }{
		{workflowSchemaURL, workflowSchemaJSON},
		{executionSchemaURL, executionSchemaJSON},
	}
	for _, r := range resources {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(r.doc))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", r.url, err)
		}
		if err := c.AddResource(r.url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", r.url, err)
		}
	}

	wfSchema, err := c.Compile(workflowSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	execSchema, err := c.Compile(executionSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile execution schema: %w", err)
	}

	return &JSONSchemaValidator{
		workflowSchema:  wfSchema,
		executionSchema: execSchema,
	}, nil
}

// ValidateDefinition validates a decoded definition.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}
	return validateDoc(v.workflowSchema, doc)
}

// ValidateDefinitionJSON validates a raw definition document before it is
// decoded, so fields the Go types would drop are still checked.
func (v *JSONSchemaValidator) ValidateDefinitionJSON(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is not valid JSON").WithCause(err)
	}
	return validateDoc(v.workflowSchema, doc)
}

// ValidateExecution validates a decoded execution document.
func (v *JSONSchemaValidator) ValidateExecution(exec *schema.Execution) error {
	if exec == nil {
		return schema.NewError(schema.ErrCodeValidation, "execution is nil")
	}
	doc, err := toJSONValue(exec)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize execution").WithCause(err)
	}
	return validateDoc(v.executionSchema, doc)
}

func validateDoc(s *jsonschema.Schema, doc any) error {
	if err := s.Validate(doc); err != nil {
		return toGraphError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// toGraphError converts a jsonschema.ValidationError into a GraphError whose
// details list every leaf violation.
func toGraphError(err error) *schema.GraphError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
