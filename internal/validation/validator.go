package validation

import "github.com/rendis/wfgraph/pkg/schema"

// Validator checks definitions, and executions against their definitions,
// before a graph is built from them.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
	ValidateExecution(def *schema.WorkflowDefinition, exec *schema.Execution) error
}
