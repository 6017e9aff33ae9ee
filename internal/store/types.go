package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/wfgraph/pkg/schema"
)

// DefinitionRecord is a cached workflow definition.
type DefinitionRecord struct {
	Name        string                     `json:"name"`
	Version     int                        `json:"version"`
	Description string                     `json:"description,omitempty"`
	Definition  *schema.WorkflowDefinition `json:"definition"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// ExecutionRecord is a cached execution with its ordered task records.
type ExecutionRecord struct {
	ID              string                `json:"id"`
	WorkflowName    string                `json:"workflow_name,omitempty"`
	WorkflowVersion int                   `json:"workflow_version,omitempty"`
	Status          schema.WorkflowStatus `json:"status"`
	Execution       *schema.Execution     `json:"execution"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// EditEvent records one structural edit applied to a definition. Sequence is
// monotonic per definition name.
type EditEvent struct {
	ID             int64           `json:"id"`
	DefinitionName string          `json:"definition_name"`
	Sequence       int64           `json:"sequence"`
	Operation      string          `json:"operation"`
	TaskRef        string          `json:"task_ref,omitempty"`
	FromVersion    int             `json:"from_version"`
	ToVersion      int             `json:"to_version"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// DefinitionFilter specifies criteria for listing definitions.
type DefinitionFilter struct {
	Name  string
	Limit int
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	WorkflowName string
	Status       *schema.WorkflowStatus
	Since        *time.Time
	Limit        int
	Offset       int
}
