package schema

import (
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// WorkflowDefinition is the Conductor workflow definition document.
type WorkflowDefinition struct {
	Name            string       `json:"name"`
	Version         int          `json:"version,omitempty"`
	Description     string       `json:"description,omitempty"`
	Tasks           []TaskConfig `json:"tasks"`
	InputParameters []string     `json:"inputParameters,omitempty"`
	SchemaVersion   int          `json:"schemaVersion,omitempty"`
	OwnerEmail      string       `json:"ownerEmail,omitempty"`
	TimeoutSeconds  int64        `json:"timeoutSeconds,omitempty"`
}

// DecisionCases maps a case value to its branch, keeping document order.
type DecisionCases = orderedmap.OrderedMap[string, []TaskConfig]

// NewDecisionCases returns an empty ordered case map.
func NewDecisionCases() *DecisionCases {
	return orderedmap.New[string, []TaskConfig]()
}

// TaskConfig is one node of a workflow definition. Which fields are
// meaningful depends on Type.
type TaskConfig struct {
	Name              string         `json:"name"`
	TaskReferenceName string         `json:"taskReferenceName"`
	Type              TaskType       `json:"type"`
	Description       string         `json:"description,omitempty"`
	InputParameters   map[string]any `json:"inputParameters,omitempty"`
	Optional          bool           `json:"optional,omitempty"`

	// SWITCH / DECISION
	DecisionCases  *DecisionCases `json:"decisionCases,omitempty"`
	DefaultCase    []TaskConfig   `json:"defaultCase,omitempty"`
	EvaluatorType  string         `json:"evaluatorType,omitempty"`
	Expression     string         `json:"expression,omitempty"`
	CaseValueParam string         `json:"caseValueParam,omitempty"`

	// FORK_JOIN
	ForkTasks [][]TaskConfig `json:"forkTasks,omitempty"`

	// FORK_JOIN_DYNAMIC
	DynamicForkTasksParam          string `json:"dynamicForkTasksParam,omitempty"`
	DynamicForkTasksInputParamName string `json:"dynamicForkTasksInputParamName,omitempty"`

	// JOIN
	JoinOn []string `json:"joinOn,omitempty"`

	// DO_WHILE
	LoopCondition string       `json:"loopCondition,omitempty"`
	LoopOver      []TaskConfig `json:"loopOver,omitempty"`

	// SUB_WORKFLOW
	SubWorkflowParam *SubWorkflowParam `json:"subWorkflowParam,omitempty"`

	// AliasFor is set on DO_WHILE_END bars and names the loop they close.
	AliasFor string `json:"aliasFor,omitempty"`
}

// SubWorkflowParam identifies the workflow started by a SUB_WORKFLOW task.
type SubWorkflowParam struct {
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`
}

// Ref returns the task reference name.
func (t *TaskConfig) Ref() string { return t.TaskReferenceName }

// CaseKeys returns the named case values in document order.
func (t *TaskConfig) CaseKeys() []string {
	if t.DecisionCases == nil {
		return nil
	}
	keys := make([]string, 0, t.DecisionCases.Len())
	for pair := t.DecisionCases.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Case returns the branch for a named case value.
func (t *TaskConfig) Case(key string) ([]TaskConfig, bool) {
	if t.DecisionCases == nil {
		return nil, false
	}
	return t.DecisionCases.Get(key)
}

// HasCases reports whether the switch has at least one named case.
func (t *TaskConfig) HasCases() bool {
	return t.DecisionCases != nil && t.DecisionCases.Len() > 0
}

// SetCase sets (or replaces) the branch for a case value.
func (t *TaskConfig) SetCase(key string, tasks []TaskConfig) {
	if t.DecisionCases == nil {
		t.DecisionCases = NewDecisionCases()
	}
	t.DecisionCases.Set(key, tasks)
}

// Clone returns a deep copy of the definition.
func (d *WorkflowDefinition) Clone() (*WorkflowDefinition, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("clone definition: %w", err)
	}
	var out WorkflowDefinition
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone definition: %w", err)
	}
	return &out, nil
}

// WalkTasks visits every task of the list in document order, descending into
// fork branches, default and named cases, and loop bodies. Returning false
// from fn stops the walk.
func WalkTasks(tasks []TaskConfig, fn func(*TaskConfig) bool) bool {
	for i := range tasks {
		t := &tasks[i]
		if !fn(t) {
			return false
		}
		for _, branch := range t.ForkTasks {
			if !WalkTasks(branch, fn) {
				return false
			}
		}
		if !WalkTasks(t.DefaultCase, fn) {
			return false
		}
		for _, key := range t.CaseKeys() {
			branch, _ := t.Case(key)
			if !WalkTasks(branch, fn) {
				return false
			}
		}
		if !WalkTasks(t.LoopOver, fn) {
			return false
		}
	}
	return true
}
