package validation

import (
	"fmt"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/pkg/schema"
)

// validateGraph flattens the definition and reports build errors, plus a
// warning for every node that cannot be reached from __start (typically
// tasks placed after a TERMINATE).
func validateGraph(def *schema.WorkflowDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	d, err := dag.NewFromDefinition(def)
	if err != nil {
		addBuildError(result, "tasks", err)
		return result
	}
	g := d.Graph()

	reachable := map[string]bool{dag.StartRef: true}
	queue := []string{dag.StartRef}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(node) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, node := range g.Nodes() {
		if reachable[node.Ref] || node.Config.Type.IsVirtual() {
			continue
		}
		path := "tasks"
		if loc, ok := d.Location(node.Ref); ok {
			path = fmt.Sprintf("tasks[%d]", loc.Index)
			if loc.Slot != dag.SlotRoot {
				path = fmt.Sprintf("%s.%s[%d]", loc.Owner, loc.Slot, loc.Index)
			}
		}
		result.AddWarning(path, schema.ErrCodeValidation,
			fmt.Sprintf("task %q is unreachable from the workflow start", node.Ref))
	}

	return result
}

// validateRecords checks an execution's record list against its definition.
// Records are never reordered, so a child listed before its parent is
// reported; a parent that never appears is an error.
func validateRecords(def *schema.WorkflowDefinition, exec *schema.Execution) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	known := make(map[string]bool)
	if def != nil {
		schema.WalkTasks(def.Tasks, func(t *schema.TaskConfig) bool {
			known[t.Ref()] = true
			return true
		})
	}

	firstSeen := make(map[string]int, len(exec.Tasks))
	ids := make(map[string]int, len(exec.Tasks))
	for i := range exec.Tasks {
		r := &exec.Tasks[i]
		if _, ok := firstSeen[r.Ref()]; !ok {
			firstSeen[r.Ref()] = i
		}
		if r.TaskID == "" {
			continue
		}
		if prev, dup := ids[r.TaskID]; dup {
			result.AddTaskError(fmt.Sprintf("tasks[%d].taskId", i), r.Ref(),
				fmt.Sprintf("task id %s already used by tasks[%d]", r.TaskID, prev))
			continue
		}
		ids[r.TaskID] = i
	}

	for i := range exec.Tasks {
		r := &exec.Tasks[i]
		path := fmt.Sprintf("tasks[%d]", i)

		parent := r.ParentTaskReferenceName
		if parent != "" {
			at, ok := firstSeen[parent]
			switch {
			case !ok:
				result.AddTaskError(path+".parentTaskReferenceName", r.Ref(),
					fmt.Sprintf("parent %s has no record", parent))
			case at > i:
				result.AddWarning(path, schema.ErrCodeInvalidState,
					fmt.Sprintf("record %s is listed before its parent %s", r.TaskID, parent))
			}
		}

		// Forked children are not in the definition; everything else should be.
		if def != nil && !known[r.Ref()] && parent == "" {
			result.AddWarning(path+".referenceTaskName", schema.ErrCodeNotFound,
				fmt.Sprintf("record for %s has no task in the definition", r.Ref()))
		}
	}

	return result
}

func addBuildError(result *schema.ValidationResult, path string, err error) {
	ge, ok := err.(*schema.GraphError)
	if !ok {
		result.AddError(path, schema.ErrCodeValidation, err.Error())
		return
	}
	result.Errors = append(result.Errors, schema.ValidationIssue{
		Path:     path,
		Code:     ge.Code,
		Message:  ge.Message,
		Severity: schema.SeverityError,
		TaskRef:  ge.TaskRef,
	})
}
