package dag

import (
	"strings"

	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// TaskCoordinate identifies a task by execution id, reference name, or both.
// When both are set the id wins.
type TaskCoordinate struct {
	ID  string `json:"id,omitempty"`
	Ref string `json:"ref,omitempty"`
}

// LastResult returns the current record for ref, or nil if it never ran.
func (d *WorkflowDAG) LastResult(ref string) *schema.TaskResult {
	if d.index == nil {
		return nil
	}
	return d.index.last(ref)
}

// AllResults returns every record for ref in retry order.
func (d *WorkflowDAG) AllResults(ref string) []*schema.TaskResult {
	if d.index == nil {
		return nil
	}
	return append([]*schema.TaskResult(nil), d.index.results(ref)...)
}

// ResultByID returns the record with the given execution id. An unknown id
// is an INVALID_COORDINATE error.
func (d *WorkflowDAG) ResultByID(id string) (*schema.TaskResult, error) {
	if d.index != nil {
		if r, ok := d.index.byID[id]; ok {
			return r, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeInvalidCoordinate, "no task with id %s in this execution", id).
		WithDetails(map[string]any{"task_id": id})
}

// ResultFor resolves a coordinate to its record. A reference name that never
// ran yields nil without error.
func (d *WorkflowDAG) ResultFor(c TaskCoordinate) (*schema.TaskResult, error) {
	if c.ID != "" {
		return d.ResultByID(c.ID)
	}
	return d.LastResult(c.Ref), nil
}

// ResolveVisibleRef returns the reference name of the node that shows c:
// the task's own node, or the placeholder that summarizes it when it was
// collapsed. It returns "" when nothing visible represents the task.
func (d *WorkflowDAG) ResolveVisibleRef(c TaskCoordinate) (string, error) {
	result, err := d.ResultFor(c)
	if err != nil {
		return "", err
	}
	ref := c.Ref
	if result != nil {
		ref = result.Ref()
	}
	return d.resolveVisible(ref, result, 0), nil
}

func (d *WorkflowDAG) resolveVisible(ref string, result *schema.TaskResult, depth int) string {
	if d.graph.HasNode(ref) {
		return ref
	}
	if result == nil || result.ParentTaskReferenceName == "" || depth > len(d.configs)+1 {
		return ""
	}
	parentRef := result.ParentTaskReferenceName
	parent := d.LastResult(parentRef)
	if parent == nil {
		return ""
	}
	if !d.graph.HasNode(parentRef) {
		// The parent is itself collapsed; resolve through it.
		return d.resolveVisible(parentRef, parent, depth+1)
	}

	var marker string
	switch {
	case parent.TaskType.IsFork():
		marker = ForkPlaceholderSuffix
	case parent.TaskType.Kind() == schema.KindDoWhile:
		marker = LoopPlaceholderSuffix
	default:
		return ""
	}
	for _, succ := range d.graph.Successors(parentRef) {
		if strings.Contains(succ, marker) {
			return succ
		}
	}
	return ""
}

// NodeFor returns the visible node for c, or nil.
func (d *WorkflowDAG) NodeFor(c TaskCoordinate) (*graph.Node, error) {
	ref, err := d.ResolveVisibleRef(c)
	if err != nil || ref == "" {
		return nil, err
	}
	n, _ := d.graph.Node(ref)
	return n, nil
}

// DynamicForkSiblings returns the current record of every child forked by
// the coordinate's parent, or nil when the parent is not a fork or the
// coordinate is a join.
func (d *WorkflowDAG) DynamicForkSiblings(c TaskCoordinate) ([]*schema.TaskResult, error) {
	result, parent, err := d.withParent(c)
	if err != nil || parent == nil {
		return nil, err
	}
	if result.TaskType.Kind() == schema.KindJoin || !parent.TaskType.IsFork() {
		return nil, nil
	}
	children := d.index.forkedChildren[parent.Ref()]
	siblings := make([]*schema.TaskResult, 0, len(children))
	for _, child := range children {
		if r := d.index.last(child); r != nil {
			siblings = append(siblings, r)
		}
	}
	return siblings, nil
}

// LoopSiblings returns every iteration record of the coordinate's task in
// scan order, or nil when its parent is not a loop.
func (d *WorkflowDAG) LoopSiblings(c TaskCoordinate) ([]*schema.TaskResult, error) {
	result, parent, err := d.withParent(c)
	if err != nil || parent == nil {
		return nil, err
	}
	if parent.TaskType.Kind() != schema.KindDoWhile {
		return nil, nil
	}
	var siblings []*schema.TaskResult
	for _, id := range d.index.loopTaskIDs[parent.Ref()] {
		if r, ok := d.index.byID[id]; ok && r.Ref() == result.Ref() {
			siblings = append(siblings, r)
		}
	}
	return siblings, nil
}

func (d *WorkflowDAG) withParent(c TaskCoordinate) (*schema.TaskResult, *schema.TaskResult, error) {
	result, err := d.ResultFor(c)
	if err != nil || result == nil || result.ParentTaskReferenceName == "" {
		return nil, nil, err
	}
	parent := d.LastResult(result.ParentTaskReferenceName)
	if parent == nil {
		return nil, nil, nil
	}
	return result, parent, nil
}

// TaskConfig returns the config for ref: the static task, a virtual node's
// config, or a stand-in reconstructed from the task's records.
func (d *WorkflowDAG) TaskConfig(ref string) *schema.TaskConfig {
	if cfg, ok := d.configs[ref]; ok {
		return cfg
	}
	if d.index == nil {
		return nil
	}
	return d.synthesizeConfig(ref)
}

// ForkedChildren returns the distinct child refs a fork spawned.
func (d *WorkflowDAG) ForkedChildren(ref string) []string {
	if d.index == nil {
		return nil
	}
	return append([]string(nil), d.index.forkedChildren[ref]...)
}

// ExecutedCase returns the leading task ref of the case a switch took.
func (d *WorkflowDAG) ExecutedCase(ref string) (string, bool) {
	if d.index == nil {
		return "", false
	}
	c, ok := d.index.executedCase[ref]
	return c, ok
}

// LoopTaskIDs returns the ids of every record run inside a loop.
func (d *WorkflowDAG) LoopTaskIDs(ref string) []string {
	if d.index == nil {
		return nil
	}
	return append([]string(nil), d.index.loopTaskIDs[ref]...)
}

// Results returns every record of the execution in scan order, excluding
// the synthesized sentinels.
func (d *WorkflowDAG) Results() []*schema.TaskResult {
	if d.index == nil {
		return nil
	}
	return append([]*schema.TaskResult(nil), d.index.ordered...)
}
