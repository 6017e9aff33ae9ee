package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// Build constructs a DiagramModel from a built workflow graph. Layout levels
// come from the graph topology; loop bodies and fork branches that are drawn
// individually become clusters.
func Build(d *dag.WorkflowDAG) *DiagramModel {
	g := d.Graph()
	model := &DiagramModel{
		Title:   titleFromDef(d.Definition()),
		Levels:  g.Levels(),
		Overlay: d.HasExecution(),
	}

	for _, n := range g.Nodes() {
		model.Nodes = append(model.Nodes, toNode(n))
	}

	for _, e := range g.Edges() {
		model.Edges = append(model.Edges, Edge{
			From:     e.From,
			To:       e.To,
			Label:    e.CaseValue,
			Executed: e.Executed,
			Dimmed:   model.Overlay && !e.Executed,
		})
	}

	model.Clusters = buildClusters(d)
	return model
}

// BuildDefinition builds the definition-only diagram.
func BuildDefinition(def *schema.WorkflowDefinition, opts ...dag.Option) (*DiagramModel, error) {
	d, err := dag.NewFromDefinition(def, opts...)
	if err != nil {
		return nil, fmt.Errorf("diagram: build graph: %w", err)
	}
	return Build(d), nil
}

// BuildExecution builds the diagram of def overlaid with exec.
func BuildExecution(def *schema.WorkflowDefinition, exec *schema.Execution, opts ...dag.Option) (*DiagramModel, error) {
	d, err := dag.NewFromExecution(def, exec, opts...)
	if err != nil {
		return nil, fmt.Errorf("diagram: build graph: %w", err)
	}
	return Build(d), nil
}

func toNode(n *graph.Node) *Node {
	node := &Node{
		ID:    n.Ref,
		Kind:  kindOf(n),
		Label: nodeLabel(n),
	}
	if n.Config != nil {
		node.Type = string(n.Config.Type)
	}
	overlayStatus(node, n)
	return node
}

// kindOf maps a graph node to how it is drawn.
func kindOf(n *graph.Node) NodeKind {
	switch n.Ref {
	case dag.StartRef:
		return NodeKindStart
	case dag.FinalRef:
		return NodeKindEnd
	}
	switch n.Kind() {
	case schema.KindFork, schema.KindDynamicFork:
		return NodeKindFork
	case schema.KindJoin:
		return NodeKindJoin
	case schema.KindSwitch:
		return NodeKindSwitch
	case schema.KindDoWhile:
		return NodeKindLoop
	case schema.KindDoWhileEnd:
		return NodeKindLoopEnd
	case schema.KindForkPlaceholder, schema.KindLoopPlaceholder:
		return NodeKindPlaceholder
	case schema.KindTerminate:
		return NodeKindTerminate
	default:
		return NodeKindTask
	}
}

// nodeLabel is the ref, then a second line with the task type or, for
// placeholders, the tally.
func nodeLabel(n *graph.Node) string {
	switch n.Ref {
	case dag.StartRef:
		return "Start"
	case dag.FinalRef:
		return "End"
	}
	if n.Config == nil {
		return n.Ref
	}
	switch n.Kind() {
	case schema.KindForkPlaceholder, schema.KindLoopPlaceholder:
		if n.Tally == nil {
			return n.Ref + "\n(not started)"
		}
		return n.Ref + "\n" + tallyText(n.Tally)
	case schema.KindDoWhileEnd:
		return n.Ref
	}
	return fmt.Sprintf("%s\n(%s)", n.Ref, n.Config.Type)
}

// tallyText renders a tally as "2/3 ok, 1 failed, 3 iterations".
func tallyText(t *graph.Tally) string {
	parts := []string{fmt.Sprintf("%d/%d ok", t.Success, t.Total)}
	if t.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", t.Failed))
	}
	if t.InProgress > 0 {
		parts = append(parts, fmt.Sprintf("%d running", t.InProgress))
	}
	if t.Canceled > 0 {
		parts = append(parts, fmt.Sprintf("%d canceled", t.Canceled))
	}
	if t.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("%d iterations", t.Iterations))
	}
	return strings.Join(parts, ", ")
}

// overlayStatus applies execution state to a node.
func overlayStatus(node *Node, n *graph.Node) {
	if !n.Executed() && n.Tally == nil {
		return
	}
	st := &StatusOverlay{
		Status:   string(n.Status),
		Attempts: len(n.Results),
		Tally:    n.Tally,
	}
	if last := n.LastResult(); last != nil {
		st.RetryCount = last.RetryCount
		st.Error = last.ReasonForIncompletion
		if last.StartTime > 0 && last.EndTime >= last.StartTime {
			st.DurationMs = last.EndTime - last.StartTime
		}
	}
	node.Status = st
}

// buildClusters groups static tasks by loop body and fork branch. Tasks that
// are not drawn (collapsed into a placeholder) are left out, and so are
// clusters left empty.
func buildClusters(d *dag.WorkflowDAG) []*Cluster {
	g := d.Graph()
	var clusters []*Cluster
	byID := make(map[string]*Cluster)

	schema.WalkTasks(d.Definition().Tasks, func(task *schema.TaskConfig) bool {
		ref := task.Ref()
		loc, ok := d.Location(ref)
		if !ok || !g.HasNode(ref) {
			return true
		}
		var id, label string
		switch loc.Slot {
		case dag.SlotLoopBody:
			id = loc.Owner + "_body"
			label = loc.Owner + ": body"
		case dag.SlotForkBranch:
			id = fmt.Sprintf("%s_branch_%d", loc.Owner, loc.Branch)
			label = fmt.Sprintf("%s: branch %d", loc.Owner, loc.Branch)
		default:
			return true
		}
		c, exists := byID[id]
		if !exists {
			c = &Cluster{ID: id, Label: label}
			byID[id] = c
			clusters = append(clusters, c)
		}
		c.NodeIDs = append(c.NodeIDs, ref)
		return true
	})
	return clusters
}

// titleFromDef generates a diagram title from workflow metadata.
func titleFromDef(def *schema.WorkflowDefinition) string {
	if def == nil || def.Name == "" {
		return "Workflow"
	}
	if def.Version > 0 {
		return fmt.Sprintf("%s v%d", def.Name, def.Version)
	}
	return def.Name
}
