package diagram

import "github.com/rendis/wfgraph/internal/graph"

// NodeKind classifies a diagram node by how it is drawn.
type NodeKind string

const (
	NodeKindTask        NodeKind = "task"
	NodeKindFork        NodeKind = "fork"
	NodeKindJoin        NodeKind = "join"
	NodeKindSwitch      NodeKind = "switch"
	NodeKindLoop        NodeKind = "loop"
	NodeKindLoopEnd     NodeKind = "loop_end"
	NodeKindPlaceholder NodeKind = "placeholder"
	NodeKindTerminate   NodeKind = "terminate"
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Nodes    []*Node
	Edges    []Edge
	Levels   [][]string
	Clusters []*Cluster
	Overlay  bool // built from an execution
}

// Node is one vertex of the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   NodeKind
	Type   string
	Status *StatusOverlay
}

// Cluster groups the nodes drawn inside one fork branch or loop body.
type Cluster struct {
	ID      string
	Label   string
	NodeIDs []string
}

// StatusOverlay carries execution state for a node.
type StatusOverlay struct {
	Status     string // schema.TaskStatus
	Attempts   int
	RetryCount int
	DurationMs int64
	Error      string
	Tally      *graph.Tally
}

// Edge connects two nodes. Dimmed marks edges the execution did not take.
type Edge struct {
	From     string
	To       string
	Label    string
	Executed bool
	Dimmed   bool
}

// statusClass folds Conductor task statuses into the style classes shared by
// the renderers.
func statusClass(status string) string {
	switch status {
	case "COMPLETED":
		return "completed"
	case "COMPLETED_WITH_ERRORS":
		return "warning"
	case "FAILED", "FAILED_WITH_TERMINAL_ERROR", "TIMED_OUT":
		return "failed"
	case "IN_PROGRESS":
		return "running"
	case "SCHEDULED":
		return "pending"
	case "CANCELED":
		return "canceled"
	case "SKIPPED":
		return "skipped"
	default:
		return ""
	}
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
