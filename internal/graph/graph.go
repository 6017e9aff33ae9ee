// Package graph is the directed graph a workflow DAG is reconstructed into.
// Nodes are keyed by task reference name; edges carry execution and branch
// annotations for the renderer.
package graph

import (
	"encoding/json"

	"github.com/rendis/wfgraph/pkg/schema"
)

// Tally aggregates the statuses summarized by a placeholder node.
type Tally struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	InProgress int `json:"inProgress"`
	Canceled   int `json:"canceled"`
	Failed     int `json:"failed,omitempty"`
	Iterations int `json:"iterations,omitempty"`
}

// Node is one vertex of the graph.
type Node struct {
	Ref      string               `json:"ref"`
	Config   *schema.TaskConfig   `json:"config"`
	Results  []*schema.TaskResult `json:"results,omitempty"`
	Status   schema.TaskStatus    `json:"status,omitempty"`
	Tally    *Tally               `json:"tally,omitempty"`
	Contains []string             `json:"contains,omitempty"`
}

// Executed reports whether the node has a resolved status.
func (n *Node) Executed() bool { return n.Status != "" }

// LastResult returns the current result, or nil if the node never ran.
func (n *Node) LastResult() *schema.TaskResult {
	if len(n.Results) == 0 {
		return nil
	}
	return n.Results[len(n.Results)-1]
}

// Kind returns the node's task kind.
func (n *Node) Kind() schema.Kind {
	if n.Config == nil {
		return schema.KindLeaf
	}
	return n.Config.Type.Kind()
}

// Edge connects an antecedent to its successor.
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Executed  bool   `json:"executed"`
	CaseValue string `json:"caseValue,omitempty"`
}

type edgeKey struct{ from, to string }

// Graph is a directed graph with insertion-ordered nodes and edges.
// It is not safe for concurrent mutation; built graphs are read-only.
type Graph struct {
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[edgeKey]*Edge
	edgeOrder []edgeKey
	out       map[string][]string // ref → successors
	in        map[string][]string // ref → predecessors
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		edges: make(map[edgeKey]*Edge),
		out:   make(map[string][]string),
		in:    make(map[string][]string),
	}
}

// SetNode adds the node, or replaces the node with the same ref in place.
func (g *Graph) SetNode(n *Node) {
	if _, exists := g.nodes[n.Ref]; !exists {
		g.nodeOrder = append(g.nodeOrder, n.Ref)
	}
	g.nodes[n.Ref] = n
}

// Node returns the node for ref.
func (g *Graph) Node(ref string) (*Node, bool) {
	n, ok := g.nodes[ref]
	return n, ok
}

// HasNode reports whether ref is a node of the graph.
func (g *Graph) HasNode(ref string) bool {
	_, ok := g.nodes[ref]
	return ok
}

// RemoveNode deletes the node and every incident edge.
func (g *Graph) RemoveNode(ref string) {
	if _, ok := g.nodes[ref]; !ok {
		return
	}
	for _, succ := range append([]string(nil), g.out[ref]...) {
		g.RemoveEdge(ref, succ)
	}
	for _, pred := range append([]string(nil), g.in[ref]...) {
		g.RemoveEdge(pred, ref)
	}
	delete(g.nodes, ref)
	delete(g.out, ref)
	delete(g.in, ref)
	g.nodeOrder = removeString(g.nodeOrder, ref)
}

// SetEdge adds the edge, or replaces the edge with the same endpoints.
// Both endpoints must already be nodes; otherwise SetEdge returns false.
func (g *Graph) SetEdge(e *Edge) bool {
	if !g.HasNode(e.From) || !g.HasNode(e.To) {
		return false
	}
	k := edgeKey{e.From, e.To}
	if _, exists := g.edges[k]; !exists {
		g.edgeOrder = append(g.edgeOrder, k)
		g.out[e.From] = append(g.out[e.From], e.To)
		g.in[e.To] = append(g.in[e.To], e.From)
	}
	g.edges[k] = e
	return true
}

// Edge returns the edge between from and to.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	e, ok := g.edges[edgeKey{from, to}]
	return e, ok
}

// RemoveEdge deletes the edge between from and to, if present.
func (g *Graph) RemoveEdge(from, to string) {
	k := edgeKey{from, to}
	if _, ok := g.edges[k]; !ok {
		return
	}
	delete(g.edges, k)
	g.out[from] = removeString(g.out[from], to)
	g.in[to] = removeString(g.in[to], from)
	for i, ek := range g.edgeOrder {
		if ek == k {
			g.edgeOrder = append(g.edgeOrder[:i], g.edgeOrder[i+1:]...)
			break
		}
	}
}

// Nodes returns nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodeOrder))
	for _, ref := range g.nodeOrder {
		out = append(out, g.nodes[ref])
	}
	return out
}

// Edges returns edges in insertion order.
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, k := range g.edgeOrder {
		out = append(out, g.edges[k])
	}
	return out
}

// Successors returns the refs ref has edges into.
func (g *Graph) Successors(ref string) []string {
	return append([]string(nil), g.out[ref]...)
}

// Predecessors returns the refs with edges into ref.
func (g *Graph) Predecessors(ref string) []string {
	return append([]string(nil), g.in[ref]...)
}

// OutEdges returns the edges leaving ref.
func (g *Graph) OutEdges(ref string) []*Edge {
	out := make([]*Edge, 0, len(g.out[ref]))
	for _, to := range g.out[ref] {
		out = append(out, g.edges[edgeKey{ref, to}])
	}
	return out
}

// InEdges returns the edges entering ref.
func (g *Graph) InEdges(ref string) []*Edge {
	out := make([]*Edge, 0, len(g.in[ref]))
	for _, from := range g.in[ref] {
		out = append(out, g.edges[edgeKey{from, ref}])
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Levels groups nodes by longest distance from a root, so that every edge
// points to a deeper level. Nodes on a cycle are omitted.
func (g *Graph) Levels() [][]string {
	inDegree := make(map[string]int, len(g.nodes))
	for _, ref := range g.nodeOrder {
		inDegree[ref] = len(g.in[ref])
	}

	queue := make([]string, 0)
	for _, ref := range g.nodeOrder {
		if inDegree[ref] == 0 {
			queue = append(queue, ref)
		}
	}

	depth := make(map[string]int, len(g.nodes))
	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]
		sorted = append(sorted, ref)
		for _, succ := range g.out[ref] {
			if depth[ref]+1 > depth[succ] {
				depth[succ] = depth[ref] + 1
			}
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	maxLevel := -1
	visited := make(map[string]bool, len(sorted))
	for _, ref := range sorted {
		visited[ref] = true
		if depth[ref] > maxLevel {
			maxLevel = depth[ref]
		}
	}
	levels := make([][]string, maxLevel+1)
	for _, ref := range g.nodeOrder {
		if visited[ref] {
			levels[depth[ref]] = append(levels[depth[ref]], ref)
		}
	}
	return levels
}

type graphJSON struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// MarshalJSON encodes the graph as ordered node and edge lists.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{Nodes: g.Nodes(), Edges: g.Edges()})
}

func removeString(s []string, v string) []string {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
