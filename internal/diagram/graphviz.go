package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
func RenderImage(model *DiagramModel) ([]byte, error) {
	return render(model, graphviz.PNG)
}

// RenderSVG renders a DiagramModel as SVG using graphviz.
func RenderSVG(model *DiagramModel) ([]byte, error) {
	return render(model, graphviz.SVG)
}

func render(model *DiagramModel, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	// Clustered nodes are created inside their cluster subgraph.
	parent := make(map[string]*cgraph.Graph)
	for _, c := range model.Clusters {
		sub, subErr := graph.CreateSubGraphByName("cluster_" + c.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create cluster %s: %w", c.ID, subErr)
		}
		sub.SetLabel(c.Label)
		sub.SetStyle(cgraph.DashedGraphStyle)
		for _, id := range c.NodeIDs {
			parent[id] = sub
		}
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		owner := graph
		if sub, ok := parent[node.ID]; ok {
			owner = sub
		}
		gvNode, nErr := owner.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s -> %s: %w", edge.From, edge.To, eErr)
		}
		applyEdgeStyle(e, edge)
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and status.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindTask:
		gvNode.SetShape(cgraph.BoxShape)
	case NodeKindSwitch:
		gvNode.SetShape(cgraph.DiamondShape)
	case NodeKindFork, NodeKindJoin:
		gvNode.SetShape(cgraph.TrapeziumShape)
	case NodeKindLoop, NodeKindLoopEnd:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetPeripheries(2)
	case NodeKindPlaceholder:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindTerminate:
		gvNode.SetShape(cgraph.OctagonShape)
	case NodeKindStart, NodeKindEnd:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.5)
		gvNode.SetHeight(0.5)
	}

	if node.Status != nil {
		applyStatusColor(gvNode, node.Status.Status)
	}
}

// applyStatusColor sets fill color and style based on status.
func applyStatusColor(gvNode *cgraph.Node, status string) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch statusClass(status) {
	case "completed":
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	case "warning":
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	case "failed":
		gvNode.SetFillColor("#8b1a1a")
		gvNode.SetFontColor("white")
	case "running":
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case "pending":
		gvNode.SetFillColor("#d3d3d3")
		gvNode.SetFontColor("black")
	case "canceled":
		gvNode.SetFillColor("#4a4a4a")
		gvNode.SetFontColor("#dddddd")
	case "skipped":
		gvNode.SetFillColor("#e8e8e8")
		gvNode.SetFontColor("#888888")
		gvNode.SetStyle(cgraph.DashedNodeStyle)
	}
}

// applyEdgeStyle labels case edges and marks taken and untaken edges.
func applyEdgeStyle(e *cgraph.Edge, edge Edge) {
	if edge.Label != "" {
		e.SetLabel(edge.Label)
	}
	switch {
	case edge.Executed:
		e.SetPenWidth(2)
	case edge.Dimmed:
		e.SetStyle(cgraph.DashedEdgeStyle)
		e.SetColor("#aaaaaa")
	}
}
