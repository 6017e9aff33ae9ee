package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
// Clusters become subgraphs; with an execution overlay, taken edges are
// thick and untaken edges dotted.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	clustered := make(map[string]bool)
	for _, c := range model.Clusters {
		for _, id := range c.NodeIDs {
			clustered[id] = true
		}
	}

	for _, node := range model.Nodes {
		if !clustered[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}
	for _, c := range model.Clusters {
		fmt.Fprintf(&b, "    subgraph %s[\"%s\"]\n", mermaidSafeID("cluster_"+c.ID), mermaidEscapeLabel(c.Label))
		for _, id := range c.NodeIDs {
			if node := findNode(model.Nodes, id); node != nil {
				fmt.Fprintf(&b, "        %s\n", mermaidNodeDef(node))
			}
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s %s %s\n", mermaidSafeID(edge.From), mermaidArrow(edge), mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef completed fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")
	b.WriteString("    classDef running fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef pending fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")
	b.WriteString("    classDef canceled fill:#4a4a4a,stroke:#333,color:#ddd\n")
	b.WriteString("    classDef skipped fill:#4a4a4a,stroke:#333,color:#aaa,stroke-dasharray:5 5\n")

	for _, node := range model.Nodes {
		if node.Status == nil {
			continue
		}
		if cls := statusClass(node.Status.Status); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

func mermaidArrow(edge Edge) string {
	arrow := "-->"
	switch {
	case edge.Executed:
		arrow = "==>"
	case edge.Dimmed:
		arrow = "-.->"
	}
	if edge.Label != "" {
		return fmt.Sprintf("%s|%s|", arrow, mermaidEscapeLabel(edge.Label))
	}
	return arrow
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(mermaidLabel(node))

	switch node.Kind {
	case NodeKindSwitch:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case NodeKindFork, NodeKindJoin:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	case NodeKindLoop, NodeKindLoopEnd:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case NodeKindPlaceholder:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	case NodeKindTerminate:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidLabel joins the label lines with a Mermaid line break.
func mermaidLabel(node *Node) string {
	return strings.ReplaceAll(node.Label, "\n", "<br/>")
}

var mermaidIDReplacer = strings.NewReplacer(".", "_", "-", "_", " ", "_")

// mermaidSafeID converts a node ID to a Mermaid-safe identifier. "end" is a
// keyword in flowcharts, so it gets a suffix.
func mermaidSafeID(id string) string {
	id = mermaidIDReplacer.Replace(id)
	if strings.EqualFold(id, "end") {
		return id + "_"
	}
	return id
}

// mermaidEscapeLabel escapes characters that end a quoted Mermaid label.
func mermaidEscapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}
