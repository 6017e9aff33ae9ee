package diagram

import (
	"fmt"
	"strings"
)

// statusTag returns a short ASCII indicator for a Conductor task status.
func statusTag(status string) string {
	switch statusClass(status) {
	case "completed":
		return "[OK]"
	case "warning":
		return "[WARN]"
	case "failed":
		return "[FAIL]"
	case "running":
		return "[RUN]"
	case "pending":
		return "[PEND]"
	case "canceled":
		return "[CANCEL]"
	case "skipped":
		return "[SKIP]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text diagram: one row of boxes per
// level, then the labeled and untaken edges, then the clusters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	var branches []Edge
	for _, e := range model.Edges {
		if e.Label != "" || e.Dimmed {
			branches = append(branches, e)
		}
	}
	if len(branches) > 0 {
		b.WriteString("\n--- branches ---\n")
		for _, e := range branches {
			arrow := "─→"
			if e.Label != "" {
				arrow = "─[" + e.Label + "]→"
			}
			suffix := ""
			if e.Executed {
				suffix = " *"
			} else if e.Dimmed {
				suffix = " (not taken)"
			}
			fmt.Fprintf(&b, "  %s %s %s%s\n", e.From, arrow, e.To, suffix)
		}
	}

	for _, c := range model.Clusters {
		fmt.Fprintf(&b, "\n--- %s ---\n", c.Label)
		for _, id := range c.NodeIDs {
			line := "    " + id
			if node := findNode(model.Nodes, id); node != nil && node.Status != nil {
				if tag := statusTag(node.Status.Status); tag != "" {
					line += " " + tag
				}
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := strings.Split(node.Label, "\n")

	if st := node.Status; st != nil {
		var extra []string
		if tag := statusTag(st.Status); tag != "" {
			extra = append(extra, tag)
		}
		if st.Attempts > 1 {
			extra = append(extra, fmt.Sprintf("x%d", st.Attempts))
		}
		if st.DurationMs > 0 {
			extra = append(extra, fmt.Sprintf("%dms", st.DurationMs))
		}
		if len(extra) > 0 {
			contentLines = append(contentLines, strings.Join(extra, " "))
		}
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := make([]string, 0, len(contentLines)+2)
	lines = append(lines, "┌"+strings.Repeat("─", width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
