package diagram

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto tries to render using the mermaid-ascii CLI binary if available,
// falling back to RenderASCII.
func RenderASCIIAuto(model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			result, err := RenderASCIIViaCLI(model, binPath)
			if err == nil {
				return result
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(model *DiagramModel, binPath string) (string, error) {
	cmd := exec.Command(binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates the Mermaid subset mermaid-ascii parses: no
// node declarations, no subgraphs, no classes. Status and tallies are folded
// into the node IDs so they stay visible.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	displayID := make(map[string]string, len(model.Nodes))
	for _, node := range model.Nodes {
		displayID[node.ID] = cliNodeID(node)
	}
	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To))
	}

	return b.String()
}

// cliNodeID builds a display ID for the mermaid-ascii CLI.
func cliNodeID(node *Node) string {
	id := firstLine(node.Label)
	if id == "" {
		id = node.ID
	}

	if st := node.Status; st != nil {
		if tag := cliStatusTag(st.Status); tag != "" {
			id += "-" + tag
		}
		if st.Tally != nil {
			id += fmt.Sprintf("-%d/%d", st.Tally.Success, st.Tally.Total)
		}
		if st.DurationMs > 0 {
			id += fmt.Sprintf("-%dms", st.DurationMs)
		}
	}

	return strings.ReplaceAll(id, " ", "-")
}

// cliStatusTag returns a compact status indicator for node IDs.
func cliStatusTag(status string) string {
	return strings.Trim(statusTag(status), "[]")
}
