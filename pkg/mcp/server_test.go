package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, deps GraphServerDeps) *GraphServer {
	t.Helper()
	s, err := NewGraphServer(deps)
	require.NoError(t, err)
	return s
}

func TestNewGraphServer(t *testing.T) {
	s := newTestServer(t, GraphServerDeps{})
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.validator)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := newTestServer(t, GraphServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 4)

	for _, name := range []string{"wfgraph.build", "wfgraph.diagram", "wfgraph.resolve", "wfgraph.validate"} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		toolName string
		required []string
	}{
		{"wfgraph.build", nil},
		{"wfgraph.diagram", []string{"format"}},
		{"wfgraph.resolve", nil},
		{"wfgraph.validate", []string{"definition"}},
	}

	s := newTestServer(t, GraphServerDeps{})
	for _, tc := range tests {
		t.Run(tc.toolName, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.NotEmpty(t, tool.Tool.Description)
			assert.ElementsMatch(t, tc.required, tool.Tool.InputSchema.Required)
		})
	}
}
