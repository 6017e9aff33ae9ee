package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wfgraph/internal/dag"
)

const checkoutExecution = `{
  "workflowId": "run-1",
  "workflowName": "checkout",
  "workflowVersion": 4,
  "status": "COMPLETED",
  "tasks": [
    {"taskId": "t1", "referenceTaskName": "route", "taskType": "SWITCH", "status": "COMPLETED"},
    {"taskId": "t2", "referenceTaskName": "ship_slow", "taskType": "SIMPLE", "status": "COMPLETED", "parentTaskReferenceName": "route"},
    {"taskId": "t3", "referenceTaskName": "done", "taskType": "SIMPLE", "status": "COMPLETED"}
  ]
}`

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRender_Formats(t *testing.T) {
	isolate(t)
	def := writeTemp(t, "checkout.yaml", checkoutYAML)

	out, err := run(t, "render", "--definition", def)
	require.NoError(t, err)
	assert.Contains(t, out, "ship_fast")

	out, err = run(t, "render", "-d", def, "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	_, err = run(t, "render", "-d", def, "--format", "pdf")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRender_ExecutionJSON(t *testing.T) {
	isolate(t)
	def := writeTemp(t, "checkout.yaml", checkoutYAML)
	exec := writeTemp(t, "run.json", checkoutExecution)

	out, err := run(t, "render", "-d", def, "-e", exec, "--format", "json")
	require.NoError(t, err)

	var graph struct {
		Nodes []struct {
			Ref    string `json:"ref"`
			Status string `json:"status"`
		} `json:"nodes"`
		Edges []struct {
			From     string `json:"from"`
			To       string `json:"to"`
			Executed bool   `json:"executed"`
		} `json:"edges"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &graph))

	status := map[string]string{}
	for _, n := range graph.Nodes {
		status[n.Ref] = n.Status
	}
	assert.Equal(t, "COMPLETED", status["ship_slow"])
	assert.Empty(t, status["ship_fast"])
	assert.Contains(t, status, dag.FinalRef)

	executed := 0
	for _, e := range graph.Edges {
		if e.From == "route" && e.Executed {
			executed++
			assert.Equal(t, "ship_slow", e.To)
		}
	}
	assert.Equal(t, 1, executed)
}

func TestRender_OutputFile(t *testing.T) {
	isolate(t)
	def := writeTemp(t, "checkout.yaml", checkoutYAML)
	target := filepath.Join(t.TempDir(), "graph.mmd")

	out, err := run(t, "render", "-d", def, "-f", "mermaid", "-o", target)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "graph TD")
}

func TestRender_NeedsDefinition(t *testing.T) {
	isolate(t)
	exec := writeTemp(t, "run.json", checkoutExecution)

	_, err := run(t, "render", "-e", exec)
	assert.ErrorContains(t, err, "--definition is required")
}

func TestValidate(t *testing.T) {
	isolate(t)

	out, err := run(t, "validate", writeTemp(t, "checkout.yaml", checkoutYAML),
		"--execution", writeTemp(t, "run.json", checkoutExecution))
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	dup := `{"name":"d","tasks":[
	  {"name":"a","taskReferenceName":"a","type":"SIMPLE"},
	  {"name":"a","taskReferenceName":"a","type":"SIMPLE"}]}`
	out, err = run(t, "validate", writeTemp(t, "dup.json", dup))
	assert.ErrorContains(t, err, "1 error(s)")
	assert.Contains(t, out, "duplicate task reference name: a")
}

func TestInvalidConfigFailsCommands(t *testing.T) {
	isolate(t)
	_, err := run(t, "render", "-d", writeTemp(t, "checkout.yaml", checkoutYAML), "--collapse-threshold", "0")
	assert.ErrorContains(t, err, "invalid configuration")

	t.Setenv("WFGRAPH_LOG_LEVEL", "loud")
	out, err := run(t, "version")
	require.NoError(t, err, "version skips configuration")
	assert.Contains(t, out, "wfgraph dev")
}

func TestInstall_SkipTools(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, "install", "--skip-tools", "--listen-addr", ":5000", "--strict-order")
	require.NoError(t, err)
	assert.Contains(t, out, "settings.json")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.True(t, cfg.StrictOrder)
	assert.Equal(t, filepath.Join(dir, "wfgraph.db"), cfg.DBPath)
}
