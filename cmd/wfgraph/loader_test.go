package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wfgraph/pkg/schema"
)

const checkoutYAML = `name: checkout
version: 4
tasks:
  - name: route
    taskReferenceName: route
    type: SWITCH
    evaluatorType: value-param
    expression: kind
    decisionCases:
      express:
        - &fast
          name: ship_fast
          taskReferenceName: ship_fast
          type: SIMPLE
      bulk:
        - name: ship_slow
          taskReferenceName: ship_slow
          type: SIMPLE
          inputParameters:
            retries: 3
            ratio: 0.5
            notify: true
            note: null
  - name: done
    taskReferenceName: done
    type: SIMPLE
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefinition_YAMLKeepsCaseOrder(t *testing.T) {
	def, err := loadDefinition(writeTemp(t, "checkout.yaml", checkoutYAML))
	require.NoError(t, err)

	assert.Equal(t, "checkout", def.Name)
	assert.Equal(t, 4, def.Version)
	require.Len(t, def.Tasks, 2)

	route := def.Tasks[0]
	assert.Equal(t, schema.TaskTypeSwitch, route.Type)
	assert.Equal(t, []string{"express", "bulk"}, route.CaseKeys())

	bulk, ok := route.Case("bulk")
	require.True(t, ok)
	params := bulk[0].InputParameters
	assert.Equal(t, float64(3), params["retries"])
	assert.Equal(t, 0.5, params["ratio"])
	assert.Equal(t, true, params["notify"])
	assert.Contains(t, params, "note")
	assert.Nil(t, params["note"])
}

func TestLoadDefinition_JSON(t *testing.T) {
	path := writeTemp(t, "def.json", `{"name":"j","tasks":[{"name":"a","taskReferenceName":"a","type":"SIMPLE"}]}`)
	def, err := loadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "a", def.Tasks[0].Ref())
}

func TestYAMLToJSON_Aliases(t *testing.T) {
	out, err := yamlToJSON([]byte("base: &b {x: 1}\ncopy: *b\nlist: [a, 2]\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"base":{"x":1},"copy":{"x":1},"list":["a",2]}`, string(out))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		errMsg  string
	}{
		{"bad yaml", "d.yaml", "tasks: [", "parse"},
		{"empty yaml", "d.yml", "", "empty document"},
		{"non-scalar key", "d.yaml", "? [a, b]\n: 1\n", "mapping keys"},
		{"bad json", "d.json", "{", "decode"},
		{"wrong shape", "d.json", `{"tasks": "none"}`, "decode"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadDefinition(writeTemp(t, tc.file, tc.content))
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}

	_, err := loadExecution(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read")
}
