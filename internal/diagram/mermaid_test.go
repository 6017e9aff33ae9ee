package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMermaidLinear(t *testing.T) {
	output := RenderMermaid(mustDefinitionModel(t, linearWorkflow()))

	assert.Contains(t, output, "graph TD")
	assert.Contains(t, output, "%% etl v2")

	assert.Contains(t, output, `fetch["fetch<br/>(HTTP)"]`)
	assert.Contains(t, output, "transform[")

	assert.Contains(t, output, `__start(("Start"))`)
	assert.Contains(t, output, `__final(("End"))`)

	assert.Contains(t, output, "__start --> fetch")
	assert.Contains(t, output, "store --> __final")

	assert.Contains(t, output, "classDef completed")
	assert.Contains(t, output, "classDef failed")
	assert.Contains(t, output, "classDef running")
	assert.NotContains(t, output, "class fetch")
}

func TestRenderMermaidSwitch(t *testing.T) {
	output := RenderMermaid(mustDefinitionModel(t, switchWorkflow()))

	assert.Contains(t, output, `decide{"decide<br/>(SWITCH)"}`)
	assert.Contains(t, output, "decide -->|deploy| ship")
	assert.Contains(t, output, "decide -->|default| notify")
}

func TestRenderMermaidFork(t *testing.T) {
	output := RenderMermaid(mustDefinitionModel(t, forkWorkflow()))

	assert.Contains(t, output, `fan[/"fan<br/>(FORK_JOIN)"/]`)
	assert.Contains(t, output, `subgraph cluster_fan_branch_0["fan: branch 0"]`)
	assert.Contains(t, output, "        a1[")
	assert.Contains(t, output, "    end\n")
}

func TestRenderMermaidLoop(t *testing.T) {
	output := RenderMermaid(mustDefinitionModel(t, loopWorkflow()))

	assert.Contains(t, output, "iterate[[")
	assert.Contains(t, output, "iterate_END[[")
	assert.Contains(t, output, "subgraph cluster_iterate_body")
}

func TestRenderMermaidWithStatus(t *testing.T) {
	output := RenderMermaid(mustExecutionModel(t, switchWorkflow(), switchExecution()))

	assert.Contains(t, output, "class check completed")
	assert.Contains(t, output, "class ship running")
	assert.NotContains(t, output, "class notify")

	assert.Contains(t, output, "decide ==>|deploy| ship")
	assert.Contains(t, output, "decide -.->|default| notify")
	assert.Contains(t, output, "check ==> decide")
}

func TestRenderMermaidPlaceholder(t *testing.T) {
	output := RenderMermaid(mustExecutionModel(t, loopWorkflow(), loopExecution()))
	assert.Contains(t, output, `iterate_LOOP_CHILDREN_PLACEHOLDER{{"iterate_LOOP_CHILDREN_PLACEHOLDER<br/>2/2 ok, 2 iterations"}}`)
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c", mermaidSafeID("a.b.c"))
	assert.Equal(t, "loop_END", mermaidSafeID("loop-END"))
	assert.Equal(t, "simple", mermaidSafeID("simple"))
	assert.Equal(t, "end_", mermaidSafeID("end"))
	assert.Equal(t, "End_", mermaidSafeID("End"))
}

func TestMermaidEscapeLabel(t *testing.T) {
	assert.Equal(t, "say #quot;hi#quot;", mermaidEscapeLabel(`say "hi"`))
}
