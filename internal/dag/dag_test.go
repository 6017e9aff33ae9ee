package dag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// --- helpers ---

func simple(ref string) schema.TaskConfig {
	return schema.TaskConfig{Name: ref + "_def", TaskReferenceName: ref, Type: schema.TaskTypeSimple}
}

func terminate(ref string) schema.TaskConfig {
	return schema.TaskConfig{Name: ref, TaskReferenceName: ref, Type: schema.TaskTypeTerminate}
}

func fork(ref string, branches ...[]schema.TaskConfig) schema.TaskConfig {
	return schema.TaskConfig{Name: ref, TaskReferenceName: ref, Type: schema.TaskTypeForkJoin, ForkTasks: branches}
}

func dynFork(ref string) schema.TaskConfig {
	return schema.TaskConfig{
		Name:                           ref,
		TaskReferenceName:              ref,
		Type:                           schema.TaskTypeForkJoinDynamic,
		DynamicForkTasksParam:          "dynamicTasks",
		DynamicForkTasksInputParamName: "dynamicTasksInput",
	}
}

func join(ref string, on ...string) schema.TaskConfig {
	return schema.TaskConfig{Name: ref, TaskReferenceName: ref, Type: schema.TaskTypeJoin, JoinOn: on}
}

type kase struct {
	key   string
	tasks []schema.TaskConfig
}

func switchTask(ref string, dflt []schema.TaskConfig, cases ...kase) schema.TaskConfig {
	t := schema.TaskConfig{
		Name:              ref,
		TaskReferenceName: ref,
		Type:              schema.TaskTypeSwitch,
		EvaluatorType:     "value-param",
		Expression:        "switchCaseValue",
		DefaultCase:       dflt,
	}
	for _, c := range cases {
		t.SetCase(c.key, c.tasks)
	}
	return t
}

func loop(ref string, body ...schema.TaskConfig) schema.TaskConfig {
	return schema.TaskConfig{
		Name:              ref,
		TaskReferenceName: ref,
		Type:              schema.TaskTypeDoWhile,
		LoopCondition:     "$.loop['iteration'] < 2",
		LoopOver:          body,
	}
}

func tasks(ts ...schema.TaskConfig) []schema.TaskConfig { return ts }

func definition(ts ...schema.TaskConfig) *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{Name: "test_wf", Version: 1, Tasks: ts}
}

func rec(id, ref string, typ schema.TaskType, status schema.TaskStatus, parent string) schema.TaskResult {
	return schema.TaskResult{
		TaskID:                  id,
		ReferenceTaskName:       ref,
		TaskType:                typ,
		TaskDefName:             ref + "_def",
		Status:                  status,
		ParentTaskReferenceName: parent,
	}
}

func iteration(r schema.TaskResult, n int) schema.TaskResult {
	r.Iteration = n
	return r
}

func execution(status schema.WorkflowStatus, records ...schema.TaskResult) *schema.Execution {
	return &schema.Execution{WorkflowID: "wf-1", WorkflowName: "test_wf", Status: status, Tasks: records}
}

func mustBuild(t *testing.T, def *schema.WorkflowDefinition, exec *schema.Execution, opts ...Option) *WorkflowDAG {
	t.Helper()
	var (
		d   *WorkflowDAG
		err error
	)
	if exec == nil {
		d, err = NewFromDefinition(def, opts...)
	} else {
		d, err = NewFromExecution(def, exec, opts...)
	}
	require.NoError(t, err)
	return d
}

func mustNode(t *testing.T, d *WorkflowDAG, ref string) *graph.Node {
	t.Helper()
	n, ok := d.Graph().Node(ref)
	require.True(t, ok, "node %s missing", ref)
	return n
}

func mustEdge(t *testing.T, d *WorkflowDAG, from, to string) *graph.Edge {
	t.Helper()
	e, ok := d.Graph().Edge(from, to)
	require.True(t, ok, "edge %s -> %s missing", from, to)
	return e
}

func refs(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Ref)
	}
	return out
}

// dynamicForkExecution runs dynamic_fork with the given child statuses.
func dynamicForkExecution(wfStatus schema.WorkflowStatus, joinStatus schema.TaskStatus, children ...schema.TaskStatus) *schema.Execution {
	records := []schema.TaskResult{rec("fork", "dynamic_fork", schema.TaskTypeForkJoinDynamic, schema.TaskStatusCompleted, "")}
	for i, st := range children {
		ref := "child_" + string(rune('a'+i))
		records = append(records, rec("c"+ref, ref, schema.TaskTypeSimple, st, "dynamic_fork"))
	}
	records = append(records, rec("join", "dynamic_fork_join", schema.TaskTypeJoin, joinStatus, "dynamic_fork"))
	return execution(wfStatus, records...)
}

func dynamicForkDefinition() *schema.WorkflowDefinition {
	return definition(dynFork("dynamic_fork"), join("dynamic_fork_join"))
}

// --- flattening ---

func TestFlatten_LinearChain(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		ts := make([]schema.TaskConfig, n)
		for i := range ts {
			ts[i] = simple("task_" + string(rune('a'+i)))
		}
		d := mustBuild(t, definition(ts...), nil)
		g := d.Graph()

		assert.Equal(t, n+2, g.NodeCount(), "n=%d", n)
		assert.Equal(t, n+1, g.EdgeCount(), "n=%d", n)
		assert.True(t, g.HasNode(FinalRef))

		prev := StartRef
		for _, task := range ts {
			mustEdge(t, d, prev, task.Ref())
			prev = task.Ref()
		}
		mustEdge(t, d, prev, FinalRef)

		for _, node := range g.Nodes() {
			assert.False(t, node.Executed(), "definition-only node %s", node.Ref)
		}
	}
}

func TestFlatten_TerminateOnlyDropsFinal(t *testing.T) {
	d := mustBuild(t, definition(terminate("stop")), nil)

	assert.False(t, d.Graph().HasNode(FinalRef))
	assert.Equal(t, []string{StartRef, "stop"}, refs(d.Graph().Nodes()))
	assert.Nil(t, d.TaskConfig(FinalRef))
}

func TestFlatten_TerminateInOneCaseKeepsFinal(t *testing.T) {
	def := definition(switchTask("route", tasks(simple("ok")), kase{"stop", tasks(terminate("halt"))}))
	d := mustBuild(t, def, nil)

	assert.True(t, d.Graph().HasNode(FinalRef))
	assert.Equal(t, []string{"ok"}, d.Graph().Predecessors(FinalRef))
	assert.Empty(t, d.Graph().Successors("halt"))
}

func TestFlatten_StaticFork(t *testing.T) {
	def := definition(
		fork("fork", tasks(simple("a1"), simple("a2")), tasks(simple("b1"))),
		join("fork_join", "a2", "b1"),
	)
	d := mustBuild(t, def, nil)
	g := d.Graph()

	assert.Equal(t, []string{"a1", "b1"}, g.Successors("fork"))
	assert.Equal(t, []string{"a2", "b1"}, g.Predecessors("fork_join"))
	assert.Equal(t, [][]string{{StartRef}, {"fork"}, {"a1", "b1"}, {"a2"}, {"fork_join"}, {FinalRef}}, g.Levels())
}

func TestFlatten_SwitchExits(t *testing.T) {
	def := definition(
		switchTask("route", tasks(simple("d1")), kase{"x", tasks(simple("x1"), simple("x2"))}, kase{"y", tasks(simple("y1"))}),
		simple("after"),
	)
	d := mustBuild(t, def, nil)

	assert.Equal(t, []string{"d1", "x1", "y1"}, d.Graph().Successors("route"))
	assert.Equal(t, []string{"d1", "x2", "y1"}, d.Graph().Predecessors("after"))
}

func TestFlatten_SwitchEmptyDefaultFallsThrough(t *testing.T) {
	def := definition(switchTask("route", nil, kase{"x", tasks(simple("x1"))}), simple("after"))
	d := mustBuild(t, def, nil)

	assert.ElementsMatch(t, []string{"route", "x1"}, d.Graph().Predecessors("after"))
	assert.Equal(t, DefaultCaseValue, mustEdge(t, d, "route", "after").CaseValue)
	assert.Equal(t, "x", mustEdge(t, d, "route", "x1").CaseValue)
}

func TestFlatten_UnexecutedLoopExpandsBody(t *testing.T) {
	def := definition(loop("loop", simple("b1"), simple("b2")), simple("after"))
	d := mustBuild(t, def, nil)
	g := d.Graph()

	assert.Equal(t, []string{"b1"}, g.Successors("loop"))
	assert.Equal(t, []string{"b2"}, g.Predecessors("loop"+LoopEndSuffix))
	assert.Equal(t, []string{"loop" + LoopEndSuffix}, g.Predecessors("after"))

	end := mustNode(t, d, "loop-END")
	assert.Equal(t, schema.TaskTypeDoWhileEnd, end.Config.Type)
	assert.Equal(t, "loop", end.Config.AliasFor)
	assert.False(t, g.HasNode("loop"+LoopPlaceholderSuffix))
}

func TestFlatten_LoopEndingInSwitchClosesEveryCase(t *testing.T) {
	tests := []struct {
		name string
		sw   schema.TaskConfig
		want []string
	}{
		{
			name: "default and cases",
			sw: switchTask("sw", tasks(simple("d1")),
				kase{"x", tasks(simple("x1"), simple("x2"))},
				kase{"y", tasks(terminate("halt"))},
			),
			want: []string{"d1", "x2"},
		},
		{
			name: "empty default includes switch",
			sw:   switchTask("sw", nil, kase{"x", tasks(simple("x1"))}),
			want: []string{"sw", "x1"},
		},
		{
			name: "nested loop tail maps to its end",
			sw:   switchTask("sw", tasks(simple("d1")), kase{"x", tasks(loop("inner", simple("i1")))}),
			want: []string{"d1", "inner-END"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustBuild(t, definition(loop("loop", simple("s0"), tt.sw)), nil)
			assert.Equal(t, tt.want, d.Graph().Predecessors("loop-END"))
		})
	}
}

func TestFlatten_DynamicForkWithoutExecution(t *testing.T) {
	d := mustBuild(t, dynamicForkDefinition(), nil)

	ph := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
	assert.Nil(t, ph.Tally)
	assert.False(t, ph.Executed())
	assert.Equal(t, []string{"dynamic_fork" + ForkPlaceholderSuffix}, d.Graph().Predecessors("dynamic_fork_join"))
}

func TestFlatten_RejectsBadReferenceNames(t *testing.T) {
	tests := []struct {
		name string
		def  *schema.WorkflowDefinition
	}{
		{"duplicate", definition(simple("a"), fork("f", tasks(simple("a"))), join("j"))},
		{"empty", definition(schema.TaskConfig{Name: "x", Type: schema.TaskTypeSimple})},
		{"reserved", definition(simple(StartRef))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFromDefinition(tt.def)
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
		})
	}

	_, err := NewFromDefinition(nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestFlatten_RecordsLocations(t *testing.T) {
	def := definition(
		simple("a"),
		fork("f", tasks(simple("f0")), tasks(simple("f1a"), simple("f1b"))),
		join("f_join"),
		switchTask("sw", tasks(simple("d1")), kase{"x", tasks(simple("x1"))}),
		loop("lp", simple("body")),
	)
	d := mustBuild(t, def, nil)

	tests := []struct {
		ref  string
		want Location
	}{
		{"a", Location{Slot: SlotRoot, Index: 0}},
		{"f_join", Location{Slot: SlotRoot, Index: 2}},
		{"f1b", Location{Owner: "f", Slot: SlotForkBranch, Branch: 1, Index: 1}},
		{"d1", Location{Owner: "sw", Slot: SlotDefaultCase}},
		{"x1", Location{Owner: "sw", Slot: SlotCase, Case: "x"}},
		{"body", Location{Owner: "lp", Slot: SlotLoopBody}},
	}
	for _, tt := range tests {
		got, ok := d.Location(tt.ref)
		require.True(t, ok, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}
	_, ok := d.Location(StartRef)
	assert.False(t, ok)
}

// --- overlay ---

func TestOverlay_SimpleSuccess(t *testing.T) {
	exec := execution(schema.WorkflowStatusCompleted,
		rec("t1", "simple_task", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""))
	d := mustBuild(t, definition(simple("simple_task")), exec)

	assert.Equal(t, []string{StartRef, "simple_task", FinalRef}, refs(d.Graph().Nodes()))
	for _, n := range d.Graph().Nodes() {
		assert.Equal(t, schema.TaskStatusCompleted, n.Status, n.Ref)
	}
	for _, e := range d.Graph().Edges() {
		assert.True(t, e.Executed, "%s -> %s", e.From, e.To)
	}
}

func TestOverlay_SimpleFailure(t *testing.T) {
	exec := execution(schema.WorkflowStatusFailed,
		rec("t1", "simple_task", schema.TaskTypeSimple, schema.TaskStatusFailed, ""))
	d := mustBuild(t, definition(simple("simple_task")), exec)

	assert.Equal(t, schema.TaskStatusFailed, mustNode(t, d, "simple_task").Status)
	assert.False(t, mustNode(t, d, FinalRef).Executed())
	assert.True(t, mustEdge(t, d, StartRef, "simple_task").Executed)
	assert.False(t, mustEdge(t, d, "simple_task", FinalRef).Executed)
}

func TestOverlay_TerminateRecordSuppressesFinal(t *testing.T) {
	def := definition(switchTask("route", tasks(simple("ok")), kase{"stop", tasks(terminate("halt"))}))
	exec := execution(schema.WorkflowStatusCompleted,
		rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
		rec("h", "halt", schema.TaskTypeTerminate, schema.TaskStatusCompleted, "route"),
	)
	d := mustBuild(t, def, exec)

	assert.False(t, mustNode(t, d, FinalRef).Executed())
	assert.True(t, mustEdge(t, d, "route", "halt").Executed)
	assert.False(t, mustEdge(t, d, "route", "ok").Executed)
}

func TestOverlay_DynamicForkHighFanoutSuccess(t *testing.T) {
	st := schema.TaskStatusCompleted
	exec := dynamicForkExecution(schema.WorkflowStatusCompleted, st, st, st, st, st, st)
	d := mustBuild(t, dynamicForkDefinition(), exec)
	ph := "dynamic_fork" + ForkPlaceholderSuffix

	assert.Equal(t, []string{StartRef, "dynamic_fork", ph, "dynamic_fork_join", FinalRef}, refs(d.Graph().Nodes()))

	node := mustNode(t, d, ph)
	assert.Equal(t, schema.TaskStatusCompleted, node.Status)
	require.NotNil(t, node.Tally)
	assert.Equal(t, 5, node.Tally.Total)
	assert.Equal(t, 5, node.Tally.Success)
	assert.Equal(t, []string{"child_a", "child_b", "child_c", "child_d", "child_e"}, node.Contains)

	assert.Equal(t, schema.TaskStatusCompleted, mustNode(t, d, "dynamic_fork_join").Status)
	assert.Equal(t, schema.TaskStatusCompleted, mustNode(t, d, FinalRef).Status)
	assert.True(t, mustEdge(t, d, ph, "dynamic_fork_join").Executed)
}

func TestOverlay_DynamicForkHighFanoutOneFailure(t *testing.T) {
	ok, bad := schema.TaskStatusCompleted, schema.TaskStatusFailed
	exec := dynamicForkExecution(schema.WorkflowStatusFailed, bad, ok, ok, bad, ok, ok)
	d := mustBuild(t, dynamicForkDefinition(), exec)

	node := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
	assert.Equal(t, schema.TaskStatusFailed, node.Status)
	assert.Equal(t, 5, node.Tally.Total)
	assert.Equal(t, 4, node.Tally.Success)
	assert.Equal(t, 1, node.Tally.Failed)
	assert.Equal(t, schema.TaskStatusFailed, mustNode(t, d, "dynamic_fork_join").Status)
	assert.False(t, mustNode(t, d, FinalRef).Executed())
}

func TestOverlay_DynamicForkInProgressTally(t *testing.T) {
	exec := dynamicForkExecution(schema.WorkflowStatusRunning, schema.TaskStatusInProgress,
		schema.TaskStatusCompleted, schema.TaskStatusScheduled, schema.TaskStatusCanceled)
	d := mustBuild(t, dynamicForkDefinition(), exec)

	node := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
	assert.Equal(t, schema.TaskStatusInProgress, node.Status)
	assert.Equal(t, graph.Tally{Total: 3, Success: 1, InProgress: 1, Canceled: 1}, *node.Tally)
}

func TestOverlay_DynamicForkExpandsBelowThreshold(t *testing.T) {
	for _, n := range []int{1, 2} {
		statuses := make([]schema.TaskStatus, n)
		for i := range statuses {
			statuses[i] = schema.TaskStatusCompleted
		}
		exec := dynamicForkExecution(schema.WorkflowStatusCompleted, schema.TaskStatusCompleted, statuses...)
		d := mustBuild(t, dynamicForkDefinition(), exec)
		g := d.Graph()

		assert.False(t, g.HasNode("dynamic_fork"+ForkPlaceholderSuffix), "n=%d", n)
		assert.Len(t, g.Successors("dynamic_fork"), n)
		assert.Len(t, g.Predecessors("dynamic_fork_join"), n)

		child := mustNode(t, d, "child_a")
		assert.Equal(t, schema.TaskStatusCompleted, child.Status)
		assert.Equal(t, "child_a_def", child.Config.Name)
		assert.Equal(t, schema.TaskTypeSimple, child.Config.Type)
		assert.True(t, mustEdge(t, d, "dynamic_fork", "child_a").Executed)
	}
}

func TestOverlay_DynamicForkCollapsesAtThreshold(t *testing.T) {
	st := schema.TaskStatusCompleted
	exec := dynamicForkExecution(schema.WorkflowStatusCompleted, st, st, st, st)
	d := mustBuild(t, dynamicForkDefinition(), exec)

	assert.True(t, d.Graph().HasNode("dynamic_fork"+ForkPlaceholderSuffix))
	for _, child := range []string{"child_a", "child_b", "child_c"} {
		assert.False(t, d.Graph().HasNode(child))
	}

	wide := mustBuild(t, dynamicForkDefinition(), exec, WithCollapseThreshold(4))
	assert.False(t, wide.Graph().HasNode("dynamic_fork"+ForkPlaceholderSuffix))
	assert.True(t, wide.Graph().HasNode("child_c"))
}

func TestOverlay_DynamicForkChildUsesAttachedWorkflowTask(t *testing.T) {
	exec := dynamicForkExecution(schema.WorkflowStatusCompleted, schema.TaskStatusCompleted, schema.TaskStatusCompleted)
	exec.Tasks[1].WorkflowTask = &schema.TaskConfig{Name: "http_call", Type: schema.TaskTypeHTTP}
	d := mustBuild(t, dynamicForkDefinition(), exec)

	cfg := d.TaskConfig("child_a")
	require.NotNil(t, cfg)
	assert.Equal(t, "http_call", cfg.Name)
	assert.Equal(t, "child_a", cfg.Ref())
	assert.Equal(t, schema.TaskTypeHTTP, cfg.Type)
}

func TestOverlay_ForkTallyIgnoresRetries(t *testing.T) {
	exec := execution(schema.WorkflowStatusCompleted,
		rec("fork", "dynamic_fork", schema.TaskTypeFork, schema.TaskStatusCompleted, ""),
		rec("a1", "child_a", schema.TaskTypeSimple, schema.TaskStatusFailed, "dynamic_fork"),
		rec("b1", "child_b", schema.TaskTypeSimple, schema.TaskStatusCompleted, "dynamic_fork"),
		rec("c1", "child_c", schema.TaskTypeSimple, schema.TaskStatusFailed, "dynamic_fork"),
		rec("a2", "child_a", schema.TaskTypeSimple, schema.TaskStatusFailed, "dynamic_fork"),
		rec("a3", "child_a", schema.TaskTypeSimple, schema.TaskStatusCompleted, "dynamic_fork"),
		rec("c2", "child_c", schema.TaskTypeSimple, schema.TaskStatusCompleted, "dynamic_fork"),
		rec("join", "dynamic_fork_join", schema.TaskTypeJoin, schema.TaskStatusCompleted, "dynamic_fork"),
	)
	d := mustBuild(t, dynamicForkDefinition(), exec)

	node := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
	assert.Equal(t, 3, node.Tally.Total)
	assert.Equal(t, 3, node.Tally.Success)
	assert.Equal(t, schema.TaskStatusCompleted, node.Status)
	assert.Equal(t, []string{"child_a", "child_b", "child_c"}, d.ForkedChildren("dynamic_fork"))
	assert.Len(t, d.AllResults("child_a"), 3)
}

func TestOverlay_DynamicForkEdgeCases(t *testing.T) {
	t.Run("fork never ran", func(t *testing.T) {
		exec := execution(schema.WorkflowStatusRunning,
			rec("s", "prep", schema.TaskTypeSimple, schema.TaskStatusInProgress, ""))
		d := mustBuild(t, definition(simple("prep"), dynFork("dynamic_fork"), join("dynamic_fork_join")), exec)

		node := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
		assert.Nil(t, node.Tally)
		assert.False(t, node.Executed())
	})

	t.Run("fork ran without children", func(t *testing.T) {
		exec := execution(schema.WorkflowStatusRunning,
			rec("fork", "dynamic_fork", schema.TaskTypeForkJoinDynamic, schema.TaskStatusInProgress, ""))
		d := mustBuild(t, dynamicForkDefinition(), exec)

		node := mustNode(t, d, "dynamic_fork"+ForkPlaceholderSuffix)
		require.NotNil(t, node.Tally)
		assert.Equal(t, 0, node.Tally.Total)
		assert.Equal(t, schema.TaskStatusFailed, node.Status)
	})
}

func TestOverlay_SwitchEdgeLabelsAndExecution(t *testing.T) {
	def := definition(
		switchTask("route", tasks(simple("d1")), kase{"case_0", tasks(simple("c0"))}, kase{"case_1", tasks(simple("c1"))}),
		simple("after"),
	)

	tests := []struct {
		name     string
		exec     *schema.Execution
		executed string
	}{
		{
			name: "named case",
			exec: execution(schema.WorkflowStatusCompleted,
				rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
				rec("x", "c1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
				rec("a", "after", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
			),
			executed: "c1",
		},
		{
			name: "default case",
			exec: execution(schema.WorkflowStatusCompleted,
				rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
				rec("x", "d1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
				rec("a", "after", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
			),
			executed: "d1",
		},
		{
			name: "definition only",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mustBuild(t, def, tt.exec)
			out := d.Graph().OutEdges("route")
			require.Len(t, out, 3)

			labels := make([]string, 0, 3)
			executed := 0
			for _, e := range out {
				labels = append(labels, e.CaseValue)
				if e.Executed {
					executed++
					assert.Equal(t, tt.executed, e.To)
				}
			}
			assert.ElementsMatch(t, []string{DefaultCaseValue, "case_0", "case_1"}, labels)
			if tt.exec == nil {
				assert.Zero(t, executed)
			} else {
				assert.Equal(t, 1, executed)
			}
		})
	}
}

func TestOverlay_SwitchEmptyDefault(t *testing.T) {
	def := definition(switchTask("route", nil, kase{"x", tasks(simple("x1"))}), simple("after"))

	t.Run("no case fired", func(t *testing.T) {
		exec := execution(schema.WorkflowStatusCompleted,
			rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
			rec("a", "after", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
		)
		d := mustBuild(t, def, exec)
		assert.True(t, mustEdge(t, d, "route", "after").Executed)
		assert.False(t, mustEdge(t, d, "route", "x1").Executed)
		assert.False(t, mustEdge(t, d, "x1", "after").Executed)
	})

	t.Run("named case fired", func(t *testing.T) {
		exec := execution(schema.WorkflowStatusCompleted,
			rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
			rec("x", "x1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
			rec("a", "after", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
		)
		d := mustBuild(t, def, exec)
		assert.False(t, mustEdge(t, d, "route", "after").Executed)
		assert.True(t, mustEdge(t, d, "route", "x1").Executed)
		assert.True(t, mustEdge(t, d, "x1", "after").Executed)
	})
}

func TestOverlay_SwitchNamedCaseRequiresParent(t *testing.T) {
	// c0 ran, but not as a child of this switch invocation.
	def := definition(switchTask("route", tasks(simple("d1")), kase{"case_0", tasks(simple("c0"))}))
	exec := execution(schema.WorkflowStatusRunning,
		rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
		rec("x", "c0", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
	)
	d := mustBuild(t, def, exec)
	assert.False(t, mustEdge(t, d, "route", "c0").Executed)
}

func TestOverlay_ExecutedCaseFirstWins(t *testing.T) {
	def := definition(switchTask("route", nil, kase{"x", tasks(simple("x1"), simple("x2"))}))
	exec := execution(schema.WorkflowStatusCompleted,
		rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
		rec("1", "x1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
		rec("2", "x2", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
	)
	d := mustBuild(t, def, exec)

	got, ok := d.ExecutedCase("route")
	require.True(t, ok)
	assert.Equal(t, "x1", got)
}

func loopExecution() *schema.Execution {
	return execution(schema.WorkflowStatusCompleted,
		iteration(rec("loop", "loop", schema.TaskTypeDoWhile, schema.TaskStatusCompleted, ""), 2),
		iteration(rec("b1", "body", schema.TaskTypeSimple, schema.TaskStatusCompleted, "loop"), 1),
		iteration(rec("b2", "body", schema.TaskTypeSimple, schema.TaskStatusFailed, "loop"), 2),
		iteration(rec("b3", "body", schema.TaskTypeSimple, schema.TaskStatusCompleted, "loop"), 2),
		rec("after", "after", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""),
	)
}

func TestOverlay_DoWhileCollapsesExecutedLoop(t *testing.T) {
	d := mustBuild(t, definition(loop("loop", simple("body")), simple("after")), loopExecution())
	g := d.Graph()
	ph := "loop" + LoopPlaceholderSuffix

	assert.Equal(t, []string{StartRef, "loop", ph, "loop-END", "after", FinalRef}, refs(g.Nodes()))
	assert.False(t, g.HasNode("body"))

	node := mustNode(t, d, ph)
	assert.Equal(t, schema.TaskStatusCompleted, node.Status)
	assert.Equal(t, graph.Tally{Total: 3, Success: 2, Failed: 1, Iterations: 2}, *node.Tally)
	assert.Equal(t, []string{"body"}, node.Contains)

	end := mustNode(t, d, "loop-END")
	assert.Equal(t, schema.TaskStatusCompleted, end.Status)
	assert.Equal(t, []string{ph}, g.Predecessors("loop-END"))
	assert.True(t, mustEdge(t, d, "loop-END", "after").Executed)

	assert.Equal(t, []string{"b1", "b2", "b3"}, d.LoopTaskIDs("loop"))
}

func TestOverlay_DoWhileRetryHistory(t *testing.T) {
	exec := execution(schema.WorkflowStatusCompleted,
		iteration(rec("loop", "loop", schema.TaskTypeDoWhile, schema.TaskStatusCompleted, ""), 1),
		iteration(rec("b1", "body", schema.TaskTypeSimple, schema.TaskStatusFailed, "loop"), 1),
		iteration(rec("b2", "body", schema.TaskTypeSimple, schema.TaskStatusCompleted, "loop"), 1),
	)
	d := mustBuild(t, definition(loop("loop", simple("body"))), exec)

	all := d.AllResults("body")
	require.Len(t, all, 2)
	assert.Equal(t, schema.TaskStatusFailed, all[0].Status)
	assert.Equal(t, schema.TaskStatusCompleted, all[1].Status)
	assert.Equal(t, "b2", d.LastResult("body").TaskID)

	// Every attempt is tallied, the failed one included.
	node := mustNode(t, d, "loop"+LoopPlaceholderSuffix)
	assert.Equal(t, graph.Tally{Total: 2, Success: 1, Failed: 1, Iterations: 1}, *node.Tally)
	assert.Equal(t, schema.TaskStatusCompleted, node.Status)
}

func TestOverlay_DoWhileTallyCountsNestedBody(t *testing.T) {
	def := definition(loop("loop", switchTask("sw", tasks(simple("d1")), kase{"x", tasks(simple("x1"))})))
	exec := execution(schema.WorkflowStatusRunning,
		iteration(rec("loop", "loop", schema.TaskTypeDoWhile, schema.TaskStatusInProgress, ""), 2),
		iteration(rec("s1", "sw", schema.TaskTypeSwitch, schema.TaskStatusCompleted, "loop"), 1),
		iteration(rec("d", "d1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "sw"), 1),
		iteration(rec("s2", "sw", schema.TaskTypeSwitch, schema.TaskStatusCompleted, "loop"), 2),
		iteration(rec("x", "x1", schema.TaskTypeSimple, schema.TaskStatusInProgress, "sw"), 2),
	)
	d := mustBuild(t, def, exec)

	node := mustNode(t, d, "loop"+LoopPlaceholderSuffix)
	assert.Equal(t, schema.TaskStatusInProgress, node.Status)
	assert.Equal(t, graph.Tally{Total: 4, Success: 3, InProgress: 1, Iterations: 2}, *node.Tally)
	assert.Equal(t, []string{"sw", "d1", "x1"}, node.Contains)
	assert.False(t, mustNode(t, d, FinalRef).Executed())
}

func TestOverlay_UnknownParentIsInvalidState(t *testing.T) {
	exec := execution(schema.WorkflowStatusRunning,
		rec("a", "a", schema.TaskTypeSimple, schema.TaskStatusCompleted, "ghost"))
	_, err := NewFromExecution(definition(simple("a")), exec)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidState, schema.ErrorCode(err))
}

func TestOverlay_StrictOrder(t *testing.T) {
	exec := execution(schema.WorkflowStatusCompleted,
		rec("x", "x1", schema.TaskTypeSimple, schema.TaskStatusCompleted, "route"),
		rec("s", "route", schema.TaskTypeSwitch, schema.TaskStatusCompleted, ""),
	)
	def := definition(switchTask("route", nil, kase{"x", tasks(simple("x1"))}))

	_, err := NewFromExecution(def, exec)
	require.NoError(t, err)

	_, err = NewFromExecution(def, exec, WithStrictOrder(true))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeInvalidState, schema.ErrorCode(err))
}

func TestOverlay_UsesEmbeddedDefinition(t *testing.T) {
	exec := execution(schema.WorkflowStatusCompleted,
		rec("t1", "only", schema.TaskTypeSimple, schema.TaskStatusCompleted, ""))
	exec.WorkflowDefinition = definition(simple("only"))

	d := mustBuild(t, nil, exec)
	assert.True(t, d.HasExecution())
	assert.Equal(t, schema.TaskStatusCompleted, mustNode(t, d, "only").Status)

	_, err := NewFromExecution(nil, nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestOverlay_IdempotentBuilds(t *testing.T) {
	ok := schema.TaskStatusCompleted
	def := definition(
		simple("prep"),
		dynFork("dynamic_fork"), join("dynamic_fork_join"),
		switchTask("route", tasks(simple("d1")), kase{"x", tasks(simple("x1"))}),
		loop("loop", simple("body")),
	)
	exec := dynamicForkExecution(schema.WorkflowStatusRunning, ok, ok, ok, ok)
	exec.Tasks = append([]schema.TaskResult{rec("p", "prep", schema.TaskTypeSimple, ok, "")}, exec.Tasks...)
	exec.Tasks = append(exec.Tasks,
		rec("s", "route", schema.TaskTypeSwitch, ok, ""),
		rec("x", "x1", schema.TaskTypeSimple, ok, "route"),
		rec("l", "loop", schema.TaskTypeDoWhile, schema.TaskStatusInProgress, ""),
		rec("b", "body", schema.TaskTypeSimple, schema.TaskStatusInProgress, "loop"),
	)

	first, err := json.Marshal(mustBuild(t, def, exec).Graph())
	require.NoError(t, err)
	second, err := json.Marshal(mustBuild(t, def, exec).Graph())
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))

	// Inputs are not modified by a build.
	assert.Len(t, exec.Tasks, 10)
	assert.Equal(t, []string{"x"}, def.Tasks[3].CaseKeys())
	branch, found := def.Tasks[3].Case("x")
	require.True(t, found)
	assert.Equal(t, "x1", branch[0].Ref())
}
