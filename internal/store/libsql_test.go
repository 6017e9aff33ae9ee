package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/wfgraph/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func testDefinition(name string, version int) *schema.WorkflowDefinition {
	sw := schema.TaskConfig{
		Name:              "route",
		TaskReferenceName: "route",
		Type:              schema.TaskTypeSwitch,
		EvaluatorType:     "value-param",
		Expression:        "kind",
	}
	sw.SetCase("b", []schema.TaskConfig{{Name: "b", TaskReferenceName: "b", Type: schema.TaskTypeSimple}})
	sw.SetCase("a", []schema.TaskConfig{{Name: "a", TaskReferenceName: "a", Type: schema.TaskTypeSimple}})
	return &schema.WorkflowDefinition{
		Name:        name,
		Version:     version,
		Description: "test workflow",
		Tasks: []schema.TaskConfig{
			{Name: "fetch", TaskReferenceName: "fetch", Type: schema.TaskTypeHTTP},
			sw,
		},
	}
}

func testExecution(id, name string, status schema.WorkflowStatus) *schema.Execution {
	return &schema.Execution{
		WorkflowID:      id,
		WorkflowName:    name,
		WorkflowVersion: 1,
		Status:          status,
		Tasks: []schema.TaskResult{
			{TaskID: "t1", ReferenceTaskName: "fetch", TaskType: schema.TaskTypeHTTP, Status: schema.TaskStatusCompleted},
			{TaskID: "t2", ReferenceTaskName: "route", TaskType: schema.TaskTypeSwitch, Status: schema.TaskStatusCompleted},
			{TaskID: "t3", ReferenceTaskName: "a", TaskType: schema.TaskTypeSimple, Status: schema.TaskStatusInProgress, ParentTaskReferenceName: "route"},
		},
	}
}

// --- Definition Tests ---

func TestPutAndGetDefinition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &DefinitionRecord{Definition: testDefinition("orders", 1)}
	require.NoError(t, s.PutDefinition(ctx, rec))
	assert.Equal(t, "orders", rec.Name)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "test workflow", rec.Description)

	got, err := s.GetDefinition(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Name)
	require.Len(t, got.Definition.Tasks, 2)
	assert.Equal(t, []string{"b", "a"}, got.Definition.Tasks[1].CaseKeys(), "case order survives storage")
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetDefinition_Latest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, v := range []int{1, 3, 2} {
		require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: testDefinition("orders", v)}))
	}

	got, err := s.GetDefinition(ctx, "orders", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
}

func TestPutDefinition_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def := testDefinition("orders", 1)
	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: def}))

	def.Tasks = def.Tasks[:1]
	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: def}))

	got, err := s.GetDefinition(ctx, "orders", 1)
	require.NoError(t, err)
	assert.Len(t, got.Definition.Tasks, 1)

	all, err := s.ListDefinitions(ctx, DefinitionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPutDefinition_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.PutDefinition(ctx, &DefinitionRecord{})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))

	err = s.PutDefinition(ctx, &DefinitionRecord{Definition: &schema.WorkflowDefinition{}})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGetDefinition_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDefinition(context.Background(), "nope", 1)
	require.Error(t, err)
	ge, ok := err.(*schema.GraphError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, ge.Code)
}

func TestListDefinitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: testDefinition("b_flow", 1)}))
	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: testDefinition("a_flow", 1)}))
	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: testDefinition("a_flow", 2)}))

	all, err := s.ListDefinitions(ctx, DefinitionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a_flow", all[0].Name)
	assert.Equal(t, 2, all[0].Version)
	assert.Equal(t, "b_flow", all[2].Name)

	named, err := s.ListDefinitions(ctx, DefinitionFilter{Name: "a_flow", Limit: 1})
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, 2, named[0].Version)
}

func TestDeleteDefinition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutDefinition(ctx, &DefinitionRecord{Definition: testDefinition("orders", 1)}))
	require.NoError(t, s.DeleteDefinition(ctx, "orders", 1))

	err := s.DeleteDefinition(ctx, "orders", 1)
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

// --- Execution Tests ---

func TestPutAndGetExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &ExecutionRecord{Execution: testExecution("wf-1", "orders", schema.WorkflowStatusRunning)}
	require.NoError(t, s.PutExecution(ctx, rec))
	assert.Equal(t, "wf-1", rec.ID)
	assert.Equal(t, "orders", rec.WorkflowName)
	assert.Equal(t, schema.WorkflowStatusRunning, rec.Status)

	got, err := s.GetExecution(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.WorkflowName)
	assert.Equal(t, 1, got.WorkflowVersion)
	require.Len(t, got.Execution.Tasks, 3)
	assert.Equal(t, "route", got.Execution.Tasks[2].ParentTaskReferenceName, "record order and parents survive storage")
}

func TestPutExecution_AssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &ExecutionRecord{Execution: testExecution("", "orders", schema.WorkflowStatusRunning)}
	require.NoError(t, s.PutExecution(ctx, rec))
	require.NotEmpty(t, rec.ID)
	assert.Equal(t, rec.ID, rec.Execution.WorkflowID)

	_, err := s.GetExecution(ctx, rec.ID)
	assert.NoError(t, err)

	err = s.PutExecution(ctx, &ExecutionRecord{})
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestPutExecution_UpdateKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exec := testExecution("wf-1", "orders", schema.WorkflowStatusRunning)
	first := &ExecutionRecord{Execution: exec}
	require.NoError(t, s.PutExecution(ctx, first))

	exec.Status = schema.WorkflowStatusCompleted
	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: exec}))

	got, err := s.GetExecution(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowStatusCompleted, got.Status)
	assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Second)
}

func TestListExecutions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e1", "orders", schema.WorkflowStatusRunning)}))
	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e2", "orders", schema.WorkflowStatusFailed)}))
	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e3", "billing", schema.WorkflowStatusRunning)}))

	all, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	orders, err := s.ListExecutions(ctx, ExecutionFilter{WorkflowName: "orders"})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	running := schema.WorkflowStatusRunning
	got, err := s.ListExecutions(ctx, ExecutionFilter{Status: &running})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	page, err := s.ListExecutions(ctx, ExecutionFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	future := time.Now().Add(time.Hour)
	none, err := s.ListExecutions(ctx, ExecutionFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteExecution(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e1", "orders", schema.WorkflowStatusRunning)}))
	require.NoError(t, s.DeleteExecution(ctx, "e1"))

	_, err := s.GetExecution(ctx, "e1")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(s.DeleteExecution(ctx, "e1")))
}

func TestDeleteExecutionsBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e1", "orders", schema.WorkflowStatusCompleted)}))
	require.NoError(t, s.PutExecution(ctx, &ExecutionRecord{Execution: testExecution("e2", "orders", schema.WorkflowStatusCompleted)}))

	n, err := s.DeleteExecutionsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.DeleteExecutionsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	all, err := s.ListExecutions(ctx, ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// --- Maintenance ---

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Vacuum(context.Background()))
}
