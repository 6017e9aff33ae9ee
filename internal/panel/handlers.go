package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/store"
	"github.com/rendis/wfgraph/pkg/schema"
)

// Editor operations accepted by POST /api/definitions/edit.
const (
	OpInsertAfter      = "insert_after"
	OpDelete           = "delete"
	OpAddForkBranch    = "add_fork_branch"
	OpRemoveForkBranch = "remove_fork_branch"
	OpAddSwitchCase    = "add_switch_case"
	OpAddLoopBody      = "add_loop_body"
)

// buildDAG builds a graph and records the build. exec may be nil.
func (s *PanelServer) buildDAG(def *schema.WorkflowDefinition, exec *schema.Execution) (*dag.WorkflowDAG, error) {
	var (
		d    *dag.WorkflowDAG
		err  error
		mode = "definition"
	)
	if exec != nil {
		mode = "execution"
		d, err = dag.NewFromExecution(def, exec, s.deps.DAGOptions...)
	} else {
		d, err = dag.NewFromDefinition(def, s.deps.DAGOptions...)
	}

	nodes := 0
	if err == nil {
		nodes = d.Graph().NodeCount()
	}
	s.deps.Metrics.observeBuild(mode, nodes, err)
	return d, err
}

// storeFailed counts store errors other than misses.
func (s *PanelServer) storeFailed(ctx context.Context, op string, err error) {
	if schema.ErrorCode(err) == schema.ErrCodeNotFound {
		return
	}
	s.deps.Metrics.storeErrors.Inc()
	logging.LogWith(ctx, s.deps.Logger).Error("store operation failed", "op", op, "error", err)
}

// handleBuildGraph builds a graph from an inline definition and optional
// execution without touching the store.
func (s *PanelServer) handleBuildGraph(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Definition *schema.WorkflowDefinition `json:"definition"`
		Execution  *schema.Execution          `json:"execution"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Definition == nil && body.Execution != nil {
		body.Definition = body.Execution.WorkflowDefinition
	}
	if body.Definition == nil {
		writeError(w, http.StatusBadRequest, "definition is required")
		return
	}

	if result := s.deps.Validator.Validate(body.Definition); !result.Valid() {
		writeValidation(w, result)
		return
	}
	if body.Execution != nil {
		if result := s.deps.Validator.ValidateRecords(body.Definition, body.Execution); !result.Valid() {
			writeValidation(w, result)
			return
		}
	}

	d, err := s.buildDAG(body.Definition, body.Execution)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Graph())
}

// handleListDefinitions lists cached definitions, latest version first per name.
func (s *PanelServer) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := store.DefinitionFilter{
		Name:  r.URL.Query().Get("name"),
		Limit: queryInt(r, "limit", 100),
	}
	recs, err := s.deps.Store.ListDefinitions(ctx, filter)
	if err != nil {
		s.storeFailed(ctx, "list definitions", err)
		writeGraphError(w, err)
		return
	}
	if recs == nil {
		recs = []*store.DefinitionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"definitions": recs})
}

// handleCreateDefinition validates and caches a definition document.
func (s *PanelServer) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if result := s.deps.Validator.ValidateDefinitionJSON(raw); !result.Valid() {
		writeValidation(w, result)
		return
	}

	var def schema.WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	result := s.deps.Validator.Validate(&def)
	if !result.Valid() {
		writeValidation(w, result)
		return
	}

	rec := &store.DefinitionRecord{Definition: &def}
	if err := s.deps.Store.PutDefinition(ctx, rec); err != nil {
		s.storeFailed(ctx, "put definition", err)
		writeGraphError(w, err)
		return
	}

	logging.LogWith(logging.WithWorkflow(ctx, rec.Name), s.deps.Logger).
		Info("definition cached", "version", rec.Version)
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":     rec.Name,
		"version":  rec.Version,
		"warnings": result.Warnings,
	})
}

// handleDefinitionGraph returns the definition-only graph of a cached
// definition. Version 0 or "latest" selects the newest version.
func (s *PanelServer) handleDefinitionGraph(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	version := 0
	if v := r.PathValue("version"); v != "latest" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid version %q", v))
			return
		}
		version = n
	}

	rec, err := s.deps.Store.GetDefinition(ctx, name, version)
	if err != nil {
		s.storeFailed(ctx, "get definition", err)
		writeGraphError(w, err)
		return
	}
	d, err := s.buildDAG(rec.Definition, nil)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Graph())
}

// handleDefinitionEdits returns the edit history of a definition.
func (s *PanelServer) handleDefinitionEdits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	edits, err := s.editLog.History(ctx, r.PathValue("name"))
	if err != nil {
		s.storeFailed(ctx, "edit history", err)
		writeGraphError(w, err)
		return
	}
	if edits == nil {
		edits = []*store.EditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"edits": edits})
}

// editRequest is one structural edit of a cached definition.
type editRequest struct {
	Name      string             `json:"name"`
	Version   int                `json:"version,omitempty"` // 0 = latest
	Operation string             `json:"operation"`
	Ref       string             `json:"ref"`
	Task      *schema.TaskConfig `json:"task,omitempty"`
	CaseValue string             `json:"caseValue,omitempty"`
	Branch    int                `json:"branch,omitempty"`
}

// applyEdit dispatches one editor operation.
func applyEdit(e *dag.Editor, req *editRequest) (*schema.WorkflowDefinition, error) {
	needTask := func() (schema.TaskConfig, error) {
		if req.Task == nil {
			return schema.TaskConfig{}, schema.NewErrorf(schema.ErrCodeValidation, "%s requires a task", req.Operation)
		}
		return *req.Task, nil
	}

	switch req.Operation {
	case OpDelete:
		return e.Delete(req.Ref)
	case OpRemoveForkBranch:
		return e.RemoveForkBranch(req.Ref, req.Branch)
	case OpInsertAfter, OpAddForkBranch, OpAddSwitchCase, OpAddLoopBody:
		task, err := needTask()
		if err != nil {
			return nil, err
		}
		switch req.Operation {
		case OpInsertAfter:
			return e.InsertAfter(req.Ref, task)
		case OpAddForkBranch:
			return e.AddForkBranch(req.Ref, task)
		case OpAddSwitchCase:
			return e.AddSwitchCase(req.Ref, req.CaseValue, task)
		default:
			return e.AddLoopBody(req.Ref, task)
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown edit operation %q", req.Operation)
	}
}

// handleEditDefinition applies one editor operation to a cached definition,
// stores the result as the next version and records the edit.
func (s *PanelServer) handleEditDefinition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req editRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Name == "" || req.Operation == "" {
		writeError(w, http.StatusBadRequest, "name and operation are required")
		return
	}
	ctx = logging.WithTaskRef(logging.WithWorkflow(ctx, req.Name), req.Ref)

	base, err := s.deps.Store.GetDefinition(ctx, req.Name, req.Version)
	if err != nil {
		s.storeFailed(ctx, "get definition", err)
		writeGraphError(w, err)
		return
	}
	latest, err := s.deps.Store.GetDefinition(ctx, req.Name, 0)
	if err != nil {
		s.storeFailed(ctx, "get definition", err)
		writeGraphError(w, err)
		return
	}

	editor, err := dag.NewEditor(base.Definition)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	edited, err := applyEdit(editor, &req)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	edited.Version = latest.Version + 1

	rec := &store.DefinitionRecord{Definition: edited}
	if err := s.deps.Store.PutDefinition(ctx, rec); err != nil {
		s.storeFailed(ctx, "put definition", err)
		writeGraphError(w, err)
		return
	}
	edit := &store.EditEvent{
		DefinitionName: req.Name,
		Operation:      req.Operation,
		TaskRef:        req.Ref,
		FromVersion:    base.Version,
		ToVersion:      rec.Version,
		Payload:        raw,
	}
	if err := s.deps.Store.AppendEdit(ctx, edit); err != nil {
		s.storeFailed(ctx, "append edit", err)
		writeGraphError(w, err)
		return
	}

	logging.LogWith(ctx, s.deps.Logger).Info("definition edited",
		"operation", req.Operation, "from_version", base.Version, "to_version", rec.Version)
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       rec.Name,
		"version":    rec.Version,
		"sequence":   edit.Sequence,
		"definition": edited,
	})
}

// switchTask finds a switch of a cached definition by reference name.
func (s *PanelServer) switchTask(ctx context.Context, name string, version int, ref string) (*schema.TaskConfig, error) {
	rec, err := s.deps.Store.GetDefinition(ctx, name, version)
	if err != nil {
		s.storeFailed(ctx, "get definition", err)
		return nil, err
	}
	var found *schema.TaskConfig
	schema.WalkTasks(rec.Definition.Tasks, func(t *schema.TaskConfig) bool {
		if t.Ref() == ref {
			found = t
			return false
		}
		return true
	})
	if found == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "task %s not found in %s", ref, name).WithTask(ref)
	}
	return found, nil
}

// handlePreviewSwitch reports which branch a switch takes for a resolved
// input. The switch is given inline or by definition name and ref.
func (s *PanelServer) handlePreviewSwitch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Task    *schema.TaskConfig `json:"task"`
		Name    string             `json:"name"`
		Version int                `json:"version"`
		Ref     string             `json:"ref"`
		Input   map[string]any     `json:"input"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := body.Task
	if task == nil {
		if body.Name == "" || body.Ref == "" {
			writeError(w, http.StatusBadRequest, "task, or name and ref, is required")
			return
		}
		found, err := s.switchTask(ctx, body.Name, body.Version, body.Ref)
		if err != nil {
			writeGraphError(w, err)
			return
		}
		task = found
	}

	sel, err := s.deps.Engines.Expr.SelectCase(ctx, task, body.Input)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

// handleEvaluate runs one expression on one of the engines, for trying out
// filters, projections and scripts.
func (s *PanelServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Engine     string         `json:"engine"`
		Expression string         `json:"expression"`
		Data       map[string]any `json:"data"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine, err := s.deps.Engines.Lookup(body.Engine)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	out, err := engine.Evaluate(r.Context(), body.Expression, body.Data)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"engine": engine.Name(), "result": out})
}
