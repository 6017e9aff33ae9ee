package panel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/diagram"
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/store"
	"github.com/rendis/wfgraph/pkg/schema"
)

// definitionFor returns the definition an execution was run against: the
// embedded one, else the cached name/version.
func (s *PanelServer) definitionFor(ctx context.Context, exec *schema.Execution) (*schema.WorkflowDefinition, error) {
	if exec.WorkflowDefinition != nil {
		return exec.WorkflowDefinition, nil
	}
	if exec.WorkflowName == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidState,
			"execution %s names no workflow and embeds no definition", exec.WorkflowID)
	}
	rec, err := s.deps.Store.GetDefinition(ctx, exec.WorkflowName, exec.WorkflowVersion)
	if err != nil {
		s.storeFailed(ctx, "get definition", err)
		return nil, fmt.Errorf("definition of execution %s: %w", exec.WorkflowID, err)
	}
	return rec.Definition, nil
}

// loadExecution loads a cached execution and builds its overlay graph.
func (s *PanelServer) loadExecution(ctx context.Context, id string) (*dag.WorkflowDAG, *schema.Execution, error) {
	rec, err := s.deps.Store.GetExecution(ctx, id)
	if err != nil {
		s.storeFailed(ctx, "get execution", err)
		return nil, nil, err
	}
	def, err := s.definitionFor(ctx, rec.Execution)
	if err != nil {
		return nil, nil, err
	}
	d, err := s.buildDAG(def, rec.Execution)
	if err != nil {
		return nil, nil, err
	}
	return d, rec.Execution, nil
}

// handleCreateExecution validates and caches an execution. An execution
// without a workflowId is assigned one.
func (s *PanelServer) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var exec schema.Execution
	if err := decodeBody(r, &exec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if exec.WorkflowID == "" {
		exec.WorkflowID = uuid.NewString()
	}
	ctx = logging.WithGraph(ctx, exec.WorkflowName, exec.WorkflowID)

	// A missing definition only weakens the record checks.
	def, _ := s.definitionFor(ctx, &exec)
	result := s.deps.Validator.ValidateRecords(def, &exec)
	if !result.Valid() {
		writeValidation(w, result)
		return
	}

	rec := &store.ExecutionRecord{Execution: &exec}
	if err := s.deps.Store.PutExecution(ctx, rec); err != nil {
		s.storeFailed(ctx, "put execution", err)
		writeGraphError(w, err)
		return
	}

	logging.LogWith(ctx, s.deps.Logger).Info("execution cached",
		"status", rec.Status, "records", len(exec.Tasks))
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       rec.ID,
		"status":   rec.Status,
		"warnings": result.Warnings,
	})
}

// handleExecutionGraph returns the overlay graph of a cached execution.
func (s *PanelServer) handleExecutionGraph(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.loadExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Graph())
}

// handleExecutionTasks lists records, optionally filtered by a CEL predicate
// over `task` and `workflow` and projected through a jq expression.
func (s *PanelServer) handleExecutionTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, exec, err := s.loadExecution(ctx, r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}

	filter := r.URL.Query().Get("filter")
	projection := r.URL.Query().Get("jq")
	if filter != "" {
		if err := s.deps.Engines.CEL.Compile(filter); err != nil {
			writeGraphError(w, err)
			return
		}
	}
	if projection != "" {
		if err := s.deps.Engines.JQ.Compile(projection); err != nil {
			writeGraphError(w, err)
			return
		}
	}

	workflow := map[string]any{
		"workflowId":      exec.WorkflowID,
		"workflowName":    exec.WorkflowName,
		"workflowVersion": int64(exec.WorkflowVersion),
		"status":          string(exec.Status),
	}

	out := []any{}
	for _, res := range d.Results() {
		data, err := expressions.RecordData(res)
		if err != nil {
			writeGraphError(w, err)
			return
		}
		if filter != "" {
			ok, err := s.deps.Engines.CEL.Matches(ctx, filter, map[string]any{"task": data, "workflow": workflow})
			if err != nil {
				writeGraphError(w, err)
				return
			}
			if !ok {
				continue
			}
		}
		if projection == "" {
			out = append(out, res)
			continue
		}
		projected, err := s.deps.Engines.JQ.Evaluate(ctx, projection, data)
		if err != nil {
			writeGraphError(w, err)
			return
		}
		out = append(out, projected)
	}

	writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "count": len(out)})
}

// handleExecutionTask returns the current record of a task, its retry
// history and its configuration.
func (s *PanelServer) handleExecutionTask(w http.ResponseWriter, r *http.Request) {
	c, err := coordinate(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	d, _, err := s.loadExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}

	result, err := d.ResultFor(c)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	ref := c.Ref
	if result != nil {
		ref = result.Ref()
	}
	config := d.TaskConfig(ref)
	if result == nil && config == nil {
		writeGraphError(w, schema.NewErrorf(schema.ErrCodeNotFound, "task %s not found", ref).WithTask(ref))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":  result,
		"results": d.AllResults(ref),
		"config":  config,
	})
}

// handleResolve returns the node that shows a task: its own or the
// placeholder that collapsed it.
func (s *PanelServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	c, err := coordinate(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	d, _, err := s.loadExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	ref, err := d.ResolveVisibleRef(c)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"visibleRef": ref})
}

// handleSiblings returns the records sharing a task's dynamic fork or loop.
func (s *PanelServer) handleSiblings(w http.ResponseWriter, r *http.Request) {
	c, err := coordinate(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	d, _, err := s.loadExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}

	var siblings []*schema.TaskResult
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "fork":
		siblings, err = d.DynamicForkSiblings(c)
	case "loop":
		siblings, err = d.LoopSiblings(c)
	default:
		err = schema.NewErrorf(schema.ErrCodeValidation, "unknown sibling kind %q", kind)
	}
	if err != nil {
		writeGraphError(w, err)
		return
	}
	if siblings == nil {
		siblings = []*schema.TaskResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"siblings": siblings})
}

// handleDiagram renders an execution as ASCII, Mermaid, PNG or SVG.
func (s *PanelServer) handleDiagram(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.loadExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	model := diagram.Build(d)

	switch format := r.URL.Query().Get("format"); format {
	case "", "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderASCII(model))
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderMermaid(model))
	case "image", "png", "svg":
		render, contentType := diagram.RenderImage, "image/png"
		if format == "svg" {
			render, contentType = diagram.RenderSVG, "image/svg+xml"
		}
		data, err := render(model)
		if err != nil {
			logging.LogWith(r.Context(), s.deps.Logger).Error("render diagram", "format", format, "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("render %s: %v", format, err))
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
	}
}
