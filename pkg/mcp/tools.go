package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/diagram"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/pkg/schema"
)

// handleBuild returns the graph JSON of a definition or execution.
func (s *GraphServer) handleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	d, err := s.buildFromRequest(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	logging.LogWith(ctx, s.logger).Debug("graph built", "nodes", d.Graph().NodeCount())

	return marshalResult(map[string]any{
		"graph":  d.Graph(),
		"levels": d.Graph().Levels(),
	})
}

// handleDiagram renders the graph in the requested format.
func (s *GraphServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}

	ctx = logging.WithRequestID(ctx, uuid.NewString())
	d, err := s.buildFromRequest(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	model := diagram.Build(d)

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	}
}

// handleResolve maps a task coordinate to its visible node, record and
// siblings.
func (s *GraphServer) handleResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	coord := dag.TaskCoordinate{
		ID:  req.GetString("task_id", ""),
		Ref: req.GetString("ref", ""),
	}
	if coord.ID == "" && coord.Ref == "" {
		return mcp.NewToolResultError("task_id or ref is required"), nil
	}

	ctx = logging.WithRequestID(ctx, uuid.NewString())
	d, err := s.buildFromRequest(ctx, req)
	if err != nil {
		return toolError(err), nil
	}
	if !d.HasExecution() {
		return mcp.NewToolResultError("resolve needs an execution or execution_id"), nil
	}

	visible, err := d.ResolveVisibleRef(coord)
	if err != nil {
		return toolError(err), nil
	}
	result, err := d.ResultFor(coord)
	if err != nil {
		return toolError(err), nil
	}
	forkSiblings, err := d.DynamicForkSiblings(coord)
	if err != nil {
		return toolError(err), nil
	}
	loopSiblings, err := d.LoopSiblings(coord)
	if err != nil {
		return toolError(err), nil
	}

	return marshalResult(map[string]any{
		"visibleRef":   visible,
		"result":       result,
		"forkSiblings": len(forkSiblings),
		"loopSiblings": len(loopSiblings),
	})
}

// handleValidate runs the validation pipeline and returns every issue.
func (s *GraphServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var def schema.WorkflowDefinition
	ok, err := decodeArg(req, "definition", &def)
	if err != nil {
		return toolError(err), nil
	}
	if !ok {
		return mcp.NewToolResultError("definition is required"), nil
	}

	result := s.validator.Validate(&def)

	var exec schema.Execution
	hasExec, err := decodeArg(req, "execution", &exec)
	if err != nil {
		return toolError(err), nil
	}
	if hasExec {
		result.Merge(s.validator.ValidateRecords(&def, &exec))
	}

	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// --- Helpers ---

// buildFromRequest resolves the definition and optional execution named by
// the request (inline or cached) and builds the graph.
func (s *GraphServer) buildFromRequest(ctx context.Context, req mcp.CallToolRequest) (*dag.WorkflowDAG, error) {
	def, exec, err := s.loadSources(ctx, req)
	if err != nil {
		return nil, err
	}
	if exec != nil {
		return dag.NewFromExecution(def, exec, s.dagOptions...)
	}
	return dag.NewFromDefinition(def, s.dagOptions...)
}

func (s *GraphServer) loadSources(ctx context.Context, req mcp.CallToolRequest) (*schema.WorkflowDefinition, *schema.Execution, error) {
	var exec *schema.Execution
	if id := req.GetString("execution_id", ""); id != "" {
		if s.store == nil {
			return nil, nil, schema.NewError(schema.ErrCodeInvalidState, "execution_id needs a store; pass the execution inline")
		}
		rec, err := s.store.GetExecution(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		exec = rec.Execution
	} else {
		var inline schema.Execution
		ok, err := decodeArg(req, "execution", &inline)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			exec = &inline
		}
	}

	var def *schema.WorkflowDefinition
	var inline schema.WorkflowDefinition
	ok, err := decodeArg(req, "definition", &inline)
	if err != nil {
		return nil, nil, err
	}
	name, version := req.GetString("definition_name", ""), req.GetInt("version", 0)
	switch {
	case ok:
		def = &inline
	case exec != nil && exec.WorkflowDefinition != nil:
		def = exec.WorkflowDefinition
	case name == "" && exec != nil:
		name, version = exec.WorkflowName, exec.WorkflowVersion
	}

	if def == nil {
		if name == "" {
			return nil, nil, schema.NewError(schema.ErrCodeValidation, "a definition, definition_name, execution or execution_id is required")
		}
		if s.store == nil {
			return nil, nil, schema.NewErrorf(schema.ErrCodeInvalidState, "definition %s is not inline and no store is configured", name)
		}
		rec, err := s.store.GetDefinition(ctx, name, version)
		if err != nil {
			return nil, nil, err
		}
		def = rec.Definition
	}

	if exec != nil {
		ctx = logging.WithGraph(ctx, def.Name, exec.WorkflowID)
	}
	logging.LogWith(ctx, s.logger).Debug("graph sources loaded", "definition", def.Name, "execution", exec != nil)
	return def, exec, nil
}

// decodeArg decodes an object argument into target by a JSON round trip.
// It reports false when the argument is absent.
func decodeArg(req mcp.CallToolRequest, key string, target any) (bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "%s: %v", key, err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, schema.NewErrorf(schema.ErrCodeValidation, "%s is not a valid document: %v", key, err)
	}
	return true, nil
}

// toolError converts an error into an error tool result carrying its code.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
