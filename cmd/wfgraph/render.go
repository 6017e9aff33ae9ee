package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/diagram"
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/internal/logging"
	"github.com/rendis/wfgraph/internal/validation"
	"github.com/rendis/wfgraph/pkg/schema"
)

func (a *app) renderCmd() *cobra.Command {
	var defPath, execPath, format, output string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a workflow graph as ASCII, Mermaid, PNG, SVG or JSON",
		Example: `  # Definition-only graph as ASCII
  wfgraph render --definition order.yaml

  # Execution overlay as PNG
  wfgraph render --definition order.json --execution run.json --format image --output run.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.buildGraph(defPath, execPath)
			if err != nil {
				return err
			}
			data, err := renderGraph(d, format, binDir())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			a.logger.Info("diagram written", "path", output, "format", format, "bytes", len(data))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&defPath, "definition", "d", "", "workflow definition file (.json, .yaml)")
	f.StringVarP(&execPath, "execution", "e", "", "execution file to overlay (.json, .yaml)")
	f.StringVarP(&format, "format", "f", "ascii", "output format: ascii, mermaid, image, svg, json")
	f.StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var execPath string

	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Validate a workflow definition and, optionally, an execution against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := loadDefinition(args[0])
			if err != nil {
				return err
			}
			v, err := newValidator()
			if err != nil {
				return err
			}
			result := v.Validate(def)
			if execPath != "" {
				exec, err := loadExecution(execPath)
				if err != nil {
					return err
				}
				result.Merge(v.ValidateRecords(def, exec))
			}

			printIssues(cmd.OutOrStdout(), result)
			if !result.Valid() {
				return fmt.Errorf("%s: %d error(s)", args[0], len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&execPath, "execution", "e", "", "execution file to check against the definition")
	return cmd
}

func newValidator() (*validation.WorkflowValidator, error) {
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, err
	}
	return validation.NewWorkflowValidator(engines)
}

// buildGraph loads, validates and builds the graph of a definition, or of an
// execution overlaid on it. The definition may come from the execution.
func (a *app) buildGraph(defPath, execPath string) (*dag.WorkflowDAG, error) {
	var (
		def  *schema.WorkflowDefinition
		exec *schema.Execution
		err  error
	)
	if execPath != "" {
		if exec, err = loadExecution(execPath); err != nil {
			return nil, err
		}
	}
	switch {
	case defPath != "":
		if def, err = loadDefinition(defPath); err != nil {
			return nil, err
		}
	case exec != nil && exec.WorkflowDefinition != nil:
		def = exec.WorkflowDefinition
	default:
		return nil, errors.New("--definition is required unless the execution embeds its workflowDefinition")
	}

	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	result := v.Validate(def)
	if exec != nil && result.Valid() {
		result.Merge(v.ValidateRecords(def, exec))
	}
	for _, w := range result.Warnings {
		a.logger.Warn("validation warning", "path", w.Path, "task_ref", w.TaskRef, "message", w.Message)
	}
	if err := result.ToError(); err != nil {
		return nil, err
	}

	logger := logging.LogWith(logging.WithWorkflow(context.Background(), def.Name), a.logger)
	if exec != nil {
		logger.Debug("building execution graph", "execution_id", exec.WorkflowID, "records", len(exec.Tasks))
		return dag.NewFromExecution(def, exec, a.cfg.dagOptions()...)
	}
	logger.Debug("building definition graph", "tasks", len(def.Tasks))
	return dag.NewFromDefinition(def, a.cfg.dagOptions()...)
}

// renderGraph renders d in format. ASCII prefers the mermaid-ascii binary in
// bin when installed.
func renderGraph(d *dag.WorkflowDAG, format, bin string) ([]byte, error) {
	if format == "json" {
		data, err := json.MarshalIndent(d.Graph(), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}

	model := diagram.Build(d)
	switch format {
	case "", "ascii":
		return []byte(diagram.RenderASCIIAuto(model, bin)), nil
	case "mermaid":
		return []byte(diagram.RenderMermaid(model)), nil
	case "image", "png":
		return diagram.RenderImage(model)
	case "svg":
		return diagram.RenderSVG(model)
	}
	return nil, fmt.Errorf("unknown format %q (want ascii, mermaid, image, svg or json)", format)
}

func printIssues(w io.Writer, result *schema.ValidationResult) {
	for _, e := range result.Errors {
		fmt.Fprintf(w, "error    %s: %s\n", issueLocation(e), e.Message)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "warning  %s: %s\n", issueLocation(warn), warn.Message)
	}
	if result.Valid() {
		fmt.Fprintf(w, "valid (%d warning(s))\n", len(result.Warnings))
	}
}

func issueLocation(issue schema.ValidationIssue) string {
	if issue.TaskRef != "" {
		return issue.Path + " [" + issue.TaskRef + "]"
	}
	return issue.Path
}
