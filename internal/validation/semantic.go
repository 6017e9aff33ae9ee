package validation

import (
	"fmt"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/pkg/schema"
)

// visitFn is called for every task with its JSON path and the list that
// holds it.
type visitFn func(task *schema.TaskConfig, path string, list []schema.TaskConfig, index int)

// walk visits every task in document order with its JSON path.
func walk(list []schema.TaskConfig, path string, fn visitFn) {
	for i := range list {
		task := &list[i]
		taskPath := fmt.Sprintf("%s[%d]", path, i)
		fn(task, taskPath, list, i)

		for b, branch := range task.ForkTasks {
			walk(branch, fmt.Sprintf("%s.forkTasks[%d]", taskPath, b), fn)
		}
		walk(task.DefaultCase, taskPath+".defaultCase", fn)
		for _, key := range task.CaseKeys() {
			branch, _ := task.Case(key)
			walk(branch, fmt.Sprintf("%s.decisionCases.%s", taskPath, key), fn)
		}
		walk(task.LoopOver, taskPath+".loopOver", fn)
	}
}

// validateSemantic checks what the JSON Schema cannot: reference name
// uniqueness, fork/join pairing, joinOn and parameter references, and that
// embedded expressions compile.
// engines may be nil to skip expression checks.
func validateSemantic(def *schema.WorkflowDefinition, engines *expressions.Engines) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	refs := make(map[string]bool)
	walk(def.Tasks, "tasks", func(task *schema.TaskConfig, path string, _ []schema.TaskConfig, _ int) {
		ref := task.Ref()
		switch {
		case ref == "":
			result.AddError(path+".taskReferenceName", schema.ErrCodeValidation,
				fmt.Sprintf("task %q has empty taskReferenceName", task.Name))
		case ref == dag.StartRef || ref == dag.FinalRef:
			result.AddTaskError(path+".taskReferenceName", ref,
				fmt.Sprintf("reference name %s is reserved", ref))
		case refs[ref]:
			result.AddTaskError(path+".taskReferenceName", ref,
				fmt.Sprintf("duplicate task reference name: %s", ref))
		}
		refs[ref] = true
	})

	walk(def.Tasks, "tasks", func(task *schema.TaskConfig, path string, list []schema.TaskConfig, index int) {
		validateTask(task, path, list, index, refs, engines, result)
	})

	return result
}

func validateTask(task *schema.TaskConfig, path string, list []schema.TaskConfig, index int, refs map[string]bool, engines *expressions.Engines, result *schema.ValidationResult) {
	ref := task.Ref()

	switch task.Type.Kind() {
	case schema.KindFork, schema.KindDynamicFork:
		if index+1 >= len(list) || list[index+1].Type.Kind() != schema.KindJoin {
			result.AddTaskError(path, ref, fmt.Sprintf("fork %s must be immediately followed by a JOIN", ref))
		}
		if task.Type.Kind() == schema.KindDynamicFork && task.DynamicForkTasksParam == "" {
			result.AddTaskError(path+".dynamicForkTasksParam", ref, "dynamic fork requires dynamicForkTasksParam")
		}

	case schema.KindJoin:
		for j, on := range task.JoinOn {
			if !refs[on] {
				result.AddTaskError(fmt.Sprintf("%s.joinOn[%d]", path, j), ref,
					fmt.Sprintf("references non-existent task %q", on))
			}
		}

	case schema.KindSwitch:
		if task.Type == schema.TaskTypeSwitch && expressions.IsScriptEvaluator(task.EvaluatorType) {
			checkScript(engines, task.Expression, path+".expression", result)
		}
		if !task.HasCases() && len(task.DefaultCase) == 0 {
			result.AddWarning(path, schema.ErrCodeValidation,
				fmt.Sprintf("switch %s has no cases", ref))
		}

	case schema.KindDoWhile:
		if task.LoopCondition == "" {
			result.AddTaskError(path+".loopCondition", ref, "do-while requires loopCondition")
		} else {
			checkScript(engines, task.LoopCondition, path+".loopCondition", result)
		}
		walk(task.LoopOver, path+".loopOver", func(inner *schema.TaskConfig, innerPath string, _ []schema.TaskConfig, _ int) {
			if inner.Type.Kind() == schema.KindDoWhile {
				result.AddWarning(innerPath, schema.ErrCodeValidation,
					fmt.Sprintf("nested do-while %s inside %s", inner.Ref(), ref))
			}
		})
	}

	switch task.Type {
	case schema.TaskTypeJSONJQTransform:
		query, _ := task.InputParameters["queryExpression"].(string)
		if query == "" {
			result.AddTaskError(path+".inputParameters.queryExpression", ref, "JSON_JQ_TRANSFORM requires queryExpression")
		} else if engines != nil {
			if err := engines.JQ.Compile(query); err != nil {
				result.AddTaskError(path+".inputParameters.queryExpression", ref, err.Error())
			}
		}
	case schema.TaskTypeInline:
		evaluator, _ := task.InputParameters["evaluatorType"].(string)
		script, _ := task.InputParameters["expression"].(string)
		if script == "" {
			result.AddTaskError(path+".inputParameters.expression", ref, "INLINE requires an expression")
		} else if expressions.IsScriptEvaluator(evaluator) {
			checkScript(engines, script, path+".inputParameters.expression", result)
		}
	case schema.TaskTypeSubWorkflow:
		if task.SubWorkflowParam == nil || task.SubWorkflowParam.Name == "" {
			result.AddTaskError(path+".subWorkflowParam", ref, "SUB_WORKFLOW requires subWorkflowParam.name")
		}
	}

	for _, used := range expressions.ParamRefs(task.InputParameters) {
		if !refs[used] {
			result.AddWarning(path+".inputParameters", schema.ErrCodeValidation,
				fmt.Sprintf("parameter expression references unknown task %q", used))
		}
	}
}

// checkScript reports scripts outside the expression subset as warnings: the
// server runs full JavaScript, so a script that fails here may still be valid.
func checkScript(engines *expressions.Engines, script, path string, result *schema.ValidationResult) {
	if engines == nil {
		return
	}
	if err := engines.Expr.CompileScript(script); err != nil {
		result.AddWarning(path, schema.ErrCodeExpression, err.Error())
	}
}
