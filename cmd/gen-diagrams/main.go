// gen-diagrams generates sample diagram outputs for README documentation.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/wfgraph/internal/diagram"
	"github.com/rendis/wfgraph/pkg/schema"
)

func task(ref string, typ schema.TaskType) schema.TaskConfig {
	return schema.TaskConfig{Name: ref, TaskReferenceName: ref, Type: typ}
}

func record(id, ref string, typ schema.TaskType, status schema.TaskStatus, parent string, ms int64) schema.TaskResult {
	return schema.TaskResult{
		TaskID:                  id,
		ReferenceTaskName:       ref,
		TaskType:                typ,
		Status:                  status,
		ParentTaskReferenceName: parent,
		StartTime:               1_700_000_000_000,
		EndTime:                 1_700_000_000_000 + ms,
	}
}

// sampleDefinition: fetch → switch(in_stock?) → dynamic fork of shipments → join → poll loop.
func sampleDefinition() *schema.WorkflowDefinition {
	check := task("check_stock", schema.TaskTypeSwitch)
	check.EvaluatorType = "value-param"
	check.Expression = "stock"
	check.SetCase("in_stock", []schema.TaskConfig{task("process_payment", schema.TaskTypeHTTP)})
	check.SetCase("out_of_stock", []schema.TaskConfig{task("notify_restock", schema.TaskTypeHTTP)})

	ship := task("ship_items", schema.TaskTypeForkJoinDynamic)
	ship.DynamicForkTasksParam = "dynamicTasks"
	ship.DynamicForkTasksInputParamName = "dynamicTasksInput"

	poll := task("poll_carrier", schema.TaskTypeDoWhile)
	poll.LoopCondition = "$.poll_carrier['iteration'] < 3"
	poll.LoopOver = []schema.TaskConfig{task("track", schema.TaskTypeHTTP)}

	return &schema.WorkflowDefinition{
		Name:    "order_fulfillment",
		Version: 3,
		Tasks: []schema.TaskConfig{
			task("fetch_order", schema.TaskTypeHTTP),
			check,
			ship,
			task("ship_items_join", schema.TaskTypeJoin),
			poll,
		},
	}
}

func sampleExecution() *schema.Execution {
	records := []schema.TaskResult{
		record("t1", "fetch_order", schema.TaskTypeHTTP, schema.TaskStatusCompleted, "", 450),
		record("t2", "check_stock", schema.TaskTypeSwitch, schema.TaskStatusCompleted, "", 3),
		record("t3", "process_payment", schema.TaskTypeHTTP, schema.TaskStatusCompleted, "check_stock", 890),
		record("t4", "ship_items", schema.TaskTypeForkJoinDynamic, schema.TaskStatusCompleted, "", 5),
	}
	for i := range 5 {
		status := schema.TaskStatusCompleted
		if i == 3 {
			status = schema.TaskStatusFailed
		}
		records = append(records, record(fmt.Sprintf("c%d", i), fmt.Sprintf("ship_item_%d", i),
			schema.TaskTypeSimple, status, "ship_items", 120))
	}
	records = append(records, record("t5", "ship_items_join", schema.TaskTypeJoin, schema.TaskStatusInProgress, "", 0))

	return &schema.Execution{
		WorkflowID:      "3f6c1c2e-sample",
		WorkflowName:    "order_fulfillment",
		WorkflowVersion: 3,
		Status:          schema.WorkflowStatusRunning,
		Tasks:           records,
	}
}

func main() {
	model, err := diagram.BuildExecution(sampleDefinition(), sampleExecution())
	if err != nil {
		fmt.Fprintf(os.Stderr, "build error: %v\n", err)
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	// ASCII (mermaid-ascii with hand-rolled fallback)
	home, _ := os.UserHomeDir()
	binDir := filepath.Join(home, ".wfgraph", "bin")
	ascii := diagram.RenderASCIIAuto(model, binDir)
	writeFile(filepath.Join(outDir, "diagram-ascii.txt"), []byte(ascii))
	fmt.Println("=== ASCII ===")
	fmt.Println(ascii)

	mermaid := diagram.RenderMermaid(model)
	writeFile(filepath.Join(outDir, "diagram-mermaid.md"), []byte("```mermaid\n"+mermaid+"\n```\n"))
	fmt.Println("=== Mermaid ===")
	fmt.Println(mermaid)

	png, imgErr := diagram.RenderImage(model)
	if imgErr != nil {
		fmt.Fprintf(os.Stderr, "image error: %v\n", imgErr)
		return
	}
	pngPath := filepath.Join(outDir, "diagram-sample.png")
	writeFile(pngPath, png)
	fmt.Printf("=== Image (PNG) ===\nWritten: %s (%d bytes)\n", pngPath, len(png))
}

func writeFile(path string, data []byte) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
	}
}
