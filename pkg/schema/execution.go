package schema

// TaskStatus is the status of one task execution attempt.
type TaskStatus string

const (
	TaskStatusScheduled               TaskStatus = "SCHEDULED"
	TaskStatusInProgress              TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted               TaskStatus = "COMPLETED"
	TaskStatusCompletedWithErrors     TaskStatus = "COMPLETED_WITH_ERRORS"
	TaskStatusFailed                  TaskStatus = "FAILED"
	TaskStatusFailedWithTerminalError TaskStatus = "FAILED_WITH_TERMINAL_ERROR"
	TaskStatusTimedOut                TaskStatus = "TIMED_OUT"
	TaskStatusCanceled                TaskStatus = "CANCELED"
	TaskStatusSkipped                 TaskStatus = "SKIPPED"
)

// IsInProgress reports whether the attempt has not finished yet.
func (s TaskStatus) IsInProgress() bool {
	return s == TaskStatusInProgress || s == TaskStatusScheduled
}

// WorkflowStatus is the overall status of a workflow execution.
type WorkflowStatus string

const (
	WorkflowStatusRunning    WorkflowStatus = "RUNNING"
	WorkflowStatusCompleted  WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed     WorkflowStatus = "FAILED"
	WorkflowStatusTimedOut   WorkflowStatus = "TIMED_OUT"
	WorkflowStatusTerminated WorkflowStatus = "TERMINATED"
	WorkflowStatusPaused     WorkflowStatus = "PAUSED"
)

// TaskResult is one attempt of one task instance, as reported by the server.
// Several results may share a reference name; the last one is current.
type TaskResult struct {
	TaskID                  string         `json:"taskId"`
	ReferenceTaskName       string         `json:"referenceTaskName"`
	TaskType                TaskType       `json:"taskType"`
	TaskDefName             string         `json:"taskDefName,omitempty"`
	Status                  TaskStatus     `json:"status"`
	ParentTaskReferenceName string         `json:"parentTaskReferenceName,omitempty"`
	Iteration               int            `json:"iteration,omitempty"`
	RetryCount              int            `json:"retryCount,omitempty"`
	ScheduledTime           int64          `json:"scheduledTime,omitempty"`
	StartTime               int64          `json:"startTime,omitempty"`
	EndTime                 int64          `json:"endTime,omitempty"`
	InputData               map[string]any `json:"inputData,omitempty"`
	OutputData              map[string]any `json:"outputData,omitempty"`
	ReasonForIncompletion   string         `json:"reasonForIncompletion,omitempty"`
	WorkerID                string         `json:"workerId,omitempty"`
	WorkflowTask            *TaskConfig    `json:"workflowTask,omitempty"`
}

// Ref returns the reference name of the task this result belongs to.
func (r *TaskResult) Ref() string { return r.ReferenceTaskName }

// Execution is a workflow execution with its ordered task records.
type Execution struct {
	WorkflowID            string              `json:"workflowId"`
	WorkflowName          string              `json:"workflowName,omitempty"`
	WorkflowVersion       int                 `json:"workflowVersion,omitempty"`
	Status                WorkflowStatus      `json:"status"`
	Tasks                 []TaskResult        `json:"tasks"`
	Input                 map[string]any      `json:"input,omitempty"`
	Output                map[string]any      `json:"output,omitempty"`
	StartTime             int64               `json:"startTime,omitempty"`
	EndTime               int64               `json:"endTime,omitempty"`
	ReasonForIncompletion string              `json:"reasonForIncompletion,omitempty"`
	WorkflowDefinition    *WorkflowDefinition `json:"workflowDefinition,omitempty"`
}
