package schema

// TaskType is the Conductor task type tag carried by definitions and results.
type TaskType string

const (
	TaskTypeSimple          TaskType = "SIMPLE"
	TaskTypeHTTP            TaskType = "HTTP"
	TaskTypeInline          TaskType = "INLINE"
	TaskTypeJSONJQTransform TaskType = "JSON_JQ_TRANSFORM"
	TaskTypeSetVariable     TaskType = "SET_VARIABLE"
	TaskTypeWait            TaskType = "WAIT"
	TaskTypeHuman           TaskType = "HUMAN"
	TaskTypeEvent           TaskType = "EVENT"
	TaskTypeKafkaPublish    TaskType = "KAFKA_PUBLISH"
	TaskTypeStartWorkflow   TaskType = "START_WORKFLOW"
	TaskTypeSubWorkflow     TaskType = "SUB_WORKFLOW"

	TaskTypeForkJoin        TaskType = "FORK_JOIN"
	TaskTypeForkJoinDynamic TaskType = "FORK_JOIN_DYNAMIC"
	TaskTypeFork            TaskType = "FORK" // legacy result tag for both fork kinds
	TaskTypeJoin            TaskType = "JOIN"
	TaskTypeExclusiveJoin   TaskType = "EXCLUSIVE_JOIN"
	TaskTypeSwitch          TaskType = "SWITCH"
	TaskTypeDecision        TaskType = "DECISION"
	TaskTypeDoWhile         TaskType = "DO_WHILE"
	TaskTypeTerminate       TaskType = "TERMINATE"

	// Virtual types, never present in a stored definition.
	TaskTypeTerminal                TaskType = "TERMINAL"
	TaskTypeDoWhileEnd              TaskType = "DO_WHILE_END"
	TaskTypeForkChildrenPlaceholder TaskType = "DF_CHILDREN_PLACEHOLDER"
	TaskTypeLoopChildrenPlaceholder TaskType = "LOOP_CHILDREN_PLACEHOLDER"
)

// Kind groups task types by how the flattener treats them.
type Kind int

const (
	KindLeaf Kind = iota
	KindFork
	KindDynamicFork
	KindSwitch
	KindDoWhile
	KindJoin
	KindTerminate
	KindTerminal
	KindDoWhileEnd
	KindForkPlaceholder
	KindLoopPlaceholder
)

var kindNames = map[Kind]string{
	KindLeaf:            "leaf",
	KindFork:            "fork",
	KindDynamicFork:     "dynamic_fork",
	KindSwitch:          "switch",
	KindDoWhile:         "do_while",
	KindJoin:            "join",
	KindTerminate:       "terminate",
	KindTerminal:        "terminal",
	KindDoWhileEnd:      "do_while_end",
	KindForkPlaceholder: "fork_placeholder",
	KindLoopPlaceholder: "loop_placeholder",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Kind classifies the type. Unknown and plain worker types are leaves.
func (t TaskType) Kind() Kind {
	switch t {
	case TaskTypeForkJoin, TaskTypeFork:
		return KindFork
	case TaskTypeForkJoinDynamic:
		return KindDynamicFork
	case TaskTypeSwitch, TaskTypeDecision:
		return KindSwitch
	case TaskTypeDoWhile:
		return KindDoWhile
	case TaskTypeJoin, TaskTypeExclusiveJoin:
		return KindJoin
	case TaskTypeTerminate:
		return KindTerminate
	case TaskTypeTerminal:
		return KindTerminal
	case TaskTypeDoWhileEnd:
		return KindDoWhileEnd
	case TaskTypeForkChildrenPlaceholder:
		return KindForkPlaceholder
	case TaskTypeLoopChildrenPlaceholder:
		return KindLoopPlaceholder
	default:
		return KindLeaf
	}
}

// IsFork reports whether records of this type can parent forked children.
func (t TaskType) IsFork() bool {
	k := t.Kind()
	return k == KindFork || k == KindDynamicFork
}

// IsPlaceholder reports whether the type is a collapsed-summary stand-in.
func (t TaskType) IsPlaceholder() bool {
	k := t.Kind()
	return k == KindForkPlaceholder || k == KindLoopPlaceholder
}

// IsVirtual reports whether the type only exists inside a built graph.
func (t TaskType) IsVirtual() bool {
	switch t.Kind() {
	case KindTerminal, KindDoWhileEnd, KindForkPlaceholder, KindLoopPlaceholder:
		return true
	}
	return false
}
