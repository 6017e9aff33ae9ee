package dag

import "github.com/rendis/wfgraph/pkg/schema"

// resultIndex is the two-pass index over an execution's ordered records.
type resultIndex struct {
	status  schema.WorkflowStatus
	ordered []*schema.TaskResult

	byRef map[string][]*schema.TaskResult // retry order, last is current
	byID  map[string]*schema.TaskResult   // TERMINAL records excluded

	forkedChildren map[string][]string // fork ref → distinct child refs, first-seen order
	executedCase   map[string]string   // switch ref → leading task of the case that ran
	loopTaskIDs    map[string][]string // loop ref → every body record id, scan order
}

func newResultIndex(exec *schema.Execution, strictOrder bool) (*resultIndex, error) {
	records := make([]*schema.TaskResult, len(exec.Tasks))
	for i := range exec.Tasks {
		r := exec.Tasks[i]
		records[i] = &r
	}

	idx := &resultIndex{
		status:         exec.Status,
		ordered:        records,
		byRef:          make(map[string][]*schema.TaskResult),
		byID:           make(map[string]*schema.TaskResult),
		forkedChildren: make(map[string][]string),
		executedCase:   make(map[string]string),
		loopTaskIDs:    make(map[string][]string),
	}

	// Pass 1: index.
	firstSeen := make(map[string]int)
	terminated := false
	for i, r := range records {
		ref := r.Ref()
		if _, ok := firstSeen[ref]; !ok {
			firstSeen[ref] = i
		}
		idx.byRef[ref] = append(idx.byRef[ref], r)
		if r.TaskType.Kind() != schema.KindTerminal && r.TaskID != "" {
			idx.byID[r.TaskID] = r
		}
		if r.TaskType == schema.TaskTypeTerminate {
			terminated = true
		}
	}

	// Pass 2: parent inference in scan order.
	forkSeen := make(map[string]map[string]bool)
	for i, r := range records {
		parentRef := r.ParentTaskReferenceName
		if parentRef == "" {
			continue
		}
		parent := idx.last(parentRef)
		if parent == nil {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidState,
				"record %s names parent %s which has no record", r.TaskID, parentRef).WithTask(r.Ref())
		}
		if strictOrder && firstSeen[parentRef] > i {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidState,
				"record %s precedes its parent %s", r.TaskID, parentRef).WithTask(r.Ref())
		}

		switch kind := parent.TaskType.Kind(); {
		case parent.TaskType.IsFork():
			if r.TaskType.Kind() == schema.KindJoin {
				continue
			}
			seen := forkSeen[parentRef]
			if seen == nil {
				seen = make(map[string]bool)
				forkSeen[parentRef] = seen
			}
			if !seen[r.Ref()] {
				seen[r.Ref()] = true
				idx.forkedChildren[parentRef] = append(idx.forkedChildren[parentRef], r.Ref())
			}
		case kind == schema.KindSwitch:
			// First record wins; deeper tasks of the same case must not overwrite it.
			if _, set := idx.executedCase[parentRef]; !set {
				idx.executedCase[parentRef] = r.Ref()
			}
		case kind == schema.KindDoWhile:
			idx.loopTaskIDs[parentRef] = append(idx.loopTaskIDs[parentRef], r.TaskID)
		}
	}

	idx.byRef[StartRef] = append(idx.byRef[StartRef], terminalRecord(StartRef))
	if exec.Status == schema.WorkflowStatusCompleted && !terminated {
		idx.byRef[FinalRef] = append(idx.byRef[FinalRef], terminalRecord(FinalRef))
	}
	return idx, nil
}

func terminalRecord(ref string) *schema.TaskResult {
	return &schema.TaskResult{
		TaskID:            ref,
		ReferenceTaskName: ref,
		TaskType:          schema.TaskTypeTerminal,
		Status:            schema.TaskStatusCompleted,
	}
}

func (idx *resultIndex) results(ref string) []*schema.TaskResult {
	return idx.byRef[ref]
}

func (idx *resultIndex) last(ref string) *schema.TaskResult {
	rs := idx.byRef[ref]
	if len(rs) == 0 {
		return nil
	}
	return rs[len(rs)-1]
}
