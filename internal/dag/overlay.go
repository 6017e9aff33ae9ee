package dag

import (
	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// edgeBetween annotates the edge from → to. Edges leaving a switch carry the
// case value they belong to; all other edges are executed when both
// endpoints ran.
func (d *WorkflowDAG) edgeBetween(from, to *graph.Node) *graph.Edge {
	e := &graph.Edge{From: from.Ref, To: to.Ref}
	if from.Kind() != schema.KindSwitch {
		e.Executed = from.Executed() && to.Executed()
		return e
	}

	e.CaseValue = caseValueFor(from.Config, to.Ref)
	if !from.Executed() {
		return e
	}
	e.Executed = d.switchEdgeExecuted(from.Config, to, e.CaseValue)
	return e
}

func (d *WorkflowDAG) switchEdgeExecuted(sw *schema.TaskConfig, to *graph.Node, caseValue string) bool {
	target := to.LastResult()
	if target == nil {
		return false
	}
	switch caseValue {
	case DefaultCaseValue:
		if len(sw.DefaultCase) > 0 {
			return sw.DefaultCase[0].Ref() == to.Ref
		}
		_, caseRan := d.index.executedCase[sw.Ref()]
		return !caseRan
	case "":
		return to.Executed()
	default:
		return target.ParentTaskReferenceName == sw.Ref()
	}
}

// caseValueFor names the branch of sw that leads to target: "default" for the
// default branch head or the fall-through successor of an empty default,
// otherwise the key of the named case target heads.
func caseValueFor(sw *schema.TaskConfig, target string) string {
	if len(sw.DefaultCase) > 0 && sw.DefaultCase[0].Ref() == target {
		return DefaultCaseValue
	}
	keys := sw.CaseKeys()
	for _, key := range keys {
		if branch, _ := sw.Case(key); len(branch) > 0 && branch[0].Ref() == target {
			return key
		}
	}
	if len(sw.DefaultCase) == 0 {
		return DefaultCaseValue
	}
	for _, key := range keys {
		if branch, _ := sw.Case(key); len(branch) == 0 {
			return key
		}
	}
	return ""
}

// forkTally summarizes the current status of each distinct forked child.
func (d *WorkflowDAG) forkTally(children []string) (*graph.Tally, schema.TaskStatus) {
	tally := &graph.Tally{}
	for _, child := range children {
		last := d.index.last(child)
		if last == nil {
			continue
		}
		tally.Total++
		countStatus(tally, last.Status)
	}

	switch {
	case tally.Total > 1 && tally.Success == tally.Total:
		return tally, schema.TaskStatusCompleted
	case tally.InProgress > 0:
		return tally, schema.TaskStatusInProgress
	default:
		return tally, schema.TaskStatusFailed
	}
}

// loopTally counts every attempt of every body task across all iterations.
func (d *WorkflowDAG) loopTally(loop *schema.TaskConfig, bodyRefs []string) *graph.Tally {
	tally := &graph.Tally{}
	for _, ref := range bodyRefs {
		for _, r := range d.index.results(ref) {
			tally.Total++
			countStatus(tally, r.Status)
		}
	}
	if last := d.index.last(loop.Ref()); last != nil {
		tally.Iterations = last.Iteration
	}
	return tally
}

func countStatus(t *graph.Tally, status schema.TaskStatus) {
	switch {
	case status == schema.TaskStatusCompleted:
		t.Success++
	case status.IsInProgress():
		t.InProgress++
	case status == schema.TaskStatusCanceled:
		t.Canceled++
	default:
		t.Failed++
	}
}

// loopBodyRefs lists every reference name a collapsed loop summarizes:
// the body tasks at any depth plus children forked dynamically inside it.
func (d *WorkflowDAG) loopBodyRefs(loop *schema.TaskConfig) []string {
	var refs []string
	seen := make(map[string]bool)
	add := func(ref string) {
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	schema.WalkTasks(loop.LoopOver, func(t *schema.TaskConfig) bool {
		add(t.Ref())
		if t.Type.Kind() == schema.KindDynamicFork {
			for _, child := range d.index.forkedChildren[t.Ref()] {
				add(child)
			}
		}
		return true
	})
	return refs
}
