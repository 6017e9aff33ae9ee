package dag

import (
	"slices"

	"github.com/rendis/wfgraph/pkg/schema"
)

// Editor applies structural edits to a definition. Every operation works on
// a deep clone and returns the edited definition; the Editor's own
// definition is never modified.
type Editor struct {
	def *schema.WorkflowDefinition
}

// NewEditor returns an editor over def. The definition must build.
func NewEditor(def *schema.WorkflowDefinition) (*Editor, error) {
	if _, err := NewFromDefinition(def); err != nil {
		return nil, err
	}
	return &Editor{def: def}, nil
}

// Definition returns the definition the editor operates on.
func (e *Editor) Definition() *schema.WorkflowDefinition { return e.def }

// taskList is a handle on one task list inside a cloned definition.
type taskList struct {
	get func() []schema.TaskConfig
	set func([]schema.TaskConfig)
}

// edit clones the definition, rebuilds it for addressing, and applies fn.
func (e *Editor) edit(fn func(d *WorkflowDAG) error) (*schema.WorkflowDefinition, error) {
	clone, err := e.def.Clone()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidState, "clone definition").WithCause(err)
	}
	d, err := NewFromDefinition(clone)
	if err != nil {
		return nil, err
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	if _, err := NewFromDefinition(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// InsertAfter inserts task after ref. StartRef inserts at the head of the
// root list; inserting after a fork lands after its join. A fork is
// inserted together with its join.
func (e *Editor) InsertAfter(ref string, task schema.TaskConfig) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		items, err := d.withJoin(task)
		if err != nil {
			return err
		}

		if ref == StartRef {
			list := d.rootList()
			list.set(slices.Insert(list.get(), 0, items...))
			return nil
		}

		list, loc, err := d.listOf(ref)
		if err != nil {
			return err
		}
		at := loc.Index + 1
		if d.configs[ref].Type.IsFork() {
			if err := requireJoinAfter(list.get(), loc.Index, ref); err != nil {
				return err
			}
			at++
		}
		list.set(slices.Insert(list.get(), at, items...))
		return nil
	})
}

// Delete removes ref. Deleting a fork also deletes its join; a join that
// closes a fork can only go with its fork. Deleted refs leave every joinOn.
func (e *Editor) Delete(ref string) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		list, loc, err := d.listOf(ref)
		if err != nil {
			return err
		}
		tasks := list.get()
		count := 1
		switch task := &tasks[loc.Index]; {
		case task.Type.IsFork():
			if err := requireJoinAfter(tasks, loc.Index, ref); err != nil {
				return err
			}
			count = 2
		case task.Type.Kind() == schema.KindJoin && loc.Index > 0 && tasks[loc.Index-1].Type.IsFork():
			return schema.NewErrorf(schema.ErrCodeInvalidState,
				"join %s closes fork %s; delete the fork instead", ref, tasks[loc.Index-1].Ref()).WithTask(ref)
		}

		removed := refsIn(tasks[loc.Index : loc.Index+count])
		list.set(slices.Delete(tasks, loc.Index, loc.Index+count))
		d.dropFromJoins(removed)
		return nil
	})
}

// AddForkBranch appends a branch holding task to a static fork. The fork's
// join waits on the new branch's tail.
func (e *Editor) AddForkBranch(forkRef string, task schema.TaskConfig) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		fork, join, err := d.forkAndJoin(forkRef)
		if err != nil {
			return err
		}
		items, err := d.withJoin(task)
		if err != nil {
			return err
		}
		fork.ForkTasks = append(fork.ForkTasks, items)
		join.JoinOn = append(join.JoinOn, items[len(items)-1].Ref())
		return nil
	})
}

// RemoveForkBranch removes branch index of a static fork. The last branch
// cannot be removed.
func (e *Editor) RemoveForkBranch(forkRef string, index int) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		fork, _, err := d.forkAndJoin(forkRef)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(fork.ForkTasks) {
			return schema.NewErrorf(schema.ErrCodeInvalidState,
				"fork %s has %d branches, no branch %d", forkRef, len(fork.ForkTasks), index).WithTask(forkRef)
		}
		if len(fork.ForkTasks) == 1 {
			return schema.NewErrorf(schema.ErrCodeInvalidState, "fork %s must keep at least one branch", forkRef).WithTask(forkRef)
		}
		removed := refsIn(fork.ForkTasks[index])
		fork.ForkTasks = slices.Delete(fork.ForkTasks, index, index+1)
		d.dropFromJoins(removed)
		return nil
	})
}

// AddSwitchCase adds a named case holding task to a switch.
func (e *Editor) AddSwitchCase(switchRef, caseValue string, task schema.TaskConfig) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		sw, err := d.staticOfKind(switchRef, schema.KindSwitch)
		if err != nil {
			return err
		}
		if caseValue == "" {
			return schema.NewError(schema.ErrCodeValidation, "case value is empty").WithTask(switchRef)
		}
		if _, exists := sw.Case(caseValue); exists {
			return schema.NewErrorf(schema.ErrCodeInvalidState, "switch %s already has case %q", switchRef, caseValue).WithTask(switchRef)
		}
		items, err := d.withJoin(task)
		if err != nil {
			return err
		}
		sw.SetCase(caseValue, items)
		return nil
	})
}

// AddLoopBody appends task to a loop's body.
func (e *Editor) AddLoopBody(loopRef string, task schema.TaskConfig) (*schema.WorkflowDefinition, error) {
	return e.edit(func(d *WorkflowDAG) error {
		loop, err := d.staticOfKind(loopRef, schema.KindDoWhile)
		if err != nil {
			return err
		}
		items, err := d.withJoin(task)
		if err != nil {
			return err
		}
		loop.LoopOver = append(loop.LoopOver, items...)
		return nil
	})
}

// withJoin returns the tasks to insert for task: the task itself, followed
// by a {ref}_join JOIN when it is a fork. New refs must be unused.
func (d *WorkflowDAG) withJoin(task schema.TaskConfig) ([]schema.TaskConfig, error) {
	items := []schema.TaskConfig{task}
	if task.Type.IsFork() {
		join := schema.TaskConfig{
			Name:              task.Ref() + JoinSuffix,
			TaskReferenceName: task.Ref() + JoinSuffix,
			Type:              schema.TaskTypeJoin,
		}
		for _, branch := range task.ForkTasks {
			if len(branch) > 0 {
				join.JoinOn = append(join.JoinOn, branch[len(branch)-1].Ref())
			}
		}
		items = append(items, join)
	}

	seen := make(map[string]bool)
	for _, ref := range refsIn(items) {
		if ref == "" {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "task %q has empty taskReferenceName", task.Name)
		}
		if _, exists := d.configs[ref]; exists || seen[ref] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate task reference name: %s", ref).WithTask(ref)
		}
		seen[ref] = true
	}
	return items, nil
}

func (d *WorkflowDAG) rootList() taskList {
	return taskList{
		get: func() []schema.TaskConfig { return d.def.Tasks },
		set: func(tasks []schema.TaskConfig) { d.def.Tasks = tasks },
	}
}

// listOf returns the list that holds the static task ref.
func (d *WorkflowDAG) listOf(ref string) (taskList, Location, error) {
	loc, ok := d.locations[ref]
	if !ok {
		return taskList{}, Location{}, schema.NewErrorf(schema.ErrCodeNotFound, "no task %s in the definition", ref).WithTask(ref)
	}
	if loc.Slot == SlotRoot {
		return d.rootList(), loc, nil
	}

	owner := d.configs[loc.Owner]
	var list taskList
	switch loc.Slot {
	case SlotForkBranch:
		list = taskList{
			get: func() []schema.TaskConfig { return owner.ForkTasks[loc.Branch] },
			set: func(tasks []schema.TaskConfig) { owner.ForkTasks[loc.Branch] = tasks },
		}
	case SlotDefaultCase:
		list = taskList{
			get: func() []schema.TaskConfig { return owner.DefaultCase },
			set: func(tasks []schema.TaskConfig) { owner.DefaultCase = tasks },
		}
	case SlotCase:
		list = taskList{
			get: func() []schema.TaskConfig { tasks, _ := owner.Case(loc.Case); return tasks },
			set: func(tasks []schema.TaskConfig) { owner.SetCase(loc.Case, tasks) },
		}
	case SlotLoopBody:
		list = taskList{
			get: func() []schema.TaskConfig { return owner.LoopOver },
			set: func(tasks []schema.TaskConfig) { owner.LoopOver = tasks },
		}
	default:
		return taskList{}, Location{}, schema.NewErrorf(schema.ErrCodeInvalidState, "task %s has unknown slot %s", ref, loc.Slot).WithTask(ref)
	}
	return list, loc, nil
}

func (d *WorkflowDAG) staticOfKind(ref string, kind schema.Kind) (*schema.TaskConfig, error) {
	if _, ok := d.locations[ref]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no task %s in the definition", ref).WithTask(ref)
	}
	task := d.configs[ref]
	if task.Type.Kind() != kind {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidState, "task %s is %s, not %s", ref, task.Type.Kind(), kind).WithTask(ref)
	}
	return task, nil
}

// forkAndJoin returns a static fork and the join that must follow it.
func (d *WorkflowDAG) forkAndJoin(forkRef string) (*schema.TaskConfig, *schema.TaskConfig, error) {
	fork, err := d.staticOfKind(forkRef, schema.KindFork)
	if err != nil {
		return nil, nil, err
	}
	list, loc, err := d.listOf(forkRef)
	if err != nil {
		return nil, nil, err
	}
	tasks := list.get()
	if err := requireJoinAfter(tasks, loc.Index, forkRef); err != nil {
		return nil, nil, err
	}
	return fork, &tasks[loc.Index+1], nil
}

func requireJoinAfter(tasks []schema.TaskConfig, index int, forkRef string) error {
	if index+1 >= len(tasks) || tasks[index+1].Type.Kind() != schema.KindJoin {
		return schema.NewErrorf(schema.ErrCodeInvalidState, "fork %s is not followed by a join", forkRef).WithTask(forkRef)
	}
	return nil
}

// dropFromJoins removes refs from the joinOn list of every join.
func (d *WorkflowDAG) dropFromJoins(refs []string) {
	gone := make(map[string]bool, len(refs))
	for _, ref := range refs {
		gone[ref] = true
	}
	schema.WalkTasks(d.def.Tasks, func(t *schema.TaskConfig) bool {
		if t.Type.Kind() == schema.KindJoin && len(t.JoinOn) > 0 {
			t.JoinOn = slices.DeleteFunc(t.JoinOn, func(ref string) bool { return gone[ref] })
		}
		return true
	})
}

func refsIn(tasks []schema.TaskConfig) []string {
	var refs []string
	schema.WalkTasks(tasks, func(t *schema.TaskConfig) bool {
		refs = append(refs, t.Ref())
		return true
	})
	return refs
}
