package dag

import "github.com/rendis/wfgraph/pkg/schema"

// SlotKind names the task list a static task lives in.
type SlotKind int

const (
	SlotRoot SlotKind = iota
	SlotForkBranch
	SlotDefaultCase
	SlotCase
	SlotLoopBody
)

var slotNames = map[SlotKind]string{
	SlotRoot:        "root",
	SlotForkBranch:  "fork_branch",
	SlotDefaultCase: "default_case",
	SlotCase:        "case",
	SlotLoopBody:    "loop_body",
}

func (s SlotKind) String() string {
	if n, ok := slotNames[s]; ok {
		return n
	}
	return "unknown"
}

// Location addresses a static task by the list that owns it and its index
// in that list. Owner is empty for the root task list.
type Location struct {
	Owner  string   `json:"owner,omitempty"`
	Slot   SlotKind `json:"slot"`
	Branch int      `json:"branch,omitempty"`
	Case   string   `json:"case,omitempty"`
	Index  int      `json:"index"`
}

// Location returns where a static task lives in the definition.
func (d *WorkflowDAG) Location(ref string) (Location, bool) {
	loc, ok := d.locations[ref]
	return loc, ok
}

// locate records configs and locations of every static task and rejects
// empty, reserved and duplicate reference names.
func (d *WorkflowDAG) locate(list []schema.TaskConfig, base Location) error {
	for i := range list {
		task := &list[i]
		ref := task.Ref()
		switch {
		case ref == "":
			return schema.NewErrorf(schema.ErrCodeValidation, "task %q at index %d has empty taskReferenceName", task.Name, i)
		case ref == StartRef || ref == FinalRef:
			return schema.NewErrorf(schema.ErrCodeValidation, "reference name %s is reserved", ref).WithTask(ref)
		}
		if _, exists := d.configs[ref]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate task reference name: %s", ref).WithTask(ref)
		}

		loc := base
		loc.Index = i
		d.configs[ref] = task
		d.locations[ref] = loc

		for b, branch := range task.ForkTasks {
			if err := d.locate(branch, Location{Owner: ref, Slot: SlotForkBranch, Branch: b}); err != nil {
				return err
			}
		}
		if err := d.locate(task.DefaultCase, Location{Owner: ref, Slot: SlotDefaultCase}); err != nil {
			return err
		}
		for _, key := range task.CaseKeys() {
			branch, _ := task.Case(key)
			if err := d.locate(branch, Location{Owner: ref, Slot: SlotCase, Case: key}); err != nil {
				return err
			}
		}
		if err := d.locate(task.LoopOver, Location{Owner: ref, Slot: SlotLoopBody}); err != nil {
			return err
		}
	}
	return nil
}
