package dag

import (
	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// flatten builds the graph: __start, the root task list, then __final fed by
// whatever frontier is left. A __final nothing reaches is dropped.
func (d *WorkflowDAG) flatten() error {
	start := d.virtualConfig(StartRef, schema.TaskTypeTerminal)
	if err := d.register(start, nil); err != nil {
		return err
	}

	frontier, err := d.processList(d.def.Tasks, []*schema.TaskConfig{start})
	if err != nil {
		return err
	}

	final := d.virtualConfig(FinalRef, schema.TaskTypeTerminal)
	if err := d.register(final, frontier); err != nil {
		return err
	}
	if len(d.graph.Predecessors(FinalRef)) == 0 {
		d.graph.RemoveNode(FinalRef)
		delete(d.configs, FinalRef)
	}
	return nil
}

// processList chains the tasks of one list and returns the exit frontier of
// its last task. An empty list passes its antecedents through.
func (d *WorkflowDAG) processList(list []schema.TaskConfig, antecedents []*schema.TaskConfig) ([]*schema.TaskConfig, error) {
	frontier := antecedents
	for i := range list {
		next, err := d.processTask(&list[i], frontier)
		if err != nil {
			return nil, err
		}
		frontier = next
	}
	return frontier, nil
}

// processTask registers task after antecedents and returns the tasks the
// next node must be connected from.
func (d *WorkflowDAG) processTask(task *schema.TaskConfig, antecedents []*schema.TaskConfig) ([]*schema.TaskConfig, error) {
	if err := d.register(task, antecedents); err != nil {
		return nil, err
	}
	self := []*schema.TaskConfig{task}

	switch task.Type.Kind() {
	case schema.KindFork:
		if len(task.ForkTasks) == 0 {
			return self, nil
		}
		var exits []*schema.TaskConfig
		for _, branch := range task.ForkTasks {
			branchExits, err := d.processList(branch, self)
			if err != nil {
				return nil, err
			}
			exits = append(exits, branchExits...)
		}
		return exits, nil

	case schema.KindDynamicFork:
		return d.processDynamicFork(task)

	case schema.KindSwitch:
		var exits []*schema.TaskConfig
		if len(task.DefaultCase) == 0 {
			exits = append(exits, task)
		} else {
			defaultExits, err := d.processList(task.DefaultCase, self)
			if err != nil {
				return nil, err
			}
			exits = append(exits, defaultExits...)
		}
		for _, key := range task.CaseKeys() {
			branch, _ := task.Case(key)
			caseExits, err := d.processList(branch, self)
			if err != nil {
				return nil, err
			}
			exits = append(exits, caseExits...)
		}
		return exits, nil

	case schema.KindDoWhile:
		return d.processLoop(task)

	case schema.KindTerminate:
		return nil, nil

	default:
		return self, nil
	}
}

func (d *WorkflowDAG) processDynamicFork(fork *schema.TaskConfig) ([]*schema.TaskConfig, error) {
	forkNode, _ := d.graph.Node(fork.Ref())
	placeholder := d.virtualConfig(fork.Ref()+ForkPlaceholderSuffix, schema.TaskTypeForkChildrenPlaceholder)

	if d.index == nil || !forkNode.Executed() {
		if err := d.register(placeholder, []*schema.TaskConfig{fork}); err != nil {
			return nil, err
		}
		return []*schema.TaskConfig{placeholder}, nil
	}

	children := d.index.forkedChildren[fork.Ref()]
	if len(children) == 0 || len(children) >= d.opts.collapseThreshold {
		tally, status := d.forkTally(children)
		err := d.registerPlaceholder(placeholder, fork, status, tally, children)
		if err != nil {
			return nil, err
		}
		return []*schema.TaskConfig{placeholder}, nil
	}

	exits := make([]*schema.TaskConfig, 0, len(children))
	for _, child := range children {
		cfg := d.synthesizeConfig(child)
		if err := d.register(cfg, []*schema.TaskConfig{fork}); err != nil {
			return nil, err
		}
		exits = append(exits, cfg)
	}
	return exits, nil
}

func (d *WorkflowDAG) processLoop(loop *schema.TaskConfig) ([]*schema.TaskConfig, error) {
	end := d.virtualConfig(loop.Ref()+LoopEndSuffix, schema.TaskTypeDoWhileEnd)
	end.AliasFor = loop.Ref()

	loopNode, _ := d.graph.Node(loop.Ref())
	if d.index != nil && loopNode.Executed() {
		placeholder := d.virtualConfig(loop.Ref()+LoopPlaceholderSuffix, schema.TaskTypeLoopChildrenPlaceholder)
		bodyRefs := d.loopBodyRefs(loop)
		tally := d.loopTally(loop, bodyRefs)
		if err := d.registerPlaceholder(placeholder, loop, loopNode.Status, tally, bodyRefs); err != nil {
			return nil, err
		}
		if err := d.register(end, []*schema.TaskConfig{placeholder}); err != nil {
			return nil, err
		}
		return []*schema.TaskConfig{end}, nil
	}

	frontier, err := d.processList(loop.LoopOver, []*schema.TaskConfig{loop})
	if err != nil {
		return nil, err
	}
	if n := len(loop.LoopOver); n > 0 {
		if last := &loop.LoopOver[n-1]; last.Type.Kind() == schema.KindSwitch && last.HasCases() {
			frontier = d.caseTails(last)
		}
	}
	if err := d.register(end, frontier); err != nil {
		return nil, err
	}
	return []*schema.TaskConfig{end}, nil
}

// caseTails returns the last task of every non-empty branch of a switch that
// closes a loop body, so each branch visibly reaches the loop's end bar.
func (d *WorkflowDAG) caseTails(sw *schema.TaskConfig) []*schema.TaskConfig {
	var tails []*schema.TaskConfig
	add := func(branch []schema.TaskConfig) {
		if len(branch) == 0 {
			return
		}
		tail := &branch[len(branch)-1]
		switch tail.Type.Kind() {
		case schema.KindTerminate:
			return
		case schema.KindDoWhile:
			if end, ok := d.configs[tail.Ref()+LoopEndSuffix]; ok {
				tails = append(tails, end)
			}
			return
		}
		tails = append(tails, tail)
	}

	if len(sw.DefaultCase) == 0 {
		tails = append(tails, sw)
	} else {
		add(sw.DefaultCase)
	}
	for _, key := range sw.CaseKeys() {
		branch, _ := sw.Case(key)
		add(branch)
	}
	return tails
}

// register adds the node for cfg and connects every antecedent to it.
func (d *WorkflowDAG) register(cfg *schema.TaskConfig, antecedents []*schema.TaskConfig) error {
	node := &graph.Node{Ref: cfg.Ref(), Config: cfg}
	if d.index != nil {
		ref := cfg.Ref()
		if cfg.AliasFor != "" {
			ref = cfg.AliasFor
		}
		node.Results = d.index.results(ref)
		if last := d.index.last(ref); last != nil {
			node.Status = last.Status
		}
	}
	return d.addNode(node, antecedents)
}

func (d *WorkflowDAG) registerPlaceholder(cfg, owner *schema.TaskConfig, status schema.TaskStatus, tally *graph.Tally, contains []string) error {
	node := &graph.Node{
		Ref:      cfg.Ref(),
		Config:   cfg,
		Status:   status,
		Tally:    tally,
		Contains: append([]string(nil), contains...),
	}
	return d.addNode(node, []*schema.TaskConfig{owner})
}

func (d *WorkflowDAG) addNode(node *graph.Node, antecedents []*schema.TaskConfig) error {
	if d.graph.HasNode(node.Ref) {
		return schema.NewErrorf(schema.ErrCodeInvalidState, "node %s registered twice", node.Ref).WithTask(node.Ref)
	}
	d.graph.SetNode(node)
	if _, ok := d.configs[node.Ref]; !ok {
		d.configs[node.Ref] = node.Config
	}
	for _, a := range antecedents {
		from, ok := d.graph.Node(a.Ref())
		if !ok {
			return schema.NewErrorf(schema.ErrCodeInvalidState, "antecedent %s of %s is not in the graph", a.Ref(), node.Ref).WithTask(node.Ref)
		}
		d.graph.SetEdge(d.edgeBetween(from, node))
	}
	return nil
}

func (d *WorkflowDAG) virtualConfig(ref string, typ schema.TaskType) *schema.TaskConfig {
	return &schema.TaskConfig{Name: ref, TaskReferenceName: ref, Type: typ}
}

// synthesizeConfig builds a stand-in config for a task that only exists in
// the execution, preferring the task definition the server attached.
func (d *WorkflowDAG) synthesizeConfig(ref string) *schema.TaskConfig {
	if cfg, ok := d.configs[ref]; ok {
		return cfg
	}
	last := d.index.last(ref)
	if last == nil {
		return nil
	}
	if last.WorkflowTask != nil {
		cfg := *last.WorkflowTask
		cfg.TaskReferenceName = ref
		return &cfg
	}
	name := last.TaskDefName
	if name == "" {
		name = ref
	}
	return &schema.TaskConfig{Name: name, TaskReferenceName: ref, Type: last.TaskType}
}
