// Package dag reconstructs a workflow definition, optionally overlaid with
// the records of one execution, into a single annotated graph.
//
// A build is a pure function of its inputs: the definition is flattened into
// an antecedent chain, nested fork branches, switch cases and loop bodies are
// expanded or collapsed into placeholders, and every node and edge is
// annotated with execution state. The resulting WorkflowDAG is read-only and
// answers the coordinate queries used by side panels.
package dag

import (
	"github.com/rendis/wfgraph/internal/graph"
	"github.com/rendis/wfgraph/pkg/schema"
)

// Reserved reference names and suffixes of synthesized nodes.
const (
	StartRef = "__start"
	FinalRef = "__final"

	ForkPlaceholderSuffix = "_DF_CHILDREN_PLACEHOLDER"
	LoopPlaceholderSuffix = "_LOOP_CHILDREN_PLACEHOLDER"
	LoopEndSuffix         = "-END"
	JoinSuffix            = "_join"

	// DefaultCaseValue labels edges into a switch's default branch.
	DefaultCaseValue = "default"

	// DefaultCollapseThreshold is the dynamic fork fanout at which children
	// are summarized by a placeholder instead of drawn individually.
	DefaultCollapseThreshold = 3
)

// Option configures a build.
type Option func(*options)

type options struct {
	collapseThreshold int
	strictOrder       bool
}

// WithCollapseThreshold overrides the dynamic fork collapse threshold.
// Values below 1 are ignored.
func WithCollapseThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.collapseThreshold = n
		}
	}
}

// WithStrictOrder rejects executions where a record names a parent that is
// only recorded later in the list.
func WithStrictOrder(strict bool) Option {
	return func(o *options) { o.strictOrder = strict }
}

func buildOptions(opts []Option) options {
	o := options{collapseThreshold: DefaultCollapseThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WorkflowDAG is a built graph plus the indexes needed to query it.
type WorkflowDAG struct {
	def   *schema.WorkflowDefinition
	graph *graph.Graph
	index *resultIndex // nil for definition-only builds
	opts  options

	configs   map[string]*schema.TaskConfig // static, synthesized and virtual configs by ref
	locations map[string]Location           // static tasks only
}

// NewFromDefinition builds the definition-only graph: every node unexecuted.
func NewFromDefinition(def *schema.WorkflowDefinition, opts ...Option) (*WorkflowDAG, error) {
	return build(def, nil, opts)
}

// NewFromExecution builds the graph of def overlaid with exec's records.
// When def is nil the definition embedded in the execution is used.
// Records must be in scheduling order; they are never reordered.
func NewFromExecution(def *schema.WorkflowDefinition, exec *schema.Execution, opts ...Option) (*WorkflowDAG, error) {
	if exec == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "execution is nil")
	}
	if def == nil {
		def = exec.WorkflowDefinition
	}
	return build(def, exec, opts)
}

func build(def *schema.WorkflowDefinition, exec *schema.Execution, opts []Option) (*WorkflowDAG, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	d := &WorkflowDAG{
		def:       def,
		graph:     graph.New(),
		opts:      buildOptions(opts),
		configs:   make(map[string]*schema.TaskConfig),
		locations: make(map[string]Location),
	}

	if err := d.locate(def.Tasks, Location{Slot: SlotRoot}); err != nil {
		return nil, err
	}

	if exec != nil {
		idx, err := newResultIndex(exec, d.opts.strictOrder)
		if err != nil {
			return nil, err
		}
		d.index = idx
	}

	if err := d.flatten(); err != nil {
		return nil, err
	}
	return d, nil
}

// Graph returns the built graph.
func (d *WorkflowDAG) Graph() *graph.Graph { return d.graph }

// Definition returns the definition the graph was built from.
func (d *WorkflowDAG) Definition() *schema.WorkflowDefinition { return d.def }

// HasExecution reports whether the graph carries an execution overlay.
func (d *WorkflowDAG) HasExecution() bool { return d.index != nil }
