package workflow

import (
	"context"
	"fmt"
)

// StepName identifies a pipeline state.
type StepName string

const (
	StepRecallMemory    StepName = "recall_memory"
	StepRecallDocuments StepName = "recall_documents"
	StepReason          StepName = "reason"
	StepCommitMemory    StepName = "commit_memory"
	StepDone            StepName = "done"
)

// EntryStep is where every fresh run begins.
const EntryStep = StepRecallMemory

// transitions is the fixed linear topology.
var transitions = map[StepName]StepName{
	StepRecallMemory:    StepRecallDocuments,
	StepRecallDocuments: StepReason,
	StepReason:          StepCommitMemory,
	StepCommitMemory:    StepDone,
}

// Next returns the state that follows step.
func Next(step StepName) (StepName, bool) {
	next, ok := transitions[step]
	return next, ok
}

// StepFunc transforms the state in place. Steps receive a private copy, so a
// failed step never leaks partial writes into the run.
type StepFunc func(ctx context.Context, state *State) error

// Registry maps step names to their functions.
type Registry struct {
	steps map[StepName]StepFunc
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[StepName]StepFunc)}
}

// Register binds fn to name and returns the registry for chaining.
func (r *Registry) Register(name StepName, fn StepFunc) *Registry {
	r.steps[name] = fn
	return r
}

// Lookup returns the function registered for name.
func (r *Registry) Lookup(name StepName) (StepFunc, bool) {
	fn, ok := r.steps[name]
	return fn, ok
}

// Graph is a compiled, validated pipeline.
type Graph struct {
	entry StepName
	order []StepName
	steps map[StepName]StepFunc
}

// Compile walks the transition table from EntryStep to StepDone and checks that
// every state on the way has a registered function.
func Compile(reg *Registry) (*Graph, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}

	g := &Graph{
		entry: EntryStep,
		steps: make(map[StepName]StepFunc, len(transitions)),
	}

	seen := make(map[StepName]bool)
	for cur := EntryStep; cur != StepDone; {
		if seen[cur] {
			return nil, fmt.Errorf("cycle detected at step %q", cur)
		}
		seen[cur] = true

		fn, ok := reg.Lookup(cur)
		if !ok || fn == nil {
			return nil, fmt.Errorf("step %q is not registered", cur)
		}
		g.steps[cur] = fn
		g.order = append(g.order, cur)

		next, ok := Next(cur)
		if !ok {
			return nil, fmt.Errorf("step %q has no transition", cur)
		}
		cur = next
	}

	for name := range reg.steps {
		if !seen[name] {
			return nil, fmt.Errorf("step %q is registered but unreachable", name)
		}
	}

	return g, nil
}

// Entry returns the first step.
func (g *Graph) Entry() StepName {
	return g.entry
}

// Order returns the steps in execution order.
func (g *Graph) Order() []StepName {
	return append([]StepName(nil), g.order...)
}

func (g *Graph) step(name StepName) (StepFunc, bool) {
	fn, ok := g.steps[name]
	return fn, ok
}
