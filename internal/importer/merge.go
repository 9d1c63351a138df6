package importer

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// MergeStep is a zero-argument stored procedure run after the append.
type MergeStep struct {
	Name  string // routine name, matched exactly against the catalog
	Label string // progress message
}

// DefaultMergeSteps returns the reconciliation procedures in the order they
// must run. Each one is additive: it reconciles staging rows into the
// canonical tables without truncating them.
func DefaultMergeSteps() []MergeStep {
	return []MergeStep{
		{Name: "merge_person_from_exports_with_audit", Label: "Merging people..."},
		{Name: "merge_households_from_pantry", Label: "Updating households..."},
		{Name: "sweep_person_flavors_by_recency", Label: "Sweeping latest fields..."},
	}
}

// destructiveRoutines rebuild the canonical tables from scratch. The merger
// never calls them.
var destructiveRoutines = map[string]struct{}{
	"make_everything": {},
}

// IsDestructive reports whether name is a routine the merger refuses to call.
func IsDestructive(name string) bool {
	_, ok := destructiveRoutines[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Merger runs merge steps strictly in order.
type Merger struct {
	catalog store.Catalog
	caller  store.Caller
	steps   []MergeStep
}

// NewMerger returns a merger over steps; nil steps means DefaultMergeSteps.
func NewMerger(catalog store.Catalog, caller store.Caller, steps []MergeStep) *Merger {
	if steps == nil {
		steps = DefaultMergeSteps()
	}
	return &Merger{
		catalog: catalog,
		caller:  caller,
		steps:   append([]MergeStep(nil), steps...),
	}
}

// mergeHooks observe a run. Both are optional.
type mergeHooks struct {
	start  func(MergeStep)
	finish func(step MergeStep, elapsed time.Duration, err error)
}

// Run executes every step in order. Before each step it refuses destructive
// routines and checks that the routine exists. The first failure stops the
// run; steps that already ran are not undone. Run returns the names of the
// steps that completed.
func (m *Merger) Run(ctx context.Context, hooks mergeHooks) ([]string, error) {
	var ran []string
	for _, step := range m.steps {
		if IsDestructive(step.Name) {
			return ran, &Error{Kind: ErrDestructiveRoutine, Step: step.Name}
		}

		exists, err := m.catalog.RoutineExists(ctx, step.Name)
		if err != nil {
			return ran, &Error{Kind: ErrMergeFailure, Step: step.Name, Err: err}
		}
		if !exists {
			return ran, &Error{Kind: ErrMergeRoutineMissing, Step: step.Name}
		}

		if hooks.start != nil {
			hooks.start(step)
		}
		start := time.Now()
		err = m.caller.CallRoutine(ctx, step.Name)
		if hooks.finish != nil {
			hooks.finish(step, time.Since(start), err)
		}
		if err != nil {
			return ran, &Error{Kind: ErrMergeFailure, Step: step.Name, Err: err}
		}
		ran = append(ran, step.Name)
	}
	return ran, nil
}
