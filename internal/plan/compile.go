// Package plan compiles a validated import configuration into an ordered
// execution plan.
//
// The compiler is a pure function over the in-memory configuration: it
// topologically orders the enabled stages, breaks ties deterministically,
// and resolves every cross-stage field reference against the computed
// order. The result is handed to an executor that moves rows; nothing here
// performs I/O.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"importkit/internal/config"
	"importkit/internal/graph"
	"importkit/internal/mapping"
)

// CompileError blocks plan generation. It carries the validation issues
// when compilation was refused because the graph itself is broken.
type CompileError struct {
	Detail string
	Issues []graph.Issue
}

func (e *CompileError) Error() string {
	if len(e.Issues) == 0 {
		return "compile: " + e.Detail
	}
	msgs := make([]string, len(e.Issues))
	for i, iss := range e.Issues {
		msgs[i] = iss.Error()
	}
	return fmt.Sprintf("compile: %s: %s", e.Detail, strings.Join(msgs, "; "))
}

func compileErrorf(format string, args ...any) *CompileError {
	return &CompileError{Detail: fmt.Sprintf(format, args...)}
}

// ResolvedRef is a cross-stage reference bound to a concrete earlier step.
type ResolvedRef struct {
	StageID   string `json:"stage_id"`
	FieldName string `json:"field_name"`

	// Position is the producing step's index within the plan.
	Position int `json:"position"`
}

// Step is one unit of the execution plan: a stage bound to its position in
// the computed order, with cross-stage references already resolved.
type Step struct {
	StageID      string            `json:"stage_id"`
	Name         string            `json:"name"`
	Position     int               `json:"position"`
	SourceTable  string            `json:"source_table"`
	TargetEntity string            `json:"target_entity"`
	Mappings     []mapping.Mapping `json:"mappings,omitempty"`

	// CrossStage maps a target field of this step to the earlier step's
	// field its value is drawn from.
	CrossStage map[string]ResolvedRef `json:"cross_stage,omitempty"`
}

// Plan is the compiled, cycle-free, reference-resolved execution order.
type Plan struct {
	ConfigID string `json:"config_id"`
	Steps    []Step `json:"steps"`
}

// Compile orders the enabled stages of a configuration for execution.
//
// It refuses to compile while the graph validator reports errors; warnings
// do not block. Ordering is a stable topological sort of the DependsOn
// edges: ready stages are emitted lowest declared Order first, stage id
// breaking exact ties, so the same configuration always compiles to the
// same plan. Edges into disabled stages are dropped (the validator already
// warned about them), but a cross-stage reference to a stage outside the
// plan, or at the same or a later position, is a compile error.
func Compile(c *config.ImportConfiguration) (*Plan, error) {
	if issues := graph.Errors(graph.Validate(c)); len(issues) > 0 {
		return nil, &CompileError{Detail: "configuration has validation errors", Issues: issues}
	}

	var enabled []*config.Stage
	for i := range c.Stages {
		if c.Stages[i].Enabled {
			enabled = append(enabled, &c.Stages[i])
		}
	}
	inPlan := make(map[string]*config.Stage, len(enabled))
	for _, s := range enabled {
		inPlan[s.ID] = s
	}

	order, err := sortStages(enabled, inPlan)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(order))
	for i, s := range order {
		position[s.ID] = i
	}

	p := &Plan{ConfigID: c.ID, Steps: make([]Step, 0, len(order))}
	for i, s := range order {
		step := Step{
			StageID:      s.ID,
			Name:         s.Name,
			Position:     i,
			SourceTable:  s.SourceTable,
			TargetEntity: s.TargetEntity,
			Mappings:     append([]mapping.Mapping(nil), s.FieldMappings...),
		}
		if len(s.CrossStageMappings) > 0 {
			step.CrossStage = make(map[string]ResolvedRef, len(s.CrossStageMappings))
			for target, ref := range s.CrossStageMappings {
				pos, ok := position[ref.StageID]
				if !ok {
					return nil, compileErrorf("stage %q: cross-stage mapping %s references stage %q, which is not part of the plan",
						s.Name, target, ref.StageID)
				}
				if pos >= i {
					return nil, compileErrorf("stage %q: cross-stage mapping %s references stage %q, which does not run earlier",
						s.Name, target, ref.StageID)
				}
				step.CrossStage[target] = ResolvedRef{
					StageID:   ref.StageID,
					FieldName: ref.FieldName,
					Position:  pos,
				}
			}
		}
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// sortStages is Kahn's algorithm with a deterministic ready queue. The
// validator has already rejected cycles among all stages; a cycle can still
// surface here only if validation was skipped, so it is re-checked.
func sortStages(stages []*config.Stage, inPlan map[string]*config.Stage) ([]*config.Stage, error) {
	indegree := make(map[string]int, len(stages))
	dependents := make(map[string][]*config.Stage, len(stages))
	for _, s := range stages {
		indegree[s.ID] += 0
		for _, dep := range s.DependsOn {
			if _, ok := inPlan[dep]; !ok {
				continue
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s)
		}
	}

	var ready []*config.Stage
	for _, s := range stages {
		if indegree[s.ID] == 0 {
			ready = append(ready, s)
		}
	}

	byTie := func(a, b *config.Stage) bool {
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	}

	order := make([]*config.Stage, 0, len(stages))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return byTie(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, d := range dependents[next.ID] {
			indegree[d.ID]--
			if indegree[d.ID] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(order) != len(stages) {
		var stuck []string
		for _, s := range stages {
			if indegree[s.ID] > 0 {
				stuck = append(stuck, s.Name)
			}
		}
		sort.Strings(stuck)
		return nil, compileErrorf("dependency cycle among stages: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}
