// Package graph statically validates the stage dependency graph of an
// import configuration.
//
// This is a linter, not a gate with side effects: Validate performs static
// checks over a decoded configuration and returns a list of issues (errors
// and warnings) that callers can surface in a CLI or tests. It never
// mutates the configuration and collects every finding in one pass, so the
// operator sees the full problem set instead of fixing errors one at a
// time.
package graph

import (
	"fmt"
	"strings"

	"importkit/internal/config"
	"importkit/internal/mapping"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a finding that blocks saving and compiling.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates an advisory finding that should be surfaced
	// but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the configuration (e.g. "stages[1].source_table",
// "joined_tables[0].joins"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error in contexts that expect one.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is of error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors filters issues down to error severity.
func Errors(issues []Issue) []Issue {
	var out []Issue
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			out = append(out, iss)
		}
	}
	return out
}

// Validate statically checks a configuration's stage graph.
//
// It checks that every enabled stage names a known source table, that no
// physical table feeds two enabled stages, that dependencies reference
// existing stages, that no dependency cycle exists, and that every
// incompatible field mapping has been explicitly acknowledged. Disabled
// stages are skipped for table checks but still participate in dependency
// edges, since enabling them later must not invalidate the graph shape.
func Validate(c *config.ImportConfiguration) []Issue {
	var issues []Issue

	byID := make(map[string]*config.Stage, len(c.Stages))
	for i := range c.Stages {
		byID[c.Stages[i].ID] = &c.Stages[i]
	}

	issues = append(issues, validateTables(c)...)
	issues = append(issues, validateOrders(c)...)
	issues = append(issues, validateDependencies(c, byID)...)
	issues = append(issues, validateMappings(c)...)
	issues = append(issues, validateJoinedTables(c)...)
	issues = append(issues, detectCycles(c, byID)...)

	return issues
}

// validateTables checks table bindings of enabled stages: a stage without a
// source table cannot run, a stage bound to an unknown table cannot run,
// and two enabled stages on the same physical table would import the same
// rows twice.
func validateTables(c *config.ImportConfiguration) []Issue {
	var issues []Issue

	// physical table name (lowercased) -> index of the first enabled stage
	// bound to it.
	seen := make(map[string]int)

	for i := range c.Stages {
		s := &c.Stages[i]
		if !s.Enabled {
			continue
		}
		path := fmt.Sprintf("stages[%d].source_table", i)

		table := strings.TrimSpace(s.SourceTable)
		if table == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("stage %q has no source table", s.Name),
			})
			continue
		}
		// Without a discovered schema only structural checks are possible.
		if c.Schema != nil && !c.HasTable(table) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("stage %q references unknown table %q", s.Name, table),
			})
			continue
		}

		// Only physical tables are exclusive; several stages may consume the
		// same joined table, which has no storage of its own.
		if c.JoinedTable(table) != nil {
			continue
		}
		key := strings.ToLower(table)
		if first, dup := seen[key]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message: fmt.Sprintf("table %q is already used by enabled stage %q",
					table, c.Stages[first].Name),
			})
			continue
		}
		seen[key] = i
	}

	return issues
}

// validateOrders checks that declared orders are positive and unique. Order
// only breaks topological ties, but a duplicate makes the tie-break, and
// therefore the compiled plan, nondeterministic.
func validateOrders(c *config.ImportConfiguration) []Issue {
	var issues []Issue
	seen := make(map[int]int)
	for i := range c.Stages {
		s := &c.Stages[i]
		path := fmt.Sprintf("stages[%d].order", i)
		if s.Order <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("stage %q has non-positive order %d", s.Name, s.Order),
			})
			continue
		}
		if first, dup := seen[s.Order]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message: fmt.Sprintf("order %d is already used by stage %q",
					s.Order, c.Stages[first].Name),
			})
			continue
		}
		seen[s.Order] = i
	}
	return issues
}

// validateDependencies checks that every dependency edge points at an
// existing stage and warns when a stage depends on a disabled one.
func validateDependencies(c *config.ImportConfiguration, byID map[string]*config.Stage) []Issue {
	var issues []Issue
	for i := range c.Stages {
		s := &c.Stages[i]
		for j, dep := range s.DependsOn {
			path := fmt.Sprintf("stages[%d].depends_on[%d]", i, j)
			target, ok := byID[dep]
			if !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("stage %q depends on unknown stage id %q", s.Name, dep),
				})
				continue
			}
			if s.Enabled && !target.Enabled {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path,
					Message: fmt.Sprintf("stage %q depends on disabled stage %q",
						s.Name, target.Name),
				})
			}
		}
	}
	return issues
}

// validateMappings flags incompatible field mappings the operator has not
// acknowledged. Acknowledged ones pass; the operator accepted the coercion
// risk.
func validateMappings(c *config.ImportConfiguration) []Issue {
	var issues []Issue
	for i := range c.Stages {
		s := &c.Stages[i]
		if !s.Enabled {
			continue
		}
		for _, m := range mapping.UnacknowledgedIncompatible(s.FieldMappings) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("stages[%d].field_mappings", i),
				Message: fmt.Sprintf("stage %q maps %q to %q with incompatible types; acknowledge or remove the mapping",
					s.Name, m.SourceField, m.TargetField),
			})
		}
	}
	return issues
}

// validateJoinedTables checks joined table definitions against the cached
// schema. Definitions may arrive straight from JSON, so the structural
// guards of the config package are re-checked here.
func validateJoinedTables(c *config.ImportConfiguration) []Issue {
	var issues []Issue
	for i := range c.JoinedTables {
		jt := &c.JoinedTables[i]
		if strings.TrimSpace(jt.PrimaryTable) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("joined_tables[%d].primary_table", i),
				Message:  fmt.Sprintf("joined table %q has no primary table", jt.Name),
			})
			continue
		}
		if c.Schema != nil && c.Schema.Table(jt.PrimaryTable) == nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("joined_tables[%d].primary_table", i),
				Message: fmt.Sprintf("joined table %q references unknown table %q",
					jt.Name, jt.PrimaryTable),
			})
		}
		for j, cl := range jt.Joins {
			path := fmt.Sprintf("joined_tables[%d].joins[%d]", i, j)
			if strings.EqualFold(cl.Table, jt.PrimaryTable) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("joined table %q joins its own primary table", jt.Name),
				})
			}
			if c.Schema != nil && c.Schema.Table(cl.Table) == nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message: fmt.Sprintf("joined table %q references unknown table %q",
						jt.Name, cl.Table),
				})
			}
			if len(cl.Conditions) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path,
					Message:  fmt.Sprintf("join of %q has no conditions", cl.Table),
				})
			}
		}
	}
	return issues
}

// detectCycles runs a depth-first traversal from every stage following
// DependsOn edges. A node revisited while still on the current traversal
// stack closes a directed cycle. Unknown dependency ids are skipped here;
// validateDependencies already reports them.
func detectCycles(c *config.ImportConfiguration, byID map[string]*config.Stage) []Issue {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current stack
		black = 2 // fully explored
	)
	state := make(map[string]int, len(c.Stages))

	var cyclePath []string
	var visit func(id string, trail []string) bool
	visit = func(id string, trail []string) bool {
		switch state[id] {
		case grey:
			cyclePath = append(trail, id)
			return true
		case black:
			return false
		}
		state[id] = grey
		s := byID[id]
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue
			}
			if visit(dep, append(trail, id)) {
				return true
			}
		}
		state[id] = black
		return false
	}

	var issues []Issue
	for i := range c.Stages {
		id := c.Stages[i].ID
		if state[id] != white {
			continue
		}
		if visit(id, nil) {
			names := make([]string, 0, len(cyclePath))
			for _, sid := range cyclePath {
				names = append(names, byID[sid].Name)
			}
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "stages",
				Message:  "dependency cycle: " + strings.Join(names, " -> "),
			})
			// Retire the nodes of the aborted traversal so each independent
			// cycle is reported once; overlapping cycles collapse into one
			// finding rather than flooding the operator.
			for sid, st := range state {
				if st == grey {
					state[sid] = black
				}
			}
			cyclePath = nil
		}
	}
	return issues
}
