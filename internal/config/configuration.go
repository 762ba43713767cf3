package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"importkit/internal/source"
)

// SetSource replaces the source connection settings. Any change invalidates
// the previous connection test, so ConnectionTestPassed is always reset; a
// fresh test must set it again via MarkConnectionTested.
func (c *ImportConfiguration) SetSource(cfg source.Config) {
	c.Source = cfg
	c.ConnectionTestPassed = false
	c.touch()
}

// MarkConnectionTested records the outcome of a connection test.
func (c *ImportConfiguration) MarkConnectionTested(ok bool) {
	c.ConnectionTestPassed = ok
	c.touch()
}

// AddStage appends a stage. A zero Order is assigned the next free slot; an
// empty ID gets a fresh uuid. Duplicate ids and duplicate orders are
// rejected here so the invariant "Order unique within a configuration"
// holds structurally, not just at validation time.
func (c *ImportConfiguration) AddStage(s Stage) (Stage, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if c.StageByID(s.ID) != nil {
		return Stage{}, fmt.Errorf("config: stage id %q already exists", s.ID)
	}
	if s.Order == 0 {
		s.Order = c.nextOrder()
	}
	for _, other := range c.Stages {
		if other.Order == s.Order {
			return Stage{}, fmt.Errorf("config: stage order %d already used by %q", s.Order, other.Name)
		}
	}
	c.Stages = append(c.Stages, s)
	c.touch()
	return s, nil
}

// StageByID returns the stage with the given id, or nil.
func (c *ImportConfiguration) StageByID(id string) *Stage {
	for i := range c.Stages {
		if c.Stages[i].ID == id {
			return &c.Stages[i]
		}
	}
	return nil
}

// DeleteStage removes a stage and cascades: relationships touching it are
// dropped, other stages' dependency lists no longer reference it, and
// cross-stage mappings drawing from it are removed. The returned warnings
// describe each cascaded removal so the operator sees what went with the
// stage.
func (c *ImportConfiguration) DeleteStage(id string) ([]string, error) {
	idx := -1
	for i := range c.Stages {
		if c.Stages[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, fmt.Errorf("config: stage id %q not found", id)
	}
	name := c.Stages[idx].Name
	c.Stages = append(c.Stages[:idx], c.Stages[idx+1:]...)

	var warnings []string

	kept := c.Relationships[:0]
	for _, r := range c.Relationships {
		if r.FromStageID == id || r.ToStageID == id {
			warnings = append(warnings, fmt.Sprintf(
				"dropped relationship %s (%s -> %s) referencing deleted stage %q",
				r.ID, r.FromStageID, r.ToStageID, name))
			continue
		}
		kept = append(kept, r)
	}
	c.Relationships = kept

	for i := range c.Stages {
		s := &c.Stages[i]
		deps := s.DependsOn[:0]
		for _, dep := range s.DependsOn {
			if dep == id {
				warnings = append(warnings, fmt.Sprintf(
					"stage %q no longer depends on deleted stage %q", s.Name, name))
				continue
			}
			deps = append(deps, dep)
		}
		s.DependsOn = deps

		for target, ref := range s.CrossStageMappings {
			if ref.StageID == id {
				warnings = append(warnings, fmt.Sprintf(
					"stage %q: removed cross-stage mapping %s <- %s (stage %q deleted)",
					s.Name, target, ref, name))
				delete(s.CrossStageMappings, target)
			}
		}
	}

	c.touch()
	return warnings, nil
}

// AddRelationship appends a relationship after checking both endpoints
// exist.
func (c *ImportConfiguration) AddRelationship(r Relationship) (Relationship, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if c.StageByID(r.FromStageID) == nil {
		return Relationship{}, fmt.Errorf("config: relationship from-stage %q not found", r.FromStageID)
	}
	if c.StageByID(r.ToStageID) == nil {
		return Relationship{}, fmt.Errorf("config: relationship to-stage %q not found", r.ToStageID)
	}
	c.Relationships = append(c.Relationships, r)
	c.touch()
	return r, nil
}

// DeleteRelationship removes a relationship by id.
func (c *ImportConfiguration) DeleteRelationship(id string) error {
	for i := range c.Relationships {
		if c.Relationships[i].ID == id {
			c.Relationships = append(c.Relationships[:i], c.Relationships[i+1:]...)
			c.touch()
			return nil
		}
	}
	return fmt.Errorf("config: relationship id %q not found", id)
}

// AddJoinedTable appends a joined table definition. The primary table must
// not appear in its own join list; that much is structural and checked
// eagerly, while field-level validity stays lazy (checked at preview time).
func (c *ImportConfiguration) AddJoinedTable(jt JoinedTableDefinition) (JoinedTableDefinition, error) {
	if jt.ID == "" {
		jt.ID = uuid.NewString()
	}
	if strings.TrimSpace(jt.Name) == "" {
		return JoinedTableDefinition{}, fmt.Errorf("config: joined table name must not be empty")
	}
	for _, cl := range jt.Joins {
		if strings.EqualFold(cl.Table, jt.PrimaryTable) {
			return JoinedTableDefinition{}, fmt.Errorf(
				"config: joined table %q joins its own primary table %q", jt.Name, jt.PrimaryTable)
		}
	}
	if c.JoinedTable(jt.Name) != nil {
		return JoinedTableDefinition{}, fmt.Errorf("config: joined table %q already exists", jt.Name)
	}
	c.JoinedTables = append(c.JoinedTables, jt)
	c.touch()
	return jt, nil
}

// DeleteJoinedTable removes a joined table definition by id.
func (c *ImportConfiguration) DeleteJoinedTable(id string) error {
	for i := range c.JoinedTables {
		if c.JoinedTables[i].ID == id {
			c.JoinedTables = append(c.JoinedTables[:i], c.JoinedTables[i+1:]...)
			c.touch()
			return nil
		}
	}
	return fmt.Errorf("config: joined table id %q not found", id)
}

// JoinedTable returns the joined table definition with the given name
// (case-insensitive), or nil.
func (c *ImportConfiguration) JoinedTable(name string) *JoinedTableDefinition {
	for i := range c.JoinedTables {
		if strings.EqualFold(c.JoinedTables[i].Name, name) {
			return &c.JoinedTables[i]
		}
	}
	return nil
}

// HasTable reports whether name resolves to either a physical table of the
// cached schema or a joined table definition.
func (c *ImportConfiguration) HasTable(name string) bool {
	if c.JoinedTable(name) != nil {
		return true
	}
	return c.Schema != nil && c.Schema.Table(name) != nil
}

func (c *ImportConfiguration) nextOrder() int {
	max := 0
	for _, s := range c.Stages {
		if s.Order > max {
			max = s.Order
		}
	}
	return max + 1
}

func (c *ImportConfiguration) touch() {
	c.UpdatedAt = time.Now().UTC()
}
