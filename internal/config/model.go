// Package config defines the canonical, JSON-serializable model of an import
// configuration: the aggregate an operator edits while designing a
// multi-stage import, before any data is moved.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and
//     backwards-compatible whenever possible; configurations round-trip
//     through JSON for persistence.
//  2. Clarity: field names in Go mirror the JSON structure stored by the
//     configuration store.
//  3. No live object links: stages reference each other by id only, so the
//     validator and compiler always operate on id-indexed maps and the
//     aggregate never forms ownership cycles.
package config

import (
	"time"

	"github.com/google/uuid"

	"importkit/internal/join"
	"importkit/internal/mapping"
	"importkit/internal/schema"
	"importkit/internal/source"
)

// Stage is one step of the import pipeline: a binding of a source table
// (physical or virtual/joined) to a target entity, with field mappings and
// declared dependencies on other stages.
type Stage struct {
	ID string `json:"id"`

	// Order is a display/tiebreak attribute, unique within a configuration.
	// Execution order is computed from DependsOn; Order only breaks ties.
	Order int `json:"order"`

	Name string `json:"name"`

	// SourceTable names either a physical table from the discovered schema
	// or a JoinedTableDefinition by its Name.
	SourceTable string `json:"source_table"`

	// TargetEntity names the target-domain entity this stage lands rows in.
	TargetEntity string `json:"target_entity"`

	// FieldMappings pairs source fields with target entity fields.
	FieldMappings []mapping.Mapping `json:"field_mappings,omitempty"`

	// FieldOverrides carries per-field operator overrides (constant values,
	// format hints). The shape is interpreted by the executor.
	FieldOverrides Options `json:"field_overrides,omitempty"`

	// DependsOn lists ids of stages that must run before this one.
	DependsOn []string `json:"depends_on,omitempty"`

	// CrossStageMappings binds a target field of this stage to a field
	// produced by an earlier stage.
	CrossStageMappings map[string]CrossStageRef `json:"cross_stage_mappings,omitempty"`

	Enabled bool `json:"enabled"`
}

// Relationship declares how two stages' output entities relate after import.
// It is distinct from a joined table: joins combine source tables before a
// stage consumes them, relationships describe the imported entities.
type Relationship struct {
	ID           string           `json:"id"`
	FromStageID  string           `json:"from_stage_id"`
	ToStageID    string           `json:"to_stage_id"`
	SourceField  string           `json:"source_field"`
	TargetField  string           `json:"target_field"`
	RelationType RelationType     `json:"relation_type"`
	JoinType     join.Type        `json:"join_type,omitempty"`
	Conditions   []join.Condition `json:"conditions,omitempty"`
}

// RelationType enumerates relationship cardinalities.
type RelationType string

const (
	OneToOne   RelationType = "one-to-one"
	OneToMany  RelationType = "one-to-many"
	ManyToOne  RelationType = "many-to-one"
	ManyToMany RelationType = "many-to-many"
)

// JoinedTableDefinition is a named, reusable virtual table computed on
// demand by joining physical source tables. It has no storage of its own.
type JoinedTableDefinition struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	PrimaryTable string        `json:"primary_table"`
	Joins        []join.Clause `json:"joins"`

	// SelectedFields optionally narrows the virtual table's columns; empty
	// means all columns of the primary and joined tables.
	SelectedFields []string `json:"selected_fields,omitempty"`

	// Where optionally filters primary rows before joining. Conditions are
	// evaluated against the primary table only.
	Where []join.Condition `json:"where,omitempty"`
}

// ImportConfiguration is the aggregate root an operator edits. It owns its
// stages, relationships, and joined table definitions exclusively.
type ImportConfiguration struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Source describes where records come from.
	Source source.Config `json:"source"`

	// ConnectionTestPassed is set only after a successful connection test
	// and reset whenever the source config changes. Use SetSource to keep
	// the invariant.
	ConnectionTestPassed bool `json:"connection_test_passed"`

	// Schema caches the last discovered source schema snapshot.
	Schema *schema.SourceSchema `json:"schema,omitempty"`

	// SampleSize caps preview row counts; zero means the engine default.
	SampleSize int `json:"sample_size,omitempty"`

	Stages        []Stage                 `json:"stages,omitempty"`
	Relationships []Relationship          `json:"relationships,omitempty"`
	JoinedTables  []JoinedTableDefinition `json:"joined_tables,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an empty draft configuration.
func New(name string) *ImportConfiguration {
	now := time.Now().UTC()
	return &ImportConfiguration{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
