// Package mapping pairs source fields with target entity fields for one
// stage, applying the advisory type classification to each pair.
//
// The engine enforces the single structural rule of field mapping: at most
// one source field feeds a given target field. Re-mapping a target replaces
// the previous mapping rather than duplicating it. Type incompatibility is
// never a structural error here; incompatible pairs are stored with their
// verdict and it is the graph validator's job to block a save until the
// operator acknowledges them.
package mapping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"importkit/internal/schema"
)

// TargetField is one field of a target entity.
type TargetField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// TargetEntity is the target-domain entity a stage lands rows in. The field
// list comes from the consuming application and is treated as read-only.
type TargetEntity struct {
	Name   string        `json:"name"`
	Fields []TargetField `json:"fields"`
}

// Field returns the named target field, matching case-insensitively, or nil.
func (e *TargetEntity) Field(name string) *TargetField {
	for i := range e.Fields {
		if strings.EqualFold(e.Fields[i].Name, name) {
			return &e.Fields[i]
		}
	}
	return nil
}

// TransformConvert tags a mapping whose types are merely compatible: the
// executor must insert a coercion step for it.
const TransformConvert = "convert"

// Mapping is one source-to-target field pairing.
type Mapping struct {
	ID          string `json:"id"`
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`

	// Transform is empty for exact pairs and TransformConvert for
	// compatible ones.
	Transform string `json:"transform,omitempty"`

	// Compatibility records the classifier's verdict at mapping time.
	Compatibility schema.Compatibility `json:"compatibility"`

	// Acknowledged marks an incompatible pair the operator has explicitly
	// accepted; only acknowledged incompatible mappings pass validation.
	Acknowledged bool `json:"acknowledged,omitempty"`
}

// Engine edits the mapping set of one stage.
type Engine struct {
	source   []schema.SourceField
	target   TargetEntity
	mappings []Mapping
}

// NewEngine builds an engine over a stage's bound source fields and target
// entity, seeded with the stage's existing mappings.
func NewEngine(source []schema.SourceField, target TargetEntity, existing []Mapping) *Engine {
	return &Engine{
		source:   source,
		target:   target,
		mappings: append([]Mapping(nil), existing...),
	}
}

// Add maps sourceField onto targetField. Both must exist on their sides. If
// the target field is already mapped, the previous mapping is replaced. The
// new mapping carries the classifier's verdict and, for compatible pairs,
// the convert transform tag.
func (e *Engine) Add(sourceField, targetField string) (Mapping, error) {
	src := e.sourceByName(sourceField)
	if src == nil {
		return Mapping{}, fmt.Errorf("mapping: source field %q not found on bound table", sourceField)
	}
	dst := e.target.Field(targetField)
	if dst == nil {
		return Mapping{}, fmt.Errorf("mapping: target field %q not found on entity %q", targetField, e.target.Name)
	}

	verdict := schema.Classify(src.Type, dst.Type)
	m := Mapping{
		ID:            uuid.NewString(),
		SourceField:   src.Name,
		TargetField:   dst.Name,
		Compatibility: verdict,
	}
	if verdict == schema.Compatible {
		m.Transform = TransformConvert
	}

	// One source feeds one target: replace, never duplicate.
	for i := range e.mappings {
		if strings.EqualFold(e.mappings[i].TargetField, dst.Name) {
			e.mappings[i] = m
			return m, nil
		}
	}
	e.mappings = append(e.mappings, m)
	return m, nil
}

// Remove deletes the mapping with the given id.
func (e *Engine) Remove(id string) error {
	for i := range e.mappings {
		if e.mappings[i].ID == id {
			e.mappings = append(e.mappings[:i], e.mappings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("mapping: id %q not found", id)
}

// Acknowledge marks an incompatible mapping as operator-accepted.
func (e *Engine) Acknowledge(id string) error {
	for i := range e.mappings {
		if e.mappings[i].ID == id {
			e.mappings[i].Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("mapping: id %q not found", id)
}

// Mappings returns a copy of the current mapping set, suitable for writing
// back onto the stage.
func (e *Engine) Mappings() []Mapping {
	return append([]Mapping(nil), e.mappings...)
}

// RequiredMissing returns target fields marked required that no mapping
// feeds yet.
func (e *Engine) RequiredMissing() []TargetField {
	var out []TargetField
	for _, tf := range e.target.Fields {
		if !tf.Required {
			continue
		}
		mapped := false
		for _, m := range e.mappings {
			if strings.EqualFold(m.TargetField, tf.Name) {
				mapped = true
				break
			}
		}
		if !mapped {
			out = append(out, tf)
		}
	}
	return out
}

func (e *Engine) sourceByName(name string) *schema.SourceField {
	for i := range e.source {
		if strings.EqualFold(e.source[i].Name, name) {
			return &e.source[i]
		}
	}
	return nil
}

// UnacknowledgedIncompatible filters a stage's stored mappings down to the
// incompatible pairs the operator has not accepted. The graph validator
// turns each into a blocking issue.
func UnacknowledgedIncompatible(mappings []Mapping) []Mapping {
	var out []Mapping
	for _, m := range mappings {
		if m.Compatibility == schema.Incompatible && !m.Acknowledged {
			out = append(out, m)
		}
	}
	return out
}
