package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CrossStageRef points at a field produced by another stage. On the wire it
// is the compact "stageId.fieldName" form; it is parsed exactly once, at the
// JSON boundary, so the validator and compiler always see the structured
// form and never re-parse strings.
type CrossStageRef struct {
	StageID   string
	FieldName string
}

// String renders the wire form.
func (r CrossStageRef) String() string {
	return r.StageID + "." + r.FieldName
}

// ParseCrossStageRef parses the "stageId.fieldName" wire form. The field
// name may itself contain dots; the split is on the first dot only.
func ParseCrossStageRef(s string) (CrossStageRef, error) {
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return CrossStageRef{}, fmt.Errorf("cross-stage reference %q: want \"stageId.fieldName\"", s)
	}
	return CrossStageRef{StageID: s[:i], FieldName: s[i+1:]}, nil
}

// MarshalJSON renders the compact wire form.
func (r CrossStageRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON parses the compact wire form.
func (r *CrossStageRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseCrossStageRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
