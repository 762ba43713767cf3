// Package records defines the row representation shared by connectors,
// the join engine, and preview rendering.
//
// A Record is a flat map from column name to value. Values are whatever the
// connector produced: strings for flat-file sources, driver-native types for
// database sources, decoded JSON scalars for REST sources. Consumers that
// need typed values (comparisons, coercions) go through the helpers here
// rather than type-asserting at every call site.
package records

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one row keyed by column name. A nil value means SQL NULL (or an
// absent field on semi-structured sources).
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String renders a value the way previews and equality comparisons see it:
// nil -> "", time.Time -> RFC 3339, everything else via fmt. Using one
// canonical rendering keeps "=" comparisons cross-type-safe (42 matches "42").
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Float attempts a numeric reading of v. It reports false for nil, empty
// strings, and values with no numeric interpretation.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case []byte:
		return Float(string(t))
	default:
		f, err := strconv.ParseFloat(String(v), 64)
		return f, err == nil
	}
}

// IsEmpty reports whether v is nil or renders to the empty string.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	return strings.TrimSpace(String(v)) == ""
}
