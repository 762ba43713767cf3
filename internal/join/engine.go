package join

import (
	"strings"

	"importkit/pkg/records"
)

// DefaultSampleSize caps preview output when the caller does not configure
// a sample size.
const DefaultSampleSize = 5

// Input is one table's sampled contribution to a join computation.
type Input struct {
	Clause  Clause
	Columns []string
	Rows    []records.Record
}

// Result is a computed joined sample.
type Result struct {
	Columns []string
	Rows    []records.Record
}

// Compute joins the primary sample against each joined input in declaration
// order and returns at most sampleSize output rows (DefaultSampleSize when
// sampleSize <= 0).
//
// Joined columns appear in the output qualified by the clause's alias (or
// table name): "orders.id". Primary columns keep their plain names. Each
// clause is matched against the primary row's own fields only; see the
// package comment for the approximations this implies.
//
// Definition errors (a condition naming a field absent from its table, an
// unsupported operator or join type) surface as *PreviewError.
func Compute(primaryCols []string, primaryRows []records.Record, joined []Input, sampleSize int) (*Result, error) {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	if len(primaryRows) > sampleSize {
		primaryRows = primaryRows[:sampleSize]
	}

	if err := checkDefinitions(primaryCols, joined); err != nil {
		return nil, err
	}

	outCols := append([]string(nil), primaryCols...)
	for _, in := range joined {
		prefix := in.Clause.ColumnPrefix()
		for _, c := range in.Columns {
			outCols = append(outCols, qualify(prefix, c))
		}
	}

	working := make([]records.Record, 0, len(primaryRows))
	for _, r := range primaryRows {
		working = append(working, r.Clone())
	}

	for _, in := range joined {
		prefix := in.Clause.ColumnPrefix()
		next := make([]records.Record, 0, len(working))

		// Track joined rows that matched at least one primary row; right and
		// full joins emit the leftovers with nulled primary columns.
		matchedJoined := make([]bool, len(in.Rows))

		for _, base := range working {
			matched := false
			for ji, jr := range in.Rows {
				if !rowsMatch(base, jr, in.Clause.Conditions) {
					continue
				}
				matched = true
				matchedJoined[ji] = true
				next = append(next, mergeJoined(base, jr, in.Columns, prefix))
			}
			if !matched {
				switch in.Clause.JoinType {
				case Inner, Right:
					// dropped
				case Left, Full:
					next = append(next, mergeNulls(base, in.Columns, prefix))
				}
			}
		}

		if in.Clause.JoinType == Right || in.Clause.JoinType == Full {
			for ji, jr := range in.Rows {
				if matchedJoined[ji] {
					continue
				}
				base := records.Record{}
				for _, c := range primaryCols {
					base[c] = nil
				}
				next = append(next, mergeJoined(base, jr, in.Columns, prefix))
			}
		}

		working = next
	}

	if len(working) > sampleSize {
		working = working[:sampleSize]
	}
	return &Result{Columns: outCols, Rows: working}, nil
}

// checkDefinitions performs the lazy definition validation: every condition
// must name an existing field on its side and carry a known operator, and
// every clause a known join type.
func checkDefinitions(primaryCols []string, joined []Input) error {
	for _, in := range joined {
		if !in.Clause.JoinType.Valid() {
			return previewErrorf("table %q: unknown join type %q", in.Clause.Table, in.Clause.JoinType)
		}
		if len(in.Clause.Conditions) == 0 {
			return previewErrorf("table %q: at least one join condition is required", in.Clause.Table)
		}
		for _, c := range in.Clause.Conditions {
			if !c.Operator.Valid() {
				return previewErrorf("table %q: unknown operator %q", in.Clause.Table, c.Operator)
			}
			if !hasColumn(primaryCols, c.SourceField) {
				return previewErrorf("table %q: source field %q not present on primary table", in.Clause.Table, c.SourceField)
			}
			if !hasColumn(in.Columns, c.TargetField) {
				return previewErrorf("table %q: target field %q not present on joined table", in.Clause.Table, c.TargetField)
			}
		}
	}
	return nil
}

// rowsMatch reports whether all conditions hold between a primary-side row
// and a joined-table row.
func rowsMatch(primary, joined records.Record, conds []Condition) bool {
	for _, c := range conds {
		if !evalCondition(primary[c.SourceField], joined[c.TargetField], c.Operator) {
			return false
		}
	}
	return true
}

// evalCondition applies one operator to a (primary value, joined value) pair.
//
// Equality operators compare canonical string renderings so that 42 matches
// "42" across differently typed sources. Ordering operators require both
// sides to coerce to numbers; rows with non-numeric values never match.
// LIKE is case-insensitive substring containment; IN treats the joined value
// as a comma-separated list of candidates.
func evalCondition(src, dst any, op Operator) bool {
	switch op {
	case OpEq:
		return normString(src) == normString(dst)
	case OpNeq:
		return normString(src) != normString(dst)
	case OpGt, OpLt, OpGte, OpLte:
		a, okA := records.Float(src)
		b, okB := records.Float(dst)
		if !okA || !okB {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpLt:
			return a < b
		case OpGte:
			return a >= b
		default:
			return a <= b
		}
	case OpLike:
		return strings.Contains(strings.ToLower(normString(src)), strings.ToLower(normString(dst)))
	case OpIn:
		want := normString(src)
		for _, cand := range strings.Split(records.String(dst), ",") {
			if strings.TrimSpace(cand) == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func normString(v any) string {
	return strings.TrimSpace(records.String(v))
}

func mergeJoined(base, jr records.Record, cols []string, prefix string) records.Record {
	out := base.Clone()
	for _, c := range cols {
		out[qualify(prefix, c)] = jr[c]
	}
	return out
}

func mergeNulls(base records.Record, cols []string, prefix string) records.Record {
	out := base.Clone()
	for _, c := range cols {
		out[qualify(prefix, c)] = nil
	}
	return out
}
