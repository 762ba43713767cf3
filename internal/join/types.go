// Package join implements the client-side, sample-based join engine used for
// previewing virtual joined tables and stage relationships.
//
// The engine here is a preview approximation, not the production join. When a
// connector can compute a join server-side (PreviewJoin), that result is
// authoritative and preferred; this package is the fallback when that call
// fails or the source has no join capability (flat files, REST). Two
// deliberate approximations follow from working on small samples:
//
//  1. Each joined table is evaluated against the primary row only. Columns
//     contributed by an earlier join in the same pass are not reconciled
//     with later joins, so multi-way joins are not combinatorially exact.
//  2. Output is capped at the configured sample size.
//
// Do not promote this algorithm into an executor; it exists so an operator
// can eyeball join conditions before committing a configuration.
package join

import (
	"fmt"
	"strings"
)

// Type enumerates the supported join semantics.
type Type string

const (
	Inner Type = "inner"
	Left  Type = "left"
	Right Type = "right"
	Full  Type = "full"
)

// Valid reports whether t is one of the supported join types.
func (t Type) Valid() bool {
	switch t {
	case Inner, Left, Right, Full:
		return true
	}
	return false
}

// Operator enumerates the supported condition operators.
type Operator string

const (
	OpEq   Operator = "="
	OpNeq  Operator = "!="
	OpGt   Operator = ">"
	OpLt   Operator = "<"
	OpGte  Operator = ">="
	OpLte  Operator = "<="
	OpLike Operator = "LIKE"
	OpIn   Operator = "IN"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEq, OpNeq, OpGt, OpLt, OpGte, OpLte, OpLike, OpIn:
		return true
	}
	return false
}

// Condition is one predicate of a join clause: primary-side SourceField
// compared against joined-side TargetField. All conditions of a clause must
// hold for a pair of rows to match (conjunctive).
type Condition struct {
	SourceField string   `json:"source_field"`
	TargetField string   `json:"target_field"`
	Operator    Operator `json:"operator"`
}

// Clause describes one table joined against the primary table.
type Clause struct {
	Table      string      `json:"table"`
	JoinType   Type        `json:"join_type"`
	Conditions []Condition `json:"conditions"`
	Alias      string      `json:"alias,omitempty"`
}

// ColumnPrefix returns the prefix under which the clause's columns appear in
// joined output: the alias when set, the table name otherwise.
func (c Clause) ColumnPrefix() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Table
}

// PreviewError marks a non-fatal preview failure: a condition referencing a
// field absent from its table, an unknown operator, and similar definition
// errors that are validated lazily at compute time. Callers surface it to the
// operator and keep the configuration editable; it never blocks a save.
type PreviewError struct {
	Detail string
}

func (e *PreviewError) Error() string {
	return fmt.Sprintf("join preview: %s", e.Detail)
}

func previewErrorf(format string, args ...any) *PreviewError {
	return &PreviewError{Detail: fmt.Sprintf(format, args...)}
}

// qualify builds the output column name for a joined column.
func qualify(prefix, col string) string {
	if prefix == "" {
		return col
	}
	return prefix + "." + col
}

// hasColumn reports whether name appears in cols, case-insensitively.
func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}
