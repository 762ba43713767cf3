package source

import (
	"fmt"
	"strings"

	"importkit/internal/join"
)

// Dialect captures the few syntax differences between the SQL backends that
// matter for building preview queries.
type Dialect struct {
	// QuoteIdent quotes one identifier (not a dotted path).
	QuoteIdent func(string) string
	// LimitClause renders the row cap for a SELECT. sql is the full query
	// without a cap; n is always > 0.
	LimitClause func(sql string, n int) string
	// LikePredicate renders "lhs contains rhs" for the backend's string
	// concatenation syntax. When nil, AnsiLike is used.
	LikePredicate func(lhs, rhs string) string
	// SupportsRight / SupportsFull gate join types the backend cannot
	// execute; BuildJoinSQL returns ErrJoinUnsupported for those so the
	// caller falls back to the local engine.
	SupportsRight bool
	SupportsFull  bool
}

// AnsiLike renders a containment LIKE with ANSI string concatenation.
func AnsiLike(lhs, rhs string) string {
	return fmt.Sprintf("%s LIKE '%%' || %s || '%%'", lhs, rhs)
}

// AnsiQuote quotes an identifier with double quotes (Postgres, SQLite).
func AnsiQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SuffixLimit appends "LIMIT n" (Postgres, MySQL, SQLite).
func SuffixLimit(sql string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", sql, n)
}

// joinKeyword maps a join type to its SQL keyword.
func joinKeyword(t join.Type) string {
	switch t {
	case join.Left:
		return "LEFT JOIN"
	case join.Right:
		return "RIGHT JOIN"
	case join.Full:
		return "FULL OUTER JOIN"
	default:
		return "INNER JOIN"
	}
}

// BuildJoinSQL renders the authoritative server-side join preview query.
//
// The select list aliases every joined column as "<prefix>.<column>" so the
// server-side result set has exactly the same column naming as the local
// fallback engine; callers can render either interchangeably.
//
// Operator notes: IN between two columns degenerates to equality, which is
// the only sensible server-side reading of a column-to-column IN condition.
// LIKE wraps the right side with wildcards to mirror the local engine's
// substring containment.
func BuildJoinSQL(d Dialect, primary string, primaryCols []string, joins []join.Input, limit int) (string, error) {
	if limit <= 0 {
		limit = join.DefaultSampleSize
	}

	var sel []string
	for _, c := range primaryCols {
		sel = append(sel, fmt.Sprintf("p.%s AS %s", d.QuoteIdent(c), d.QuoteIdent(c)))
	}

	var clauses []string
	for i, in := range joins {
		switch in.Clause.JoinType {
		case join.Right:
			if !d.SupportsRight {
				return "", ErrJoinUnsupported
			}
		case join.Full:
			if !d.SupportsFull {
				return "", ErrJoinUnsupported
			}
		case join.Inner, join.Left:
		default:
			return "", fmt.Errorf("join sql: unknown join type %q", in.Clause.JoinType)
		}

		alias := fmt.Sprintf("j%d", i)
		prefix := in.Clause.ColumnPrefix()
		for _, c := range in.Columns {
			sel = append(sel, fmt.Sprintf("%s.%s AS %s", alias, d.QuoteIdent(c), d.QuoteIdent(prefix+"."+c)))
		}

		var preds []string
		for _, cond := range in.Clause.Conditions {
			lhs := "p." + d.QuoteIdent(cond.SourceField)
			rhs := alias + "." + d.QuoteIdent(cond.TargetField)
			switch cond.Operator {
			case join.OpEq, join.OpIn:
				preds = append(preds, fmt.Sprintf("%s = %s", lhs, rhs))
			case join.OpNeq:
				preds = append(preds, fmt.Sprintf("%s <> %s", lhs, rhs))
			case join.OpGt, join.OpLt, join.OpGte, join.OpLte:
				preds = append(preds, fmt.Sprintf("%s %s %s", lhs, cond.Operator, rhs))
			case join.OpLike:
				like := d.LikePredicate
				if like == nil {
					like = AnsiLike
				}
				preds = append(preds, like(lhs, rhs))
			default:
				return "", fmt.Errorf("join sql: unknown operator %q", cond.Operator)
			}
		}
		if len(preds) == 0 {
			return "", fmt.Errorf("join sql: table %q has no conditions", in.Clause.Table)
		}

		clauses = append(clauses, fmt.Sprintf("%s %s %s ON %s",
			joinKeyword(in.Clause.JoinType), d.QuoteIdent(in.Clause.Table), alias, strings.Join(preds, " AND ")))
	}

	q := fmt.Sprintf("SELECT %s FROM %s p", strings.Join(sel, ", "), d.QuoteIdent(primary))
	if len(clauses) > 0 {
		q += " " + strings.Join(clauses, " ")
	}
	return d.LimitClause(q, limit), nil
}
