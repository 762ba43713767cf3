package source

import (
	"errors"
	"strings"
	"testing"

	"importkit/internal/join"
)

func ansiDialect() Dialect {
	return Dialect{
		QuoteIdent:    AnsiQuote,
		LimitClause:   SuffixLimit,
		SupportsRight: true,
		SupportsFull:  true,
	}
}

func singleJoin(t join.Type, op join.Operator) []join.Input {
	return []join.Input{{
		Clause: join.Clause{
			Table:    "customers",
			JoinType: t,
			Conditions: []join.Condition{
				{SourceField: "customer_id", TargetField: "id", Operator: op},
			},
		},
		Columns: []string{"id", "email"},
	}}
}

func TestBuildJoinSQLBasic(t *testing.T) {
	sql, err := BuildJoinSQL(ansiDialect(), "orders", []string{"id", "customer_id"},
		singleJoin(join.Left, join.OpEq), 10)
	if err != nil {
		t.Fatalf("BuildJoinSQL: %v", err)
	}

	for _, want := range []string{
		`FROM "orders" p`,
		`LEFT JOIN "customers" j0`,
		`ON p."customer_id" = j0."id"`,
		`j0."email" AS "customers.email"`,
		"LIMIT 10",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("query missing %q:\n%s", want, sql)
		}
	}
}

func TestBuildJoinSQLOperators(t *testing.T) {
	tests := []struct {
		op   join.Operator
		want string
	}{
		{join.OpEq, `p."customer_id" = j0."id"`},
		{join.OpIn, `p."customer_id" = j0."id"`}, // column-to-column IN degenerates
		{join.OpNeq, `p."customer_id" <> j0."id"`},
		{join.OpGte, `p."customer_id" >= j0."id"`},
		{join.OpLike, `p."customer_id" LIKE '%' || j0."id" || '%'`},
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			sql, err := BuildJoinSQL(ansiDialect(), "orders", []string{"id"},
				singleJoin(join.Inner, tt.op), 5)
			if err != nil {
				t.Fatalf("BuildJoinSQL: %v", err)
			}
			if !strings.Contains(sql, tt.want) {
				t.Errorf("query missing %q:\n%s", tt.want, sql)
			}
		})
	}
}

func TestBuildJoinSQLCustomLike(t *testing.T) {
	d := ansiDialect()
	d.LikePredicate = func(lhs, rhs string) string {
		return lhs + " LIKE CONCAT('%', " + rhs + ", '%')"
	}
	sql, err := BuildJoinSQL(d, "orders", []string{"id"}, singleJoin(join.Inner, join.OpLike), 5)
	if err != nil {
		t.Fatalf("BuildJoinSQL: %v", err)
	}
	if !strings.Contains(sql, "CONCAT('%'") {
		t.Errorf("custom LIKE predicate not used:\n%s", sql)
	}
}

func TestBuildJoinSQLUnsupportedJoinTypes(t *testing.T) {
	d := ansiDialect()
	d.SupportsRight = false
	d.SupportsFull = false

	for _, jt := range []join.Type{join.Right, join.Full} {
		if _, err := BuildJoinSQL(d, "orders", []string{"id"}, singleJoin(jt, join.OpEq), 5); !errors.Is(err, ErrJoinUnsupported) {
			t.Errorf("%s join: got %v, want ErrJoinUnsupported", jt, err)
		}
	}
}

func TestBuildJoinSQLRejectsMalformed(t *testing.T) {
	d := ansiDialect()
	in := singleJoin(join.Inner, join.OpEq)
	in[0].Clause.Conditions = nil
	if _, err := BuildJoinSQL(d, "orders", []string{"id"}, in, 5); err == nil {
		t.Error("empty conditions: want error")
	}

	in = singleJoin(join.Type("cross"), join.OpEq)
	if _, err := BuildJoinSQL(d, "orders", []string{"id"}, in, 5); err == nil {
		t.Error("unknown join type: want error")
	}
}

func TestBuildJoinSQLQuotesIdentifiers(t *testing.T) {
	in := []join.Input{{
		Clause: join.Clause{
			Table:    `weird"table`,
			JoinType: join.Inner,
			Conditions: []join.Condition{
				{SourceField: "a", TargetField: "b", Operator: join.OpEq},
			},
		},
		Columns: []string{"b"},
	}}
	sql, err := BuildJoinSQL(ansiDialect(), "orders", []string{"a"}, in, 5)
	if err != nil {
		t.Fatalf("BuildJoinSQL: %v", err)
	}
	if !strings.Contains(sql, `"weird""table"`) {
		t.Errorf("identifier not escaped:\n%s", sql)
	}
}
