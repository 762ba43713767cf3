// Package mysql implements the source.Connector contract over database/sql
// with the go-sql-driver. Discovery reads information_schema scoped to the
// DSN's default database.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
)

// openDB is a test hook; tests may replace it to avoid real connections.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

func init() {
	source.Register("mysql", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, source.ConnErr("bad-config", "mysql: DSN must not be empty", nil)
		}
		db, err := openDB(cfg.DSN)
		if err != nil {
			return nil, source.ConnErr("bad-config", "mysql: open", err)
		}
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxOpenConns(4)
		return &Connector{db: db, cfg: cfg}, nil
	})
}

// Connector is the MySQL implementation of source.Connector.
type Connector struct {
	db  *sql.DB
	cfg source.Config
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

var dialect = source.Dialect{
	QuoteIdent:  quoteIdent,
	LimitClause: source.SuffixLimit,
	LikePredicate: func(lhs, rhs string) string {
		return fmt.Sprintf("%s LIKE CONCAT('%%', %s, '%%')", lhs, rhs)
	},
	SupportsRight: true,
	SupportsFull:  false, // MySQL has no FULL OUTER JOIN; callers fall back
}

func classify(err error, doing string) *source.ConnectionError {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045: // access denied for database / user
			return source.ConnErr("auth", "mysql: access denied", err)
		}
	}
	return source.ConnErr("unreachable", "mysql: "+doing, err)
}

// TestConnection pings the server and sums information_schema row estimates.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return source.TestResult{}, classify(err, "ping")
	}

	var total sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT SUM(table_rows) FROM information_schema.tables
		WHERE table_schema = DATABASE()`).Scan(&total)
	est := int64(-1)
	if err == nil && total.Valid {
		est = total.Int64
	}
	return source.TestResult{OK: true, Message: "connection ok", RecordCountEstimate: est}, nil
}

// DiscoverSchema builds a snapshot of all tables in the default database.
func (c *Connector) DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	estimates := map[string]int64{}
	rows, err := c.db.QueryContext(ctx, `
		SELECT table_name, COALESCE(table_rows, -1)
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'`)
	if err != nil {
		return nil, classify(err, "read tables")
	}
	for rows.Next() {
		var name string
		var est int64
		if err := rows.Scan(&name, &est); err != nil {
			rows.Close()
			return nil, classify(err, "scan tables")
		}
		estimates[name] = est
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate tables")
	}

	rows, err = c.db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable, column_key
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, classify(err, "read columns")
	}
	defer rows.Close()

	out := &schema.SourceSchema{}
	var cur *schema.SourceTable
	for rows.Next() {
		var table, col, typ, nullable, key string
		if err := rows.Scan(&table, &col, &typ, &nullable, &key); err != nil {
			return nil, classify(err, "scan columns")
		}
		if _, known := estimates[table]; !known {
			continue // views and information_schema noise
		}
		if cur == nil || cur.Name != table {
			out.Tables = append(out.Tables, schema.SourceTable{
				Name:                 table,
				EstimatedRecordCount: estimates[table],
			})
			cur = &out.Tables[len(out.Tables)-1]
		}
		cur.Fields = append(cur.Fields, schema.SourceField{
			Name:         col,
			Type:         typ,
			IsPrimaryKey: key == "PRI",
			Nullable:     strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate columns")
	}
	return out, nil
}

// PreviewTable samples up to limit rows from one table.
func (c *Connector) PreviewTable(ctx context.Context, table string, limit int) (*source.Preview, error) {
	if limit <= 0 {
		limit = join.DefaultSampleSize
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	q := source.SuffixLimit(fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)), limit)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(err, "preview "+table)
	}
	defer rows.Close()

	cols, recs, err := source.ScanRows(rows, limit)
	if err != nil {
		return nil, classify(err, "scan preview "+table)
	}

	var total sql.NullInt64
	_ = c.db.QueryRowContext(ctx, `
		SELECT table_rows FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_name = ?`, table).Scan(&total)
	est := int64(-1)
	if total.Valid {
		est = total.Int64
	}
	return &source.Preview{Columns: cols, Rows: recs, TotalCount: est}, nil
}

// PreviewJoin computes the server-side join preview. FULL joins are not
// expressible in MySQL and return ErrJoinUnsupported.
func (c *Connector) PreviewJoin(ctx context.Context, primary string, joins []join.Clause, limit int) (*source.Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	snap, err := c.DiscoverSchema(ctx)
	if err != nil {
		return nil, err
	}
	inputs, primaryCols, err := source.ResolveJoinInputs(snap, primary, joins)
	if err != nil {
		return nil, err
	}
	q, err := source.BuildJoinSQL(dialect, primary, primaryCols, inputs, limit)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(err, "join preview")
	}
	defer rows.Close()

	cols, recs, err := source.ScanRows(rows, limit)
	if err != nil {
		return nil, classify(err, "scan join preview")
	}
	return &source.Preview{Columns: cols, Rows: recs, TotalCount: -1}, nil
}

// Close closes the pool.
func (c *Connector) Close() error { return c.db.Close() }
