// Package mssql implements the source.Connector contract for SQL Server via
// github.com/microsoft/go-mssqldb. The DSN is validated with msdsn before a
// connection is attempted so a malformed DSN fails fast with a config error
// rather than a network timeout.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
)

// openDB is a test hook; tests may replace it to avoid real connections.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("sqlserver", dsn)
}

func init() {
	source.Register("mssql", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, source.ConnErr("bad-config", "mssql: DSN must not be empty", nil)
		}
		if _, err := msdsn.Parse(cfg.DSN); err != nil {
			return nil, source.ConnErr("bad-config", "mssql: invalid DSN", err)
		}
		db, err := openDB(cfg.DSN)
		if err != nil {
			return nil, source.ConnErr("bad-config", "mssql: open", err)
		}
		db.SetMaxOpenConns(4)
		return &Connector{db: db, cfg: cfg}, nil
	})
}

// Connector is the SQL Server implementation of source.Connector.
type Connector struct {
	db  *sql.DB
	cfg source.Config
}

func quoteIdent(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// topLimit rewrites the SELECT head to SELECT TOP n; T-SQL has no trailing
// LIMIT clause.
func topLimit(q string, n int) string {
	return fmt.Sprintf("SELECT TOP %d%s", n, strings.TrimPrefix(q, "SELECT"))
}

var dialect = source.Dialect{
	QuoteIdent:  quoteIdent,
	LimitClause: topLimit,
	LikePredicate: func(lhs, rhs string) string {
		return fmt.Sprintf("%s LIKE '%%' + %s + '%%'", lhs, rhs)
	},
	SupportsRight: true,
	SupportsFull:  true,
}

func classify(err error, doing string) *source.ConnectionError {
	if srvErr, ok := err.(mssqldb.Error); ok {
		switch srvErr.Number {
		case 18456, 18452: // login failed
			return source.ConnErr("auth", "mssql: login failed", err)
		}
	}
	return source.ConnErr("unreachable", "mssql: "+doing, err)
}

// TestConnection pings the server and sums partition row counts.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return source.TestResult{}, classify(err, "ping")
	}

	var total sql.NullInt64
	err := c.db.QueryRowContext(ctx, `
		SELECT SUM(p.rows) FROM sys.partitions p
		JOIN sys.tables t ON t.object_id = p.object_id
		WHERE p.index_id IN (0, 1)`).Scan(&total)
	est := int64(-1)
	if err == nil && total.Valid {
		est = total.Int64
	}
	return source.TestResult{OK: true, Message: "connection ok", RecordCountEstimate: est}, nil
}

// DiscoverSchema builds a snapshot of all base tables in the dbo schema.
func (c *Connector) DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	pks, err := c.primaryKeys(ctx)
	if err != nil {
		return nil, classify(err, "read primary keys")
	}
	estimates, err := c.rowEstimates(ctx)
	if err != nil {
		return nil, classify(err, "read row estimates")
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = 'dbo'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`)
	if err != nil {
		return nil, classify(err, "read columns")
	}
	defer rows.Close()

	out := &schema.SourceSchema{}
	var cur *schema.SourceTable
	for rows.Next() {
		var table, col, typ, nullable string
		if err := rows.Scan(&table, &col, &typ, &nullable); err != nil {
			return nil, classify(err, "scan columns")
		}
		if cur == nil || cur.Name != table {
			est, ok := estimates[table]
			if !ok {
				est = -1
			}
			out.Tables = append(out.Tables, schema.SourceTable{Name: table, EstimatedRecordCount: est})
			cur = &out.Tables[len(out.Tables)-1]
		}
		cur.Fields = append(cur.Fields, schema.SourceField{
			Name:         col,
			Type:         typ,
			IsPrimaryKey: pks[table][col],
			Nullable:     strings.EqualFold(nullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterate columns")
	}
	return out, nil
}

func (c *Connector) primaryKeys(ctx context.Context) (map[string]map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT tc.TABLE_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		  ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
		 AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = 'dbo'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]map[string]bool{}
	for rows.Next() {
		var table, col string
		if err := rows.Scan(&table, &col); err != nil {
			return nil, err
		}
		if out[table] == nil {
			out[table] = map[string]bool{}
		}
		out[table][col] = true
	}
	return out, rows.Err()
}

func (c *Connector) rowEstimates(ctx context.Context) (map[string]int64, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT t.name, SUM(p.rows)
		FROM sys.tables t
		JOIN sys.partitions p ON p.object_id = t.object_id
		WHERE p.index_id IN (0, 1)
		GROUP BY t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var est int64
		if err := rows.Scan(&name, &est); err != nil {
			return nil, err
		}
		out[name] = est
	}
	return out, rows.Err()
}

// PreviewTable samples up to limit rows from one table.
func (c *Connector) PreviewTable(ctx context.Context, table string, limit int) (*source.Preview, error) {
	if limit <= 0 {
		limit = join.DefaultSampleSize
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	q := topLimit(fmt.Sprintf("SELECT * FROM %s", quoteIdent(table)), limit)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(err, "preview "+table)
	}
	defer rows.Close()

	cols, recs, err := source.ScanRows(rows, limit)
	if err != nil {
		return nil, classify(err, "scan preview "+table)
	}

	est, _ := c.rowEstimates(ctx)
	total, ok := est[table]
	if !ok {
		total = -1
	}
	return &source.Preview{Columns: cols, Rows: recs, TotalCount: total}, nil
}

// PreviewJoin computes the server-side join preview.
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
