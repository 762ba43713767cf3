// Package postgres implements the source.Connector contract over pgx v5.
// Schema discovery reads information_schema plus pg_class statistics, so a
// full discovery run costs a handful of catalog queries regardless of how
// many tables the source has.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
	"importkit/pkg/records"
)

// newPool is a test hook; tests may replace it to avoid real connections.
var newPool = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

func init() {
	source.Register("postgres", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, source.ConnErr("bad-config", "postgres: DSN must not be empty", nil)
		}
		pool, err := newPool(ctx, cfg.DSN)
		if err != nil {
			return nil, classify(err, "open connection pool")
		}
		return &Connector{pool: pool, cfg: cfg}, nil
	})
}

// Connector is the Postgres implementation of source.Connector.
type Connector struct {
	pool *pgxpool.Pool
	cfg  source.Config
}

var dialect = source.Dialect{
	QuoteIdent:    source.AnsiQuote,
	LimitClause:   source.SuffixLimit,
	SupportsRight: true,
	SupportsFull:  true,
}

// classify folds a pgx error into the discovery error taxonomy. Invalid
// credentials surface as "auth"; everything else as "unreachable".
func classify(err error, doing string) *source.ConnectionError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28P01", "28000": // invalid_password, invalid_authorization_specification
			return source.ConnErr("auth", "postgres: authentication failed", err)
		}
	}
	return source.ConnErr("unreachable", "postgres: "+doing, err)
}

// TestConnection pings the source and sums catalog row estimates.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return source.TestResult{}, classify(err, "ping")
	}

	var total int64 = -1
	row := c.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(GREATEST(reltuples, 0))::bigint, 0)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r' AND n.nspname = 'public'`)
	if err := row.Scan(&total); err != nil {
		total = -1
	}

	return source.TestResult{OK: true, Message: "connection ok", RecordCountEstimate: total}, nil
}

// DiscoverSchema builds a fresh snapshot of all tables in the public schema.
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

	rows, err := c.pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
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
	rows, err := c.pool.Query(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'`)
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
	rows, err := c.pool.Query(ctx, `
		SELECT c.relname, GREATEST(c.reltuples, 0)::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r' AND n.nspname = 'public'`)
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

	q := source.SuffixLimit(fmt.Sprintf("SELECT * FROM %s", source.AnsiQuote(table)), limit)
	rows, err := c.pool.Query(ctx, q)
	if err != nil {
		return nil, classify(err, "preview "+table)
	}
	defer rows.Close()

	cols, recs, err := scanPgxRows(rows)
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

// PreviewJoin computes the authoritative server-side join preview.
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
	rows, err := c.pool.Query(ctx, q)
	if err != nil {
		return nil, classify(err, "join preview")
	}
	defer rows.Close()

	cols, recs, err := scanPgxRows(rows)
	if err != nil {
		return nil, classify(err, "scan join preview")
	}
	return &source.Preview{Columns: cols, Rows: recs, TotalCount: -1}, nil
}

// Close releases the pool.
func (c *Connector) Close() error {
	if c.pool != nil {
		c.pool.Close()
	}
	return nil
}

// scanPgxRows converts a pgx result set into Records.
func scanPgxRows(rows pgx.Rows) ([]string, []records.Record, error) {
	fds := rows.FieldDescriptions()
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = string(fd.Name)
	}

	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}
		rec := make(records.Record, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[col] = v
		}
		out = append(out, rec)
	}
	return cols, out, rows.Err()
}
