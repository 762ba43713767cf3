// Package sqlite implements the source.Connector contract for SQLite files
// via modernc.org/sqlite (pure Go, no cgo). SQLite has no catalog row
// statistics, so discovery counts rows per table with a bounded errgroup
// fan-out instead.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
)

// countWorkers bounds the COUNT(*) fan-out during discovery.
const countWorkers = 4

func init() {
	source.Register("sqlite", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		path := cfg.Path
		if path == "" {
			path = cfg.DSN
		}
		if strings.TrimSpace(path) == "" {
			return nil, source.ConnErr("bad-config", "sqlite: path must not be empty", nil)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, source.ConnErr("unreachable", fmt.Sprintf("sqlite: database file %q not found", path), err)
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, source.ConnErr("bad-config", "sqlite: open", err)
		}
		return &Connector{db: db, cfg: cfg}, nil
	})
}

// Connector is the SQLite implementation of source.Connector.
type Connector struct {
	db  *sql.DB
	cfg source.Config
}

var dialect = source.Dialect{
	QuoteIdent:    source.AnsiQuote,
	LimitClause:   source.SuffixLimit,
	SupportsRight: true, // RIGHT/FULL landed in SQLite 3.39; modernc bundles newer
	SupportsFull:  true,
}

// TestConnection pings the database file and counts rows across all tables.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return source.TestResult{}, source.ConnErr("unreachable", "sqlite: ping", err)
	}
	tables, err := c.tableNames(ctx)
	if err != nil {
		return source.TestResult{}, source.ConnErr("unreachable", "sqlite: list tables", err)
	}
	counts, err := c.countRows(ctx, tables)
	if err != nil {
		return source.TestResult{}, source.ConnErr("unreachable", "sqlite: count rows", err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return source.TestResult{OK: true, Message: "connection ok", RecordCountEstimate: total}, nil
}

// DiscoverSchema reads sqlite_master and PRAGMA table_info per table.
func (c *Connector) DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EffectiveTimeout())
	defer cancel()

	tables, err := c.tableNames(ctx)
	if err != nil {
		return nil, source.ConnErr("unreachable", "sqlite: list tables", err)
	}
	counts, err := c.countRows(ctx, tables)
	if err != nil {
		return nil, source.ConnErr("unreachable", "sqlite: count rows", err)
	}

	out := &schema.SourceSchema{}
	for _, table := range tables {
		fields, err := c.tableFields(ctx, table)
		if err != nil {
			return nil, source.ConnErr("unreachable", "sqlite: describe "+table, err)
		}
		out.Tables = append(out.Tables, schema.SourceTable{
			Name:                 table,
			Fields:               fields,
			EstimatedRecordCount: counts[table],
		})
	}
	return out, nil
}

func (c *Connector) tableNames(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (c *Connector) tableFields(ctx context.Context, table string) ([]schema.SourceField, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", source.AnsiQuote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.SourceField
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if typ == "" {
			typ = "text" // SQLite allows typeless columns
		}
		out = append(out, schema.SourceField{
			Name:         name,
			Type:         typ,
			IsPrimaryKey: pk > 0,
			Nullable:     notNull == 0 && pk == 0,
		})
	}
	return out, rows.Err()
}

// countRows runs COUNT(*) per table with a bounded fan-out.
func (c *Connector) countRows(ctx context.Context, tables []string) (map[string]int64, error) {
	var mu sync.Mutex
	out := make(map[string]int64, len(tables))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(countWorkers)
	for _, table := range tables {
		g.Go(func() error {
			var n int64
			q := fmt.Sprintf("SELECT COUNT(*) FROM %s", source.AnsiQuote(table))
			if err := c.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			mu.Lock()
			out[table] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
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

	q := source.SuffixLimit(fmt.Sprintf("SELECT * FROM %s", source.AnsiQuote(table)), limit)
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, source.ConnErr("unreachable", "sqlite: preview "+table, err)
	}
	defer rows.Close()

	cols, recs, err := source.ScanRows(rows, limit)
	if err != nil {
		return nil, source.ConnErr("unreachable", "sqlite: scan preview "+table, err)
	}

	var total int64 = -1
	_ = c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", source.AnsiQuote(table))).Scan(&total)
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
		return nil, source.ConnErr("unreachable", "sqlite: join preview", err)
	}
	defer rows.Close()

	cols, recs, err := source.ScanRows(rows, limit)
	if err != nil {
		return nil, source.ConnErr("unreachable", "sqlite: scan join preview", err)
	}
	return &source.Preview{Columns: cols, Rows: recs, TotalCount: -1}, nil
}

// Close closes the database handle.
func (c *Connector) Close() error { return c.db.Close() }
