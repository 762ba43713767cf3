// Package csvfile implements the source.Connector contract for a delimited
// flat file. The file is exposed as a single-table schema whose column types
// are inferred from a sampled prefix of the rows; previews re-read the file,
// so they always reflect its current contents.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
	"importkit/pkg/records"
)

func init() {
	source.Register("csv", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, source.ConnErr("bad-config", "csv: path must not be empty", nil)
		}
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, source.ConnErr("unreachable", fmt.Sprintf("csv: file %q not found", cfg.Path), err)
		}
		return &Connector{cfg: cfg}, nil
	})
}

// Connector is the flat-file implementation of source.Connector.
type Connector struct {
	cfg source.Config
}

// tableName derives the single table's name from the file base name.
func (c *Connector) tableName() string {
	base := filepath.Base(c.cfg.Path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return schema.NormalizeName(base)
}

func (c *Connector) delimiter() rune {
	if c.cfg.Delimiter != "" {
		return []rune(c.cfg.Delimiter)[0]
	}
	return ','
}

// newReader opens the file with the lenient CSV settings used throughout:
// variable field counts, lazy quotes, trimmed leading space.
func (c *Connector) newReader() (*csv.Reader, io.Closer, error) {
	f, err := os.Open(c.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.Comma = c.delimiter()
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r, f, nil
}

// readSample reads the header plus up to max aligned data rows. Rows whose
// width differs from the header are skipped to keep type inference accurate.
func (c *Connector) readSample(max int) (headers []string, rows [][]string, err error) {
	r, closer, err := c.newReader()
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close()

	first, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv: file is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read header: %w", err)
	}
	first = stripUTF8BOM(first)

	if c.cfg.HasHeader {
		headers = make([]string, len(first))
		for i, h := range first {
			headers[i] = strings.TrimSpace(h)
		}
	} else {
		headers = make([]string, len(first))
		for i := range first {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		rows = append(rows, first)
	}

	want := len(headers)
	for len(rows) < max {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(rec) == 0 {
			continue // skip malformed/empty line
		}
		if len(rec) != want {
			continue // skip misaligned row
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

// countDataRows counts data rows in the whole file (header excluded).
func (c *Connector) countDataRows() (int64, error) {
	r, closer, err := c.newReader()
	if err != nil {
		return -1, err
	}
	defer closer.Close()

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		n++
	}
	if c.cfg.HasHeader && n > 0 {
		n--
	}
	return n, nil
}

// TestConnection verifies the file is present and parseable.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	if _, _, err := c.readSample(1); err != nil {
		return source.TestResult{}, source.ConnErr("unreachable", "csv: "+c.cfg.Path, err)
	}
	n, err := c.countDataRows()
	if err != nil {
		n = -1
	}
	return source.TestResult{OK: true, Message: "file ok", RecordCountEstimate: n}, nil
}

// DiscoverSchema exposes the file as one table with inferred column types.
// Flat files carry no key or nullability metadata, so every field reports
// Nullable and no primary key.
func (c *Connector) DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error) {
	headers, rows, err := c.readSample(c.cfg.EffectiveSampleLimit())
	if err != nil {
		return nil, source.ConnErr("unreachable", "csv: "+c.cfg.Path, err)
	}
	types := inferTypes(headers, rows)

	fields := make([]schema.SourceField, len(headers))
	for i, h := range headers {
		fields[i] = schema.SourceField{Name: h, Type: types[i], Nullable: true}
	}
	count, err := c.countDataRows()
	if err != nil {
		count = -1
	}
	return &schema.SourceSchema{Tables: []schema.SourceTable{{
		Name:                 c.tableName(),
		Fields:               fields,
		EstimatedRecordCount: count,
	}}}, nil
}

// PreviewTable samples up to limit rows. The table name must match the one
// table this source exposes.
func (c *Connector) PreviewTable(ctx context.Context, table string, limit int) (*source.Preview, error) {
	if !strings.EqualFold(table, c.tableName()) {
		return nil, source.ConnErr("bad-config",
			fmt.Sprintf("csv: unknown table %q (this source exposes %q)", table, c.tableName()), nil)
	}
	if limit <= 0 {
		limit = join.DefaultSampleSize
	}
	headers, rows, err := c.readSample(limit)
	if err != nil {
		return nil, source.ConnErr("unreachable", "csv: "+c.cfg.Path, err)
	}

	recs := make([]records.Record, 0, len(rows))
	for _, row := range rows {
		rec := make(records.Record, len(headers))
		for i, h := range headers {
			rec[h] = row[i]
		}
		recs = append(recs, rec)
	}
	count, err := c.countDataRows()
	if err != nil {
		count = -1
	}
	return &source.Preview{Columns: headers, Rows: recs, TotalCount: count}, nil
}

// PreviewJoin is not available for flat files; callers use the local engine.
func (c *Connector) PreviewJoin(ctx context.Context, primary string, joins []join.Clause, limit int) (*source.Preview, error) {
	return nil, source.ErrJoinUnsupported
}

// Close is a no-op; the file is opened per call.
func (c *Connector) Close() error { return nil }

// stripUTF8BOM removes a UTF-8 BOM from the first header field if present.
func stripUTF8BOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	return headers
}
