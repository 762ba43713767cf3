package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"sort"
	"strings"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/internal/source"
	"importkit/pkg/records"
)

func init() {
	source.Register("rest", func(ctx context.Context, cfg source.Config) (source.Connector, error) {
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, source.ConnErr("bad-config", "rest: URL must not be empty", nil)
		}
		if _, err := url.Parse(cfg.URL); err != nil {
			return nil, source.ConnErr("bad-config", "rest: invalid URL", err)
		}
		return &Connector{
			cfg: cfg,
			client: newClient(clientConfig{
				Timeout:            cfg.EffectiveTimeout(),
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			}),
		}, nil
	})
}

// Connector is the REST implementation of source.Connector.
type Connector struct {
	cfg    source.Config
	client *client
}

// fetchTables downloads the endpoint and splits it into named row sets.
// A bare array becomes one table named after the URL path; an object
// contributes one table per array-valued key.
func (c *Connector) fetchTables(ctx context.Context) (map[string][]records.Record, error) {
	body, status, err := c.client.getJSON(ctx, c.cfg.URL)
	if err != nil {
		return nil, source.ConnErr("unreachable", "rest: fetch "+c.cfg.URL, err)
	}
	switch {
	case status == 401 || status == 403:
		return nil, source.ConnErr("auth", fmt.Sprintf("rest: endpoint returned %d", status), nil)
	case status >= 400:
		return nil, source.ConnErr("unreachable", fmt.Sprintf("rest: endpoint returned %d", status), nil)
	}

	var anyDoc any
	if err := json.Unmarshal(body, &anyDoc); err != nil {
		return nil, source.ConnErr("unreachable", "rest: response is not valid JSON", err)
	}

	out := map[string][]records.Record{}
	switch doc := anyDoc.(type) {
	case []any:
		out[c.defaultTableName()] = toRecords(doc)
	case map[string]any:
		for k, v := range doc {
			if arr, ok := v.([]any); ok {
				out[schema.NormalizeName(k)] = toRecords(arr)
			}
		}
		if len(out) == 0 {
			return nil, source.ConnErr("unreachable", "rest: response contains no array-valued keys", nil)
		}
	default:
		return nil, source.ConnErr("unreachable", "rest: response is neither an array nor an object", nil)
	}
	return out, nil
}

func (c *Connector) defaultTableName() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil || path.Base(u.Path) == "/" || path.Base(u.Path) == "." {
		return "data"
	}
	return schema.NormalizeName(path.Base(u.Path))
}

// toRecords keeps only flat objects; nested values are rendered to their
// JSON form so every cell is scalar.
func toRecords(arr []any) []records.Record {
	out := make([]records.Record, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := make(records.Record, len(obj))
		for k, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				b, _ := json.Marshal(v)
				rec[k] = string(b)
			default:
				rec[k] = v
			}
		}
		out = append(out, rec)
	}
	return out
}

// TestConnection fetches the endpoint once and counts rows.
func (c *Connector) TestConnection(ctx context.Context) (source.TestResult, error) {
	tables, err := c.fetchTables(ctx)
	if err != nil {
		return source.TestResult{}, err
	}
	var total int64
	for _, rows := range tables {
		total += int64(len(rows))
	}
	return source.TestResult{OK: true, Message: "endpoint ok", RecordCountEstimate: total}, nil
}

// DiscoverSchema infers one table per row set, with field types derived from
// the sampled values. REST payloads carry no key metadata, so fields report
// Nullable and no primary key.
func (c *Connector) DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error) {
	tables, err := c.fetchTables(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &schema.SourceSchema{}
	limit := c.cfg.EffectiveSampleLimit()
	for _, name := range names {
		rows := tables[name]
		sample := rows
		if len(sample) > limit {
			sample = sample[:limit]
		}
		out.Tables = append(out.Tables, schema.SourceTable{
			Name:                 name,
			Fields:               inferFields(sample),
			EstimatedRecordCount: int64(len(rows)),
		})
	}
	return out, nil
}

// inferFields derives a sorted field list from sampled records. A field's
// type is the narrowest JSON-derived type all its non-nil values share;
// mixed columns widen to string.
func inferFields(sample []records.Record) []schema.SourceField {
	types := map[string]string{}
	for _, rec := range sample {
		for k, v := range rec {
			t := jsonValueType(v)
			prev, seen := types[k]
			switch {
			case !seen || prev == "":
				types[k] = t
			case t == "" || t == prev:
				// nil values don't narrow; identical types agree
			case (prev == "integer" && t == "number") || (prev == "number" && t == "integer"):
				types[k] = "number"
			default:
				types[k] = "string"
			}
		}
	}

	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]schema.SourceField, 0, len(names))
	for _, name := range names {
		t := types[name]
		if t == "" {
			t = "string"
		}
		out = append(out, schema.SourceField{Name: name, Type: t, Nullable: true})
	}
	return out
}

func jsonValueType(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return "boolean"
	case float64:
		if t == math.Trunc(t) {
			return "integer"
		}
		return "number"
	default:
		return "string"
	}
}

// PreviewTable samples up to limit rows from one logical table.
func (c *Connector) PreviewTable(ctx context.Context, table string, limit int) (*source.Preview, error) {
	if limit <= 0 {
		limit = join.DefaultSampleSize
	}
	tables, err := c.fetchTables(ctx)
	if err != nil {
		return nil, err
	}
	rows, ok := tables[schema.NormalizeName(table)]
	if !ok {
		return nil, source.ConnErr("bad-config", fmt.Sprintf("rest: unknown table %q", table), nil)
	}

	total := int64(len(rows))
	if len(rows) > limit {
		rows = rows[:limit]
	}
	var cols []string
	for _, f := range inferFields(rows) {
		cols = append(cols, f.Name)
	}
	return &source.Preview{Columns: cols, Rows: rows, TotalCount: total}, nil
}

// PreviewJoin is not available for REST sources; callers use the local engine.
func (c *Connector) PreviewJoin(ctx context.Context, primary string, joins []join.Clause, limit int) (*source.Preview, error) {
	return nil, source.ErrJoinUnsupported
}

// Close is a no-op; the client holds no persistent resources.
func (c *Connector) Close() error { return nil }
