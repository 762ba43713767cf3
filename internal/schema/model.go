// Package schema holds the normalized, in-memory model of a discovered
// source schema, plus the advisory type compatibility classifier.
//
// A SourceSchema is a snapshot: connectors produce it whole and never mutate
// it afterwards, so callers may share one snapshot across previews and
// validation passes without coordination. Re-running discovery produces a new
// snapshot; Fingerprint lets callers detect whether the shape actually
// changed between two runs.
package schema

import (
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// SourceField describes one column of a discovered table.
type SourceField struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsPrimaryKey bool   `json:"is_primary_key"`
	Nullable     bool   `json:"nullable"`
}

// SourceTable describes one discovered table and a row-count estimate.
// EstimatedRecordCount is advisory: connectors may derive it from catalog
// statistics or sampling; -1 means "unknown".
type SourceTable struct {
	Name                 string        `json:"name"`
	Fields               []SourceField `json:"fields"`
	EstimatedRecordCount int64         `json:"estimated_record_count"`
}

// Field returns the named field, matching case-insensitively, or nil.
func (t *SourceTable) Field(name string) *SourceField {
	for i := range t.Fields {
		if strings.EqualFold(t.Fields[i].Name, name) {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the field names in declaration order.
func (t *SourceTable) FieldNames() []string {
	out := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = f.Name
	}
	return out
}

// SourceSchema is a full snapshot of the discovered source.
type SourceSchema struct {
	Tables []SourceTable `json:"tables"`
}

// Table returns the named table, matching case-insensitively, or nil.
func (s *SourceSchema) Table(name string) *SourceTable {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i]
		}
	}
	return nil
}

// TableNames returns the table names sorted ascending.
func (s *SourceSchema) TableNames() []string {
	out := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		out[i] = t.Name
	}
	sort.Strings(out)
	return out
}

// Fingerprint hashes the structural shape of the snapshot: normalized table
// and field names plus canonical field types. Row-count estimates and field
// order within a table do not affect the fingerprint, so two discovery runs
// over an unchanged source compare equal even when statistics moved.
func (s *SourceSchema) Fingerprint() uint64 {
	var b strings.Builder
	tables := make([]SourceTable, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	for _, t := range tables {
		b.WriteString(NormalizeName(t.Name))
		b.WriteByte('\x00')
		names := make([]string, 0, len(t.Fields))
		byName := make(map[string]SourceField, len(t.Fields))
		for _, f := range t.Fields {
			n := NormalizeName(f.Name)
			names = append(names, n)
			byName[n] = f
		}
		sort.Strings(names)
		for _, n := range names {
			f := byName[n]
			b.WriteString(n)
			b.WriteByte('\x01')
			b.WriteString(CanonicalType(f.Type))
			if f.IsPrimaryKey {
				b.WriteByte('k')
			}
			if f.Nullable {
				b.WriteByte('n')
			}
			b.WriteByte('\x00')
		}
		b.WriteByte('\x02')
	}
	return xxh3.HashString(b.String())
}
