// Package source contains the source-agnostic connector contract and the
// factory used to open concrete connectors (Postgres, MySQL, SQL Server,
// SQLite, flat CSV files, REST endpoints).
//
// The planning core talks only to the Connector interface: connectors are
// the single point of I/O in the system. Every method takes a context and is
// safe to call repeatedly; discovery and previews are read-only and
// idempotent, and none of them mutate the Config they were opened with.
package source

import (
	"context"
	"fmt"
	"time"

	"importkit/internal/join"
	"importkit/internal/schema"
	"importkit/pkg/records"
)

// Config identifies and parameterizes a source. Exactly one locator field is
// meaningful per kind: DSN for database kinds, Path for file-backed kinds,
// URL for REST.
type Config struct {
	// Kind selects the connector implementation: "postgres", "mysql",
	// "mssql", "sqlite", "csv", or "rest".
	Kind string `json:"kind"`

	// DSN is the connection string for database kinds.
	DSN string `json:"dsn,omitempty"`

	// Path is the local filesystem path for file-backed kinds (csv, sqlite).
	Path string `json:"path,omitempty"`

	// URL is the endpoint for the "rest" kind. The endpoint is expected to
	// serve either a JSON array of flat objects or an object whose values
	// are such arrays (one per logical table).
	URL string `json:"url,omitempty"`

	// Delimiter is the CSV field separator; empty means ",".
	Delimiter string `json:"delimiter,omitempty"`

	// HasHeader indicates whether the first CSV row carries column names.
	// When false, columns are named col_1..col_n.
	HasHeader bool `json:"has_header,omitempty"`

	// SampleLimit caps how many rows discovery-time type inference reads
	// from file and REST sources. Zero means a connector-chosen default.
	SampleLimit int `json:"sample_limit,omitempty"`

	// Timeout bounds individual connector calls. Zero means 30s.
	Timeout time.Duration `json:"timeout,omitempty"`

	// InsecureSkipVerify disables TLS verification for the "rest" kind.
	InsecureSkipVerify bool `json:"insecure_skip_verify,omitempty"`
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	// RecordCountEstimate is the total estimated row count across all
	// discoverable tables; -1 when the source cannot estimate cheaply.
	RecordCountEstimate int64 `json:"record_count_estimate"`
}

// Preview is a sampled slice of a table (or of a server-side join).
type Preview struct {
	Columns []string         `json:"columns"`
	Rows    []records.Record `json:"rows"`
	// TotalCount is the estimated total row count behind the sample;
	// -1 when unknown.
	TotalCount int64 `json:"total_count"`
}

// Connector is the contract every source kind implements.
//
// PreviewJoin is the authoritative, server-computed join. Connectors without
// native join capability return ErrJoinUnsupported; callers then fall back to
// the local sampled engine in internal/join.
type Connector interface {
	// TestConnection verifies reachability and credentials. A failed test
	// returns a *ConnectionError (and a zero TestResult).
	TestConnection(ctx context.Context) (TestResult, error)

	// DiscoverSchema re-fetches the full source schema. It never returns a
	// partial schema: on any failure the result is nil and the error is a
	// *ConnectionError.
	DiscoverSchema(ctx context.Context) (*schema.SourceSchema, error)

	// PreviewTable samples up to limit rows of one table.
	PreviewTable(ctx context.Context, table string, limit int) (*Preview, error)

	// PreviewJoin computes a joined sample server-side.
	PreviewJoin(ctx context.Context, primary string, joins []join.Clause, limit int) (*Preview, error)

	// Close releases pools and handles. Safe to call more than once.
	Close() error
}

// ErrJoinUnsupported is returned by PreviewJoin on connectors that have no
// server-side join capability. Callers treat it as the signal to compute the
// preview locally.
var ErrJoinUnsupported = fmt.Errorf("source: server-side join not supported")

// ConnectionError is the single error surfaced for any discovery-level
// failure: unreachable source, authentication failure, unsupported kind.
// Reason is a coarse machine-readable class; Message is for the operator.
type ConnectionError struct {
	Reason  string // "unreachable", "auth", "unsupported", "bad-config"
	Message string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source connection (%s): %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("source connection (%s): %s", e.Reason, e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConnErr builds a *ConnectionError. Shared by connector implementations.
func ConnErr(reason, message string, err error) *ConnectionError {
	return &ConnectionError{Reason: reason, Message: message, Err: err}
}

// EffectiveTimeout resolves the per-call timeout with the package default.
func (c Config) EffectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 30 * time.Second
}

// EffectiveSampleLimit resolves the discovery sample limit.
func (c Config) EffectiveSampleLimit() int {
	if c.SampleLimit > 0 {
		return c.SampleLimit
	}
	return 200
}
