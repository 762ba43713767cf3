// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the import planning engine.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems stay isolated in subpackages; the rest of the
//     codebase depends only on this interface.
//
// The primary use case is instrumenting the operator-facing operations
// (schema discovery, previews, validation, plan compilation) without
// coupling the core logic to Prometheus or Datadog.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency plus success/failure for one engine
// operation. Typical steps: "discover", "test_connection", "preview_table",
// "preview_join", "validate", "compile".
func RecordStep(configName, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"config": configName,
		"step":   step,
		"status": status,
	}

	backend.IncCounter("importkit_step_total", 1, lbls)
	backend.ObserveHistogram("importkit_step_duration_seconds", d.Seconds(), lbls)
}

// RecordIssues counts validation findings per severity so dashboards can
// spot configurations that keep failing validation.
func RecordIssues(configName, severity string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("importkit_validation_issues_total", float64(delta), Labels{
		"config":   configName,
		"severity": severity,
	})
}

// RecordPreviewRows counts rows returned by table and join previews.
func RecordPreviewRows(configName, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("importkit_preview_rows_total", float64(delta), Labels{
		"config": configName,
		"kind":   kind,
	})
}
