// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the engine labels (config, step, status, severity, kind) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint, since planning operations are
//     short-lived CLI invocations rather than long-running servers.
//
// All Prometheus-specific dependencies live here so the rest of the project
// can swap to alternative backends without changes to the core logic.
package prompush

import (
	"fmt"

	"importkit/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // "importkit_step_total"
	stepDuration *prometheus.SummaryVec // "importkit_step_duration_seconds"

	issueCounter   *prometheus.CounterVec // "importkit_validation_issues_total"
	previewCounter *prometheus.CounterVec // "importkit_preview_rows_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL the base URL of
// the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "importkit"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importkit_step_total",
			Help: "Total engine operation executions, partitioned by config, step, and status.",
		},
		[]string{"config", "step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "importkit_step_duration_seconds",
			Help:       "Duration of engine operations in seconds, partitioned by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	issueCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importkit_validation_issues_total",
			Help: "Validation findings per configuration and severity.",
		},
		[]string{"config", "severity"},
	)
	previewCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importkit_preview_rows_total",
			Help: "Rows returned by table and join previews, per kind.",
		},
		[]string{"config", "kind"},
	)

	for _, c := range []prometheus.Collector{stepCounter, stepDuration, issueCounter, previewCounter} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register collector: %w", err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		stepCounter:    stepCounter,
		stepDuration:   stepDuration,
		issueCounter:   issueCounter,
		previewCounter: previewCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "importkit_step_total":
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["config"], labels["step"], labels["status"]).Add(delta)

	case "importkit_validation_issues_total":
		if b.issueCounter == nil {
			return
		}
		b.issueCounter.WithLabelValues(labels["config"], labels["severity"]).Add(delta)

	case "importkit_preview_rows_total":
		if b.previewCounter == nil {
			return
		}
		b.previewCounter.WithLabelValues(labels["config"], labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "importkit_step_duration_seconds" || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
