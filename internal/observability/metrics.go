package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application
// metrics.
//
// Built on Prometheus and tracking:
//   - configuration scans (duration, outcome, reconciliation counts)
//   - edit applications through the sync engine (outcome, latency)
//   - remote command dispatches over RCON
//   - template applications
//   - store query latency
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.ObserveScan(time.Since(start), err)
type Metrics struct {
	// ScanCounter counts scans by status (success|error).
	ScanCounter *prometheus.CounterVec

	// ScanDuration measures scan latency in seconds.
	// Buckets: 0.01s .. 60s.
	ScanDuration prometheus.Histogram

	// EntriesReconciled counts entries touched by scans.
	// Labels: action (added|updated|orphaned|pruned)
	EntriesReconciled *prometheus.CounterVec

	// ApplyCounter counts sync engine applications.
	// Labels: outcome (applied|pending_restart|rejected|failed)
	ApplyCounter *prometheus.CounterVec

	// ApplyDuration measures apply latency in seconds, file write and
	// remote dispatch included.
	ApplyDuration prometheus.Histogram

	// RemoteCommandCounter counts RCON dispatches.
	// Labels: status (success|error)
	RemoteCommandCounter *prometheus.CounterVec

	// TemplateApplyCounter counts template applications.
	// Labels: status (complete|partial|error)
	TemplateApplyCounter *prometheus.CounterVec

	// PendingRestart gauges how many servers currently require a restart.
	PendingRestart prometheus.Gauge

	// StoreQueryDuration measures store query latency in seconds.
	// Labels: operation (select|insert|update|delete), table
	StoreQueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics with the
// default registry. Call once at startup.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with an explicit registerer, so
// tests can use a private registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScanCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craftdeck_scans_total",
				Help: "Total number of configuration scans by status",
			},
			[]string{"status"},
		),

		ScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "craftdeck_scan_duration_seconds",
				Help:    "Duration of configuration scans in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		EntriesReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craftdeck_entries_reconciled_total",
				Help: "Configuration entries touched by scans, by action",
			},
			[]string{"action"},
		),

		ApplyCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craftdeck_applies_total",
				Help: "Total number of configuration edits applied by outcome",
			},
			[]string{"outcome"},
		),

		ApplyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "craftdeck_apply_duration_seconds",
				Help:    "Duration of configuration edit application in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),

		RemoteCommandCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craftdeck_remote_commands_total",
				Help: "Total number of RCON command dispatches by status",
			},
			[]string{"status"},
		),

		TemplateApplyCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craftdeck_template_applies_total",
				Help: "Total number of template applications by status",
			},
			[]string{"status"},
		),

		PendingRestart: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "craftdeck_servers_pending_restart",
				Help: "Number of servers with unapplied edits requiring a restart",
			},
		),

		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "craftdeck_store_query_duration_seconds",
				Help:    "Duration of configuration store queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation", "table"},
		),
	}
}

// ObserveScan records one scan's duration and outcome.
func (m *Metrics) ObserveScan(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ScanCounter.WithLabelValues(status).Inc()
	if err == nil {
		m.ScanDuration.Observe(d.Seconds())
	}
}

// ObserveReconciled records the entry counts of one scan.
func (m *Metrics) ObserveReconciled(added, updated, orphaned, pruned int) {
	m.EntriesReconciled.WithLabelValues("added").Add(float64(added))
	m.EntriesReconciled.WithLabelValues("updated").Add(float64(updated))
	m.EntriesReconciled.WithLabelValues("orphaned").Add(float64(orphaned))
	m.EntriesReconciled.WithLabelValues("pruned").Add(float64(pruned))
}

// ObserveApply records one sync engine application.
func (m *Metrics) ObserveApply(outcome string, d time.Duration) {
	m.ApplyCounter.WithLabelValues(outcome).Inc()
	m.ApplyDuration.Observe(d.Seconds())
}

// ObserveRemoteCommand records one RCON dispatch.
func (m *Metrics) ObserveRemoteCommand(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RemoteCommandCounter.WithLabelValues(status).Inc()
}
