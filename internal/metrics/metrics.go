// Package metrics exposes Prometheus counters for schema migrations and sync
// planning. A nil *Collector is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeReset       = "reset"
	OutcomeUnavailable = "unavailable"
	OutcomeNoChanges   = "no_changes"
	OutcomeSkipped     = "skipped"
)

// DefaultNamespace is used when no namespace is configured
const DefaultNamespace = "schemasync"

// Collector owns a Prometheus registry and the metric vectors recorded by
// storage adapters and the sync coordinator.
type Collector struct {
	registry *prometheus.Registry

	Migrations        *prometheus.CounterVec
	MigrationSteps    *prometheus.CounterVec
	MigrationDuration *prometheus.HistogramVec
	StoreBroken       *prometheus.CounterVec
	SyncDiffs         *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Total number of schema set-ups and migrations by outcome",
		}, []string{"backend", "outcome"}),
		MigrationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_steps_total",
			Help:      "Total number of migration steps applied",
		}, []string{"backend", "kind"}),
		MigrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Duration of migrations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		StoreBroken: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_broken_total",
			Help:      "Total number of stores that entered the broken state",
		}, []string{"backend"}),
		SyncDiffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_diffs_total",
			Help:      "Total number of sync plans by migration outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.Migrations, c.MigrationSteps, c.MigrationDuration, c.StoreBroken, c.SyncDiffs)

	return c
}

// Registry returns the underlying registry, or nil for a nil Collector
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}

	return c.registry
}

// RecordMigration counts a set-up or migration run
func (c *Collector) RecordMigration(backend, outcome string, duration time.Duration) {
	if c == nil {
		return
	}

	c.Migrations.WithLabelValues(backend, outcome).Inc()
	c.MigrationDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordStep counts one applied migration step
func (c *Collector) RecordStep(backend, kind string) {
	if c == nil {
		return
	}

	c.MigrationSteps.WithLabelValues(backend, kind).Inc()
}

// RecordBroken counts a store entering the broken state
func (c *Collector) RecordBroken(backend string) {
	if c == nil {
		return
	}

	c.StoreBroken.WithLabelValues(backend).Inc()
}

// RecordSyncDiff counts one sync plan
func (c *Collector) RecordSyncDiff(outcome string) {
	if c == nil {
		return
	}

	c.SyncDiffs.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}

	return prometheus.WriteToTextfile(path, c.registry)
}
