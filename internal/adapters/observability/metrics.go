// Package observability records engine outcomes as Prometheus metrics and
// structured log records.
package observability

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/casenotes/internal/ports/secondary"
)

const metricsNamespace = "casenotes"

// Metrics holds every collector the service exports. Collectors live on a
// dedicated registry so tests and multiple instances never collide.
type Metrics struct {
	registry *prometheus.Registry
	logger   *slog.Logger

	// SyncTotal counts sync upserts.
	// Labels: action (CREATED, UPDATED)
	SyncTotal *prometheus.CounterVec

	// MigrationNotesTotal counts notes handled by migrations.
	// Labels: outcome (kept, created, deleted)
	MigrationNotesTotal *prometheus.CounterVec

	// MovedTotal counts notes re-parented between persons.
	MovedTotal prometheus.Counter

	// AdminMutationsTotal counts audited administrative mutations.
	// Labels: cause (UPDATE, DELETE)
	AdminMutationsTotal *prometheus.CounterVec

	// ReconciliationMissingTotal counts synthetic alert notes found missing.
	// Labels: kind (active, inactive)
	ReconciliationMissingTotal *prometheus.CounterVec

	// ReconciliationCreatedTotal counts synthetic alert notes created.
	// Labels: kind (active, inactive)
	ReconciliationCreatedTotal *prometheus.CounterVec

	// OutboxPublishedTotal counts outbox delivery attempts.
	// Labels: result (published, failed)
	OutboxPublishedTotal *prometheus.CounterVec

	// OutboxDeadLetteredTotal counts events given up on.
	OutboxDeadLetteredTotal prometheus.Counter
}

// NewMetrics creates the collectors on a fresh registry. The registry also
// carries the Go runtime and process collectors.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		logger:   logger,

		SyncTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "sync_total",
				Help:      "Total legacy sync upserts by action",
			},
			[]string{"action"},
		),

		MigrationNotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "migration_notes_total",
				Help:      "Total notes handled by migrations by outcome",
			},
			[]string{"outcome"},
		),

		MovedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "moved_total",
				Help:      "Total notes moved between persons",
			},
		),

		AdminMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "admin_mutations_total",
				Help:      "Total audited administrative mutations by cause",
			},
			[]string{"cause"},
		),

		ReconciliationMissingTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconciliation_missing_total",
				Help:      "Total synthetic alert notes found missing by kind",
			},
			[]string{"kind"},
		),

		ReconciliationCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reconciliation_created_total",
				Help:      "Total synthetic alert notes created by kind",
			},
			[]string{"kind"},
		),

		OutboxPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "outbox_published_total",
				Help:      "Total outbox delivery attempts by result",
			},
			[]string{"result"},
		),

		OutboxDeadLetteredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "outbox_dead_lettered_total",
				Help:      "Total outbox events dead-lettered after exhausting their attempts",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SyncRecorded(action string) {
	m.SyncTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) MigrationRecorded(kept, created, deleted int) {
	m.MigrationNotesTotal.WithLabelValues("kept").Add(float64(kept))
	m.MigrationNotesTotal.WithLabelValues("created").Add(float64(created))
	m.MigrationNotesTotal.WithLabelValues("deleted").Add(float64(deleted))
}

func (m *Metrics) NotesMoved(count int) {
	m.MovedTotal.Add(float64(count))
}

func (m *Metrics) AdminMutation(cause string) {
	m.AdminMutationsTotal.WithLabelValues(cause).Inc()
}

// ReconciliationRecorded counts the report and writes it as one structured
// log record. The record is the observable trace of every reconciliation,
// including runs that created nothing.
func (m *Metrics) ReconciliationRecorded(ctx context.Context, report secondary.ReconciliationReport) {
	m.ReconciliationMissingTotal.WithLabelValues("active").Add(float64(report.ActiveMissing))
	m.ReconciliationMissingTotal.WithLabelValues("inactive").Add(float64(report.InactiveMissing))
	m.ReconciliationCreatedTotal.WithLabelValues("active").Add(float64(report.ActiveCreated))
	m.ReconciliationCreatedTotal.WithLabelValues("inactive").Add(float64(report.InactiveCreated))

	m.logger.InfoContext(ctx, "alert reconciliation",
		"person", report.PersonIdentifier,
		"from", report.From.Format(time.DateOnly),
		"to", report.To.Format(time.DateOnly),
		"active_missing", report.ActiveMissing,
		"inactive_missing", report.InactiveMissing,
		"active_created", report.ActiveCreated,
		"inactive_created", report.InactiveCreated,
	)
}

// OutboxDelivered records the result of one outbox delivery attempt.
func (m *Metrics) OutboxDelivered(ok bool) {
	result := "published"
	if !ok {
		result = "failed"
	}
	m.OutboxPublishedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) OutboxDeadLettered() {
	m.OutboxDeadLetteredTotal.Inc()
}

// Ensure Metrics implements the interface
var _ secondary.Telemetry = (*Metrics)(nil)
