package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/telhawk-systems/reportsync/internal/models"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_runs_total",
			Help: "Total number of sync runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportsync_run_duration_seconds",
			Help:    "Duration of full sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportsync_last_run_timestamp_seconds",
			Help: "Unix time the last sync run finished",
		},
	)

	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportsync_run_in_progress",
			Help: "1 while a sync run is executing",
		},
	)

	// Table metrics
	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_records_fetched_total",
			Help: "Total number of source records fetched",
		},
		[]string{"table"},
	)

	RecordsSynced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_records_synced_total",
			Help: "Total number of records upserted into the reporting store",
		},
		[]string{"table"},
	)

	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_records_dropped_total",
			Help: "Total number of records dropped for an unresolved tenant or a missing key",
		},
		[]string{"table"},
	)

	TableErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_table_errors_total",
			Help: "Total number of failed table pipelines",
		},
		[]string{"table"},
	)

	TableDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportsync_table_duration_seconds",
			Help:    "Duration of a single table pipeline in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	// Resolution metrics
	TenantResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_tenant_resolutions_total",
			Help: "Tenant resolutions by cascade step",
		},
		[]string{"table", "via"},
	)

	// Post-sync metrics
	RefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reportsync_refresh_failures_total",
			Help: "Total number of runs whose view refresh failed",
		},
	)

	BackfillMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportsync_backfill_matches_total",
			Help: "Bundle instances matched by the usage backfill, by strategy",
		},
		[]string{"strategy"},
	)
)

// ObserveRun records a finished run.
func ObserveRun(run *models.RunSummary) {
	RunsTotal.WithLabelValues(string(run.Status)).Inc()
	RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	LastRunTimestamp.Set(float64(run.FinishedAt.Unix()))
	if run.RefreshError != "" {
		RefreshFailures.Inc()
	}
}

// ObserveTable records one table result.
func ObserveTable(r models.SyncResult) {
	RecordsFetched.WithLabelValues(r.Table).Add(float64(r.RecordsFetched))
	RecordsSynced.WithLabelValues(r.Table).Add(float64(r.RecordsSynced))
	RecordsDropped.WithLabelValues(r.Table).Add(float64(r.RecordsDropped))
	TableDuration.WithLabelValues(r.Table).Observe(float64(r.DurationMs) / 1000)
	if r.Failed() {
		TableErrors.WithLabelValues(r.Table).Inc()
	}
}
