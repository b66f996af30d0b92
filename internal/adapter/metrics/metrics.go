package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ratatouille_sync"

// SyncMetrics holds all Prometheus metrics for the sync engine.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	RecordsTotal     *prometheus.CounterVec
	QuotaDecisions   *prometheus.CounterVec
	FieldsNulled     *prometheus.CounterVec
	UpsertDuration   prometheus.Histogram
	PlacesRequests   *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	QuotaRemaining   *prometheus.GaugeVec
	SpoolRecords     prometheus.Gauge
}

// NewSyncMetrics registers the metrics with reg. Passing nil uses the
// default registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &SyncMetrics{
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of synced records by outcome.",
		}, []string{"status"}), // status: applied, deferred, failed
		QuotaDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "decisions_total",
			Help:      "Quota reservations by service and decision.",
		}, []string{"service", "decision"}), // decision: admitted, denied, error
		FieldsNulled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upsert",
			Name:      "fields_nulled_total",
			Help:      "Fields stored as NULL because they failed validation.",
		}, []string{"field"}),
		UpsertDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upsert",
			Name:      "duration_seconds",
			Help:      "Time spent persisting one restaurant aggregate.",
			Buckets:   prometheus.DefBuckets,
		}),
		PlacesRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "places",
			Name:      "requests_total",
			Help:      "Places API requests by endpoint and result.",
		}, []string{"endpoint", "result"}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last sync cycle finished.",
		}),
		QuotaRemaining: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quota",
			Name:      "remaining",
			Help:      "Calls left in the current period by service.",
		}, []string{"service"}),
		SpoolRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "records",
			Help:      "Deferred records waiting in the spool.",
		}),
	}
}

func (m *SyncMetrics) Record(status string) {
	if m != nil {
		m.RecordsTotal.WithLabelValues(status).Inc()
	}
}

func (m *SyncMetrics) QuotaDecision(service, decision string) {
	if m != nil {
		m.QuotaDecisions.WithLabelValues(service, decision).Inc()
	}
}

func (m *SyncMetrics) FieldNulled(field string) {
	if m != nil {
		m.FieldsNulled.WithLabelValues(field).Inc()
	}
}

func (m *SyncMetrics) ObserveUpsert(seconds float64) {
	if m != nil {
		m.UpsertDuration.Observe(seconds)
	}
}

func (m *SyncMetrics) PlacesRequest(endpoint, result string) {
	if m != nil {
		m.PlacesRequests.WithLabelValues(endpoint, result).Inc()
	}
}

func (m *SyncMetrics) RunFinished(unix float64) {
	if m != nil {
		m.LastRunTimestamp.Set(unix)
	}
}

func (m *SyncMetrics) SetQuotaRemaining(service string, remaining int) {
	if m != nil {
		m.QuotaRemaining.WithLabelValues(service).Set(float64(remaining))
	}
}

func (m *SyncMetrics) SetSpoolRecords(n int) {
	if m != nil {
		m.SpoolRecords.Set(float64(n))
	}
}
