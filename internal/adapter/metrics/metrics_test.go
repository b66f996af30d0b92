package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSyncMetrics(t *testing.T) {
	t.Run("Counts Outcomes", func(t *testing.T) {
		m := NewSyncMetrics(prometheus.NewRegistry())

		m.Record("applied")
		m.Record("applied")
		m.Record("deferred")
		m.QuotaDecision("Pro", "denied")
		m.FieldNulled("website")

		if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("applied")); got != 2 {
			t.Errorf("expected 2 applied, got %v", got)
		}
		if got := testutil.ToFloat64(m.RecordsTotal.WithLabelValues("deferred")); got != 1 {
			t.Errorf("expected 1 deferred, got %v", got)
		}
		if got := testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("Pro", "denied")); got != 1 {
			t.Errorf("expected 1 denial, got %v", got)
		}
		if got := testutil.ToFloat64(m.FieldsNulled.WithLabelValues("website")); got != 1 {
			t.Errorf("expected 1 nulled website, got %v", got)
		}
	})

	t.Run("Nil Is A No-op", func(t *testing.T) {
		var m *SyncMetrics
		m.Record("applied")
		m.QuotaDecision("Pro", "admitted")
		m.FieldNulled("rating")
		m.ObserveUpsert(0.1)
		m.PlacesRequest("details", "ok")
		m.RunFinished(1)
		m.SetQuotaRemaining("Pro", 3)
		m.SetSpoolRecords(2)
	})
}
