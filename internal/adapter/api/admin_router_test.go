package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/api/handler"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/domain/mocks"
)

func TestAdminRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewSyncMetrics(reg)
	m.Record("applied")

	h := handler.NewStatusHandler(mocks.NewMockQuotaLedger(10), &handler.LastRun{}, logger)
	srv := httptest.NewServer(NewAdminRouter(h, reg, logger))
	defer srv.Close()

	tests := []struct {
		path         string
		expectedCode int
		contains     string
	}{
		{"/health", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "ratatouille_sync_sync_records_total"},
		{"/quota/Enterprise", http.StatusOK, `"limit":10`},
		{"/sync/last", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.expectedCode {
				t.Errorf("expected %d, got %d", tt.expectedCode, resp.StatusCode)
			}
			if tt.contains != "" && !strings.Contains(string(body), tt.contains) {
				t.Errorf("expected body to contain %q, got %s", tt.contains, body)
			}
		})
	}
}
