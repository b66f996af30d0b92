package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
	"github.com/V4T54L/ratatouille-sync/internal/domain/mocks"
)

func TestStatusHandler_GetQuota(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := mocks.NewMockQuotaLedger(500)
	june := domain.QuotaKey{Service: "Enterprise", Month: domain.Month{Year: 2025, Month: time.June}}
	ledger.Used[june] = 120
	ledger.Reserved[june] = 3

	h := NewStatusHandler(ledger, &LastRun{}, logger)
	h.now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /quota/{service}", h.GetQuota)

	tests := []struct {
		name           string
		target         string
		expectedStatus int
		expectedUsage  *QuotaUsage
	}{
		{
			name:           "Current Month",
			target:         "/quota/Enterprise",
			expectedStatus: http.StatusOK,
			expectedUsage:  &QuotaUsage{Service: "Enterprise", Month: "2025-06", Limit: 500, Used: 120, Reserved: 3, Remaining: 377},
		},
		{
			name:           "Explicit Month",
			target:         "/quota/Enterprise?month=2025-07",
			expectedStatus: http.StatusOK,
			expectedUsage:  &QuotaUsage{Service: "Enterprise", Month: "2025-07", Limit: 500, Remaining: 500},
		},
		{
			name:           "Invalid Month",
			target:         "/quota/Enterprise?month=june",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.expectedUsage == nil {
				return
			}
			var got QuotaUsage
			if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if got != *tt.expectedUsage {
				t.Errorf("expected %+v, got %+v", *tt.expectedUsage, got)
			}
		})
	}
}

func TestStatusHandler_GetLastRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	last := &LastRun{}
	h := NewStatusHandler(mocks.NewMockQuotaLedger(1), last, logger)

	rr := httptest.NewRecorder()
	h.GetLastRun(rr, httptest.NewRequest(http.MethodGet, "/sync/last", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any run, got %d", rr.Code)
	}

	last.Set(domain.SyncReport{RunID: "run-1", Service: "Enterprise", Month: "2025-06", Applied: 1, Deferred: 2})
	rr = httptest.NewRecorder()
	h.GetLastRun(rr, httptest.NewRequest(http.MethodGet, "/sync/last", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"run_id":"run-1"`) {
		t.Errorf("expected report in body, got %s", rr.Body.String())
	}
}

func TestStatusHandler_HealthCheck(t *testing.T) {
	h := NewStatusHandler(nil, &LastRun{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rr := httptest.NewRecorder()
	h.HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}
}
