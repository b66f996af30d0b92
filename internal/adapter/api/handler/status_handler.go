package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// LastRun holds the report of the most recent sync cycle.
type LastRun struct {
	report atomic.Pointer[domain.SyncReport]
}

func (l *LastRun) Set(r domain.SyncReport) { l.report.Store(&r) }

func (l *LastRun) Get() (domain.SyncReport, bool) {
	r := l.report.Load()
	if r == nil {
		return domain.SyncReport{}, false
	}
	return *r, true
}

// QuotaUsage is the JSON view of a QuotaPeriod.
type QuotaUsage struct {
	Service   string `json:"service"`
	Month     string `json:"month"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Reserved  int    `json:"reserved"`
	Remaining int    `json:"remaining"`
}

// StatusHandler serves read-only operational endpoints.
type StatusHandler struct {
	ledger  domain.QuotaLedger
	lastRun *LastRun
	logger  *slog.Logger
	now     func() time.Time
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(ledger domain.QuotaLedger, lastRun *LastRun, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{ledger: ledger, lastRun: lastRun, logger: logger, now: time.Now}
}

// HealthCheck is a simple health check endpoint.
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetQuota reports a service's counters for ?month=YYYY-MM (default: current month).
// GET /quota/{service}
func (h *StatusHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	month := domain.MonthOf(h.now())
	if s := r.URL.Query().Get("month"); s != "" {
		m, err := domain.ParseMonth(s)
		if err != nil {
			http.Error(w, "invalid month, expected YYYY-MM", http.StatusBadRequest)
			return
		}
		month = m
	}

	period, err := h.ledger.Usage(r.Context(), domain.QuotaKey{Service: service, Month: month})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			http.Error(w, "unknown service", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to read quota usage", "service", service, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondWithJSON(w, http.StatusOK, QuotaUsage{
		Service:   service,
		Month:     month.String(),
		Limit:     period.Limit,
		Used:      period.Used,
		Reserved:  period.Reserved,
		Remaining: period.Remaining(),
	})
}

// GetLastRun returns the last sync report.
// GET /sync/last
func (h *StatusHandler) GetLastRun(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lastRun.Get()
	if !ok {
		http.Error(w, "no sync cycle has finished yet", http.StatusNotFound)
		return
	}
	h.respondWithJSON(w, http.StatusOK, report)
}

func (h *StatusHandler) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write json response", "error", err)
	}
}
