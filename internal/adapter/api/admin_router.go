package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/api/handler"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/api/middleware"
)

// NewAdminRouter creates the HTTP router for the sync engine's operational
// endpoints. gatherer may be nil to expose the default registry.
func NewAdminRouter(statusHandler *handler.StatusHandler, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", statusHandler.HealthCheck)
	mux.HandleFunc("GET /quota/{service}", statusHandler.GetQuota)
	mux.HandleFunc("GET /sync/last", statusHandler.GetLastRun)

	if gatherer == nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	} else {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Logging(logger)(mux)
}
