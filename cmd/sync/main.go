package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/api"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/api/handler"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/importer"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/places"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/repository/memory"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/ratatouille-sync/internal/adapter/repository/redis"
	"github.com/V4T54L/ratatouille-sync/internal/adapter/repository/spool"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
	"github.com/V4T54L/ratatouille-sync/internal/pkg/config"
	"github.com/V4T54L/ratatouille-sync/internal/pkg/logger"
	"github.com/V4T54L/ratatouille-sync/internal/usecase"
)

const (
	conflictRetries = 1
	conflictBackoff = 200 * time.Millisecond
)

func main() {
	once := flag.Bool("once", false, "Run a single sync cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting sync worker", "service", cfg.QuotaService, "quota_backend", cfg.QuotaBackend, "workers", cfg.SyncWorkers)

	// Create a context that we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stopChan
		log.Info("shutdown signal received, stopping sync worker...")
		cancel()
	}()

	limits, err := cfg.Limits()
	if err != nil {
		log.Error("invalid quota limits", "error", err)
		os.Exit(1)
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	if cfg.RunMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")
	}

	ledger, closeLedger, err := newLedger(ctx, cfg, db, limits, log)
	if err != nil {
		log.Error("failed to set up quota ledger", "backend", cfg.QuotaBackend, "error", err)
		os.Exit(1)
	}
	defer closeLedger()

	deferred, err := spool.New(cfg.SpoolDir, cfg.SpoolMaxBytes, log)
	if err != nil {
		log.Error("failed to open spool", "error", err)
		os.Exit(1)
	}
	defer deferred.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewSyncMetrics(reg)

	// Optional collaborators stay nil interfaces when unconfigured.
	var (
		fetcher domain.PlaceFetcher
		names   usecase.NameSource
		records usecase.RecordSource
	)
	if cfg.GoogleAPIKey != "" {
		fetcher = places.NewClient(places.Options{
			BaseURL:    cfg.PlacesBaseURL,
			APIKey:     cfg.GoogleAPIKey,
			Language:   cfg.PlacesLanguage,
			RegionHint: cfg.PlacesRegionHint,
			RPS:        cfg.PlacesRPS,
			Timeout:    cfg.PlacesTimeout,
		}, m, log)
	} else {
		log.Warn("GOOGLE_API_KEY not set, records are applied without refreshing from Places")
	}
	if cfg.GoogleListID != "" {
		if fetcher == nil {
			log.Error("GOOGLE_LIST_ID requires GOOGLE_API_KEY to resolve names")
			os.Exit(1)
		}
		names = places.NewListScraper(places.DefaultMapsURL, cfg.GoogleListID, &http.Client{Timeout: cfg.PlacesTimeout}, m, log)
	}
	if cfg.SyncImportFile != "" {
		records = importer.NewFileSource(cfg.SyncImportFile, log)
	}

	repo := postgres.NewRestaurantRepository(db, log)
	upserter := usecase.NewUpsertRestaurantUseCase(repo, m, log, conflictRetries, conflictBackoff)
	syncUC := usecase.NewSyncBatchUseCase(ledger, fetcher, upserter, repo, m, log, cfg.SyncWorkers)
	var pruner *usecase.PruneRestaurantsUseCase
	if cfg.SyncPrune {
		pruner = usecase.NewPruneRestaurantsUseCase(repo, log)
	}
	cycle := usecase.NewRunCycleUseCase(syncUC, pruner, deferred, records, names, cfg.QuotaService, m, log)

	// --- Start Admin and Metrics Server ---
	lastRun := &handler.LastRun{}
	adminServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      api.NewAdminRouter(handler.NewStatusHandler(ledger, lastRun, log), reg, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	runOnce := func() {
		res, err := cycle.RunCycle(ctx)
		if err != nil {
			log.Error("sync cycle failed", "error", err)
			return
		}
		lastRun.Set(res.Report)
	}

	runOnce()
	if !*once {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

	Loop:
		for {
			select {
			case <-ticker.C:
				runOnce()
			case <-ctx.Done():
				log.Info("context cancelled, shutting down sync loop")
				break Loop
			}
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}

	log.Info("sync worker shut down gracefully")
}

func newLedger(ctx context.Context, cfg *config.Config, db *sql.DB, limits domain.QuotaLimits, log *slog.Logger) (domain.QuotaLedger, func(), error) {
	switch cfg.QuotaBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		log.Info("connected to redis")
		return redisrepo.NewQuotaLedger(client, limits, log), func() { client.Close() }, nil
	case "memory":
		log.Warn("in-memory quota ledger does not survive restarts or span processes")
		return memory.NewQuotaLedger(limits), func() {}, nil
	default:
		return postgres.NewQuotaLedger(db, limits, log), func() {}, nil
	}
}
