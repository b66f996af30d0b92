package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// RestaurantApplier persists one record and returns its restaurant id.
type RestaurantApplier interface {
	Apply(ctx context.Context, rec domain.ExternalRecord) (int64, error)
}

// SyncBatchUseCase drives records through reserve, fetch, upsert and
// commit while staying inside the monthly quota of one API service.
type SyncBatchUseCase struct {
	ledger   domain.QuotaLedger
	fetcher  domain.PlaceFetcher
	upserter RestaurantApplier
	repo     domain.RestaurantRepository
	metrics  *metrics.SyncMetrics
	logger   *slog.Logger
	workers  int
	now      func() time.Time
}

// NewSyncBatchUseCase creates a new SyncBatchUseCase. fetcher may be nil, in
// which case records are applied as given. repo is only needed by SyncNames.
// workers bounds how many records are in flight; 1 processes them strictly
// in input order.
func NewSyncBatchUseCase(
	ledger domain.QuotaLedger,
	fetcher domain.PlaceFetcher,
	upserter RestaurantApplier,
	repo domain.RestaurantRepository,
	m *metrics.SyncMetrics,
	logger *slog.Logger,
	workers int,
) *SyncBatchUseCase {
	if workers < 1 {
		workers = 1
	}
	return &SyncBatchUseCase{
		ledger:   ledger,
		fetcher:  fetcher,
		upserter: upserter,
		repo:     repo,
		metrics:  m,
		logger:   logger.With("component", "sync_batch"),
		workers:  workers,
		now:      time.Now,
	}
}

// SyncBatch processes records against the (service, month) budget. Once a
// reservation is denied no further record is started; the denied record and
// every record not yet started are reported as deferred. Records already
// applied stay applied. SyncBatch never returns an error: every record ends
// up in exactly one outcome, in input order.
func (uc *SyncBatchUseCase) SyncBatch(ctx context.Context, records []domain.ExternalRecord, service string, month domain.Month) domain.SyncReport {
	report := domain.SyncReport{
		RunID:     uuid.NewString(),
		Service:   service,
		Month:     month.String(),
		StartedAt: uc.now().UTC(),
		Outcomes:  make([]domain.RecordOutcome, len(records)),
	}
	log := uc.logger.With("run_id", report.RunID, "service", service, "month", report.Month)
	key := domain.QuotaKey{Service: service, Month: month}

	var stopped atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(uc.workers)
	for i, rec := range records {
		if stopped.Load() || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if stopped.Load() || ctx.Err() != nil {
				return nil
			}
			report.Outcomes[i] = uc.syncOne(ctx, log, key, i, rec, &stopped)
			return nil
		})
	}
	_ = g.Wait()

	pending := "quota exhausted"
	if !stopped.Load() && ctx.Err() != nil {
		pending = "cancelled"
	}
	for i := range report.Outcomes {
		o := &report.Outcomes[i]
		if o.Status == "" {
			*o = domain.RecordOutcome{Index: i, Label: records[i].Label(), Status: domain.StatusDeferred, Reason: pending}
		}
		switch o.Status {
		case domain.StatusApplied:
			report.Applied++
		case domain.StatusDeferred:
			report.Deferred++
		case domain.StatusFailed:
			report.Failed++
		}
		uc.metrics.Record(string(o.Status))
	}
	report.FinishedAt = uc.now().UTC()

	if usage, err := uc.ledger.Usage(context.WithoutCancel(ctx), key); err == nil {
		uc.metrics.SetQuotaRemaining(service, usage.Remaining())
	}

	log.Info("sync batch finished",
		"records", len(records),
		"applied", report.Applied,
		"deferred", report.Deferred,
		"failed", report.Failed,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report
}

func (uc *SyncBatchUseCase) syncOne(ctx context.Context, log *slog.Logger, key domain.QuotaKey, i int, rec domain.ExternalRecord, stopped *atomic.Bool) domain.RecordOutcome {
	out := domain.RecordOutcome{Index: i, Label: rec.Label()}
	fail := func(kind domain.FailureKind, err error) domain.RecordOutcome {
		out.Status, out.Kind, out.Reason = domain.StatusFailed, kind, err.Error()
		return out
	}
	deferred := func(reason string) domain.RecordOutcome {
		out.Status, out.Reason = domain.StatusDeferred, reason
		return out
	}

	if out.Label == "" {
		return fail(domain.FailureMissingIdentifier, domain.ErrMissingIdentifier)
	}
	if uc.fetcher == nil && rec.GoogleID == "" {
		return fail(domain.FailureMissingIdentifier, fmt.Errorf("record %q: %w", rec.GoogleName, domain.ErrMissingIdentifier))
	}

	if err := uc.ledger.TryReserve(ctx, key); err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			stopped.Store(true)
			uc.metrics.QuotaDecision(key.Service, "denied")
			log.Info("quota denied, deferring remaining records", "index", i, "error", err)
		case ctx.Err() != nil:
			return deferred("cancelled")
		default:
			stopped.Store(true)
			uc.metrics.QuotaDecision(key.Service, "error")
			log.Error("quota ledger unavailable, deferring remaining records", "index", i, "error", err)
		}
		return deferred(err.Error())
	}
	uc.metrics.QuotaDecision(key.Service, "admitted")

	// Release and commit run even after cancellation.
	settle := context.WithoutCancel(ctx)

	if uc.fetcher != nil {
		fetched, err := uc.fetcher.Fetch(ctx, rec)
		if err != nil {
			uc.release(settle, log, key, rec)
			if ctx.Err() != nil {
				return deferred("cancelled")
			}
			log.Warn("fetch failed", "label", out.Label, "error", err)
			return fail(domain.FailureFetch, err)
		}
		rec = fetched
		if rec.GoogleID != "" {
			out.Label = rec.GoogleID
		}
	}

	id, err := uc.upserter.Apply(ctx, rec)
	if err != nil {
		uc.release(settle, log, key, rec)
		switch {
		case errors.Is(err, domain.ErrMissingIdentifier):
			return fail(domain.FailureMissingIdentifier, err)
		case errors.Is(err, domain.ErrPersistenceConflict):
			return fail(domain.FailurePersistenceConflict, err)
		case ctx.Err() != nil:
			return deferred("cancelled")
		default:
			return fail(domain.FailurePersistence, err)
		}
	}

	if err := uc.ledger.Commit(settle, key, 1); err != nil {
		log.Error("failed to commit quota reservation", "google_id", rec.GoogleID, "error", err)
	}
	out.Status, out.RestaurantID = domain.StatusApplied, id
	return out
}

func (uc *SyncBatchUseCase) release(ctx context.Context, log *slog.Logger, key domain.QuotaKey, rec domain.ExternalRecord) {
	if err := uc.ledger.Release(ctx, key, 1); err != nil {
		log.Error("failed to release quota reservation", "label", rec.Label(), "error", err)
	}
}

// SyncNames syncs the restaurants named in names that are not stored yet.
// Each name is resolved through the fetcher, so one is required.
func (uc *SyncBatchUseCase) SyncNames(ctx context.Context, names []string, service string, month domain.Month) (domain.SyncReport, error) {
	records, err := uc.pendingRecords(ctx, names)
	if err != nil {
		return domain.SyncReport{}, err
	}
	return uc.SyncBatch(ctx, records, service, month), nil
}

// pendingRecords returns one name-only record per distinct name that has
// no stored restaurant.
func (uc *SyncBatchUseCase) pendingRecords(ctx context.Context, names []string) ([]domain.ExternalRecord, error) {
	if uc.fetcher == nil {
		return nil, errors.New("syncing by name requires a place fetcher")
	}
	if uc.repo == nil {
		return nil, errors.New("syncing by name requires a restaurant repository")
	}
	missing, err := uc.repo.MissingNames(ctx, dedupe(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list missing restaurants: %w", err)
	}
	records := make([]domain.ExternalRecord, 0, len(missing))
	for _, n := range missing {
		records = append(records, domain.ExternalRecord{GoogleName: n})
	}
	uc.logger.Info("restaurants pending insertion", "listed", len(names), "missing", len(records))
	return records, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
