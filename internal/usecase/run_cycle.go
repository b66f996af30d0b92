package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// RecordSource yields complete records, e.g. an NDJSON dump.
type RecordSource interface {
	Records(ctx context.Context) ([]domain.ExternalRecord, error)
}

// NameSource yields the restaurant names that should exist, e.g. a shared
// Google Maps list.
type NameSource interface {
	Names(ctx context.Context) ([]string, error)
}

// CycleResult is the outcome of one RunCycle call.
type CycleResult struct {
	Report  domain.SyncReport
	Spooled int
	Pruned  int
}

// RunCycleUseCase is one scheduled pass: replay records deferred by earlier
// passes, add the records and names from the configured sources, sync them
// in a single batch and park whatever the quota did not allow.
type RunCycleUseCase struct {
	sync    *SyncBatchUseCase
	pruner  *PruneRestaurantsUseCase
	spool   domain.DeferredSpool
	records RecordSource
	names   NameSource
	service string
	metrics *metrics.SyncMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunCycleUseCase creates a new RunCycleUseCase. pruner, records and
// names are optional.
func NewRunCycleUseCase(
	sync *SyncBatchUseCase,
	pruner *PruneRestaurantsUseCase,
	spool domain.DeferredSpool,
	records RecordSource,
	names NameSource,
	service string,
	m *metrics.SyncMetrics,
	logger *slog.Logger,
) *RunCycleUseCase {
	return &RunCycleUseCase{
		sync:    sync,
		pruner:  pruner,
		spool:   spool,
		records: records,
		names:   names,
		service: service,
		metrics: m,
		logger:  logger.With("component", "run_cycle"),
		now:     time.Now,
	}
}

// RunCycle returns an error only when a source or the spool fails before the
// batch starts, or when deferred records could not be written back.
func (uc *RunCycleUseCase) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	month := domain.MonthOf(uc.now().UTC())

	var batch []domain.ExternalRecord
	err := uc.spool.Replay(ctx, func(d domain.DeferredRecord) error {
		batch = append(batch, d.Record)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to replay spool: %w", err)
	}
	replayed := len(batch)

	if uc.records != nil {
		recs, err := uc.records.Records(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to read records: %w", err)
		}
		batch = append(batch, recs...)
	}

	var listed []string
	if uc.names != nil {
		listed, err = uc.names.Names(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to read names: %w", err)
		}
		pending, err := uc.sync.pendingRecords(ctx, listed)
		if err != nil {
			return res, err
		}
		batch = append(batch, pending...)
	}

	batch = dedupeRecords(batch)
	uc.logger.Info("sync cycle starting", "month", month.String(), "replayed", replayed, "records", len(batch))

	res.Report = uc.sync.SyncBatch(ctx, batch, uc.service, month)

	// Replayed records stay on disk until the batch is over.
	if err := uc.spool.Truncate(ctx); err != nil {
		return res, fmt.Errorf("failed to truncate spool: %w", err)
	}
	deferredAt := uc.now().UTC()
	for _, i := range res.Report.DeferredIndexes() {
		d := domain.DeferredRecord{
			Service:    uc.service,
			Month:      res.Report.Month,
			DeferredAt: deferredAt,
			Reason:     res.Report.Outcomes[i].Reason,
			Record:     batch[i],
		}
		if err := uc.spool.Write(context.WithoutCancel(ctx), d); err != nil {
			return res, fmt.Errorf("failed to spool deferred record %s: %w", batch[i].Label(), err)
		}
		res.Spooled++
	}
	uc.metrics.SetSpoolRecords(res.Spooled)

	if uc.pruner != nil && len(listed) > 0 && ctx.Err() == nil {
		n, err := uc.pruner.Prune(ctx, listed)
		res.Pruned = n
		if err != nil {
			uc.logger.Error("prune finished with errors", "deleted", n, "error", err)
		}
	}

	uc.metrics.RunFinished(float64(uc.now().Unix()))
	uc.logger.Info("sync cycle finished",
		"run_id", res.Report.RunID,
		"applied", res.Report.Applied,
		"deferred", res.Report.Deferred,
		"failed", res.Report.Failed,
		"spooled", res.Spooled,
		"pruned", res.Pruned,
	)
	return res, nil
}

// dedupeRecords keeps the first record per label.
func dedupeRecords(recs []domain.ExternalRecord) []domain.ExternalRecord {
	seen := make(map[string]struct{}, len(recs))
	out := recs[:0]
	for _, r := range recs {
		label := r.Label()
		if label != "" {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
