package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

const (
	defaultConflictRetries = 1
	defaultConflictBackoff = 50 * time.Millisecond
)

// UpsertRestaurantUseCase validates a record and idempotently replaces the
// stored restaurant aggregate keyed by google_id.
type UpsertRestaurantUseCase struct {
	repo    domain.RestaurantRepository
	metrics *metrics.SyncMetrics
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

// NewUpsertRestaurantUseCase creates a new UpsertRestaurantUseCase. A
// persistence conflict is retried retries times, waiting backoff in between.
func NewUpsertRestaurantUseCase(repo domain.RestaurantRepository, m *metrics.SyncMetrics, logger *slog.Logger, retries int, backoff time.Duration) *UpsertRestaurantUseCase {
	if retries < 0 {
		retries = defaultConflictRetries
	}
	return &UpsertRestaurantUseCase{
		repo:    repo,
		metrics: m,
		logger:  logger.With("component", "upsert_restaurant"),
		retries: retries,
		backoff: backoff,
	}
}

// Apply stores rec and returns the restaurant id. A record without a
// google_id is rejected with domain.ErrMissingIdentifier; invalid optional
// fields are stored as NULL.
func (uc *UpsertRestaurantUseCase) Apply(ctx context.Context, rec domain.ExternalRecord) (int64, error) {
	if strings.TrimSpace(rec.GoogleID) == "" {
		return 0, fmt.Errorf("record %q: %w", rec.GoogleName, domain.ErrMissingIdentifier)
	}

	snapshot, issues := Normalize(rec)
	for _, v := range issues {
		uc.metrics.FieldNulled(v.Field)
		uc.logger.Warn("field stored as null", "google_id", snapshot.Restaurant.GoogleID, "field", v.Field, "value", v.Value, "reason", v.Reason)
	}

	start := time.Now()
	id, created, err := uc.replaceWithRetry(ctx, snapshot)
	uc.metrics.ObserveUpsert(time.Since(start).Seconds())
	if err != nil {
		uc.logger.Error("failed to persist restaurant", "google_id", snapshot.Restaurant.GoogleID, "error", err)
		return 0, err
	}

	uc.logger.Debug("restaurant persisted", "google_id", snapshot.Restaurant.GoogleID, "id", id, "created", created,
		"hours", len(snapshot.Hours), "types", len(snapshot.Types))
	return id, nil
}

func (uc *UpsertRestaurantUseCase) replaceWithRetry(ctx context.Context, snapshot domain.RestaurantSnapshot) (int64, bool, error) {
	var lastErr error
	for i := 0; i <= uc.retries; i++ {
		id, created, err := uc.repo.Replace(ctx, snapshot)
		if err == nil {
			return id, created, nil
		}
		if !errors.Is(err, domain.ErrPersistenceConflict) {
			return 0, false, err
		}
		lastErr = err
		if i == uc.retries {
			break
		}
		uc.logger.Warn("persistence conflict, retrying...", "attempt", i+1, "google_id", snapshot.Restaurant.GoogleID, "error", err)
		select {
		case <-time.After(uc.backoff):
			// continue
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
	}
	return 0, false, lastErr
}
