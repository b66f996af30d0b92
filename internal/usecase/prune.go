package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrEmptyKeepList guards against wiping the directory when the source list
// comes back empty.
var ErrEmptyKeepList = errors.New("refusing to prune with an empty keep list")

// PruneRestaurantsUseCase removes restaurants that left the source list.
// Opening hours and types go with them through ON DELETE CASCADE.
type PruneRestaurantsUseCase struct {
	repo   RestaurantPruneRepository
	logger *slog.Logger
}

// RestaurantPruneRepository is the subset of domain.RestaurantRepository
// the pruner needs.
type RestaurantPruneRepository interface {
	StaleGoogleIDs(ctx context.Context, keepNames []string) ([]string, error)
	Delete(ctx context.Context, googleID string) error
}

func NewPruneRestaurantsUseCase(repo RestaurantPruneRepository, logger *slog.Logger) *PruneRestaurantsUseCase {
	return &PruneRestaurantsUseCase{repo: repo, logger: logger.With("component", "prune")}
}

// Prune deletes every restaurant whose google_name is not in keepNames and
// returns how many were deleted. A failed delete does not stop the others.
func (uc *PruneRestaurantsUseCase) Prune(ctx context.Context, keepNames []string) (int, error) {
	if len(dedupe(keepNames)) == 0 {
		return 0, ErrEmptyKeepList
	}

	stale, err := uc.repo.StaleGoogleIDs(ctx, keepNames)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale restaurants: %w", err)
	}

	deleted := 0
	var errs []error
	for _, id := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := uc.repo.Delete(ctx, id); err != nil {
			uc.logger.Error("failed to delete restaurant", "google_id", id, "error", err)
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		deleted++
		uc.logger.Info("restaurant deleted", "google_id", id)
	}
	return deleted, errors.Join(errs...)
}
