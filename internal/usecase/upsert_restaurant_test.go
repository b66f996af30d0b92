package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
	"github.com/V4T54L/ratatouille-sync/internal/domain/mocks"
)

func testRecord(id string) domain.ExternalRecord {
	return domain.ExternalRecord{
		GoogleID:         id,
		GoogleName:       "name-" + id,
		DisplayName:      "Restaurant " + id,
		FormattedAddress: "Av. Paulista, 1578, loja 3 - Bela Vista, São Paulo - SP, 01310-200, Brasil",
		Periods: []domain.HoursPeriod{
			{Day: 1, Opens: "11:00", Closes: "15:00"},
			{Day: 2, Opens: "11:00", Closes: "15:00"},
		},
		Types: []domain.TypeTag{{Name: "restaurant"}, {Name: "brazilian_restaurant", Primary: true}},
	}
}

func TestUpsertRestaurantUseCase_Apply(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	t.Run("Idempotent Apply", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		first, err := uc.Apply(ctx, testRecord("g1"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		second, err := uc.Apply(ctx, testRecord("g1"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if first != second {
			t.Errorf("expected the same id on resync, got %d and %d", first, second)
		}
		if repo.Count() != 1 {
			t.Errorf("expected 1 stored restaurant, got %d", repo.Count())
		}
	})

	t.Run("Hours Fully Replaced", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		if _, err := uc.Apply(ctx, testRecord("g1")); err != nil {
			t.Fatal(err)
		}
		rec := testRecord("g1")
		rec.Periods = []domain.HoursPeriod{{Day: 0, Opens: "10:00", Closes: "16:00"}}
		if _, err := uc.Apply(ctx, rec); err != nil {
			t.Fatal(err)
		}

		snap, _ := repo.FindByGoogleID(ctx, "g1")
		if len(snap.Hours) != 7 {
			t.Fatalf("expected 7 hour rows, got %d", len(snap.Hours))
		}
		for _, h := range snap.Hours {
			if h.IsOpened != (h.Day == domain.Sunday) {
				t.Errorf("%s: unexpected is_opened=%v after replacement", h.Day.Name(), h.IsOpened)
			}
		}
	})

	t.Run("Single Primary Type", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		if _, err := uc.Apply(ctx, testRecord("g1")); err != nil {
			t.Fatal(err)
		}
		snap, _ := repo.FindByGoogleID(ctx, "g1")
		if snap.PrimaryType() != "brazilian_restaurant" {
			t.Errorf("expected brazilian_restaurant as primary, got %q", snap.PrimaryType())
		}
	})

	t.Run("Missing Identifier", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		_, err := uc.Apply(ctx, testRecord("  "))
		if !errors.Is(err, domain.ErrMissingIdentifier) {
			t.Fatalf("expected ErrMissingIdentifier, got %v", err)
		}
		if repo.Calls != 0 {
			t.Errorf("expected no repository calls, got %d", repo.Calls)
		}
	})

	t.Run("Conflict Retried Once", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.ReplaceErrs = []error{fmt.Errorf("insert: %w", domain.ErrPersistenceConflict)}
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		if _, err := uc.Apply(ctx, testRecord("g1")); err != nil {
			t.Fatalf("expected the retry to succeed, got %v", err)
		}
		if repo.Calls != 2 {
			t.Errorf("expected 2 attempts, got %d", repo.Calls)
		}
	})

	t.Run("Conflict Persists", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.ReplaceErrs = []error{domain.ErrPersistenceConflict, domain.ErrPersistenceConflict, nil}
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		_, err := uc.Apply(ctx, testRecord("g1"))
		if !errors.Is(err, domain.ErrPersistenceConflict) {
			t.Fatalf("expected ErrPersistenceConflict, got %v", err)
		}
		if repo.Calls != 2 {
			t.Errorf("expected 2 attempts, got %d", repo.Calls)
		}
	})

	t.Run("Other Errors Not Retried", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.ReplaceErrs = []error{errors.New("connection refused")}
		uc := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)

		if _, err := uc.Apply(ctx, testRecord("g1")); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if repo.Calls != 1 {
			t.Errorf("expected 1 attempt, got %d", repo.Calls)
		}
	})
}
