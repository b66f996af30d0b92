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

var syncMonth = domain.Month{Year: 2025, Month: time.June}

func records(n int) []domain.ExternalRecord {
	out := make([]domain.ExternalRecord, n)
	for i := range out {
		out[i] = testRecord(fmt.Sprintf("g%d", i+1))
	}
	return out
}

func newSync(repo *mocks.MockRestaurantRepository, ledger domain.QuotaLedger, fetcher domain.PlaceFetcher, workers int) *SyncBatchUseCase {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	upserter := NewUpsertRestaurantUseCase(repo, nil, logger, 1, time.Millisecond)
	return NewSyncBatchUseCase(ledger, fetcher, upserter, repo, nil, logger, workers)
}

func TestSyncBatchUseCase_SyncBatch(t *testing.T) {
	ctx := context.Background()
	key := domain.QuotaKey{Service: "Pro", Month: syncMonth}

	t.Run("Quota Exhausted Mid Batch", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(1)
		uc := newSync(repo, ledger, nil, 1)

		report := uc.SyncBatch(ctx, records(3), "Pro", syncMonth)

		if report.Applied != 1 || report.Deferred != 2 || report.Failed != 0 {
			t.Fatalf("expected {1 applied, 2 deferred, 0 failed}, got {%d, %d, %d}", report.Applied, report.Deferred, report.Failed)
		}
		want := []domain.RecordStatus{domain.StatusApplied, domain.StatusDeferred, domain.StatusDeferred}
		for i, o := range report.Outcomes {
			if o.Index != i || o.Status != want[i] {
				t.Errorf("outcome %d: expected %s at index %d, got %+v", i, want[i], i, o)
			}
		}
		if ledger.Used[key] != 1 || ledger.Reserved[key] != 0 {
			t.Errorf("expected used 1 and reserved 0, got %d/%d", ledger.Used[key], ledger.Reserved[key])
		}
		if ledger.Reserves != 2 {
			t.Errorf("expected no reservation after the denial, got %d attempts", ledger.Reserves)
		}
		if report.RunID == "" || report.Month != "2025-06" {
			t.Errorf("unexpected report header: %+v", report)
		}
	})

	t.Run("Failure Releases Reservation", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.FailFor = map[string]error{"g2": errors.New("disk full")}
		ledger := mocks.NewMockQuotaLedger(10)
		uc := newSync(repo, ledger, nil, 1)

		report := uc.SyncBatch(ctx, records(3), "Pro", syncMonth)

		if report.Applied != 2 || report.Failed != 1 {
			t.Fatalf("expected 2 applied and 1 failed, got %+v", report)
		}
		failures := report.Failures()
		if len(failures) != 1 || failures[0].Label != "g2" || failures[0].Kind != domain.FailurePersistence {
			t.Errorf("unexpected failures: %+v", failures)
		}
		if ledger.Used[key] != 2 || ledger.Releases != 1 || ledger.Reserved[key] != 0 {
			t.Errorf("expected used 2, 1 release and nothing reserved, got used=%d releases=%d reserved=%d",
				ledger.Used[key], ledger.Releases, ledger.Reserved[key])
		}
	})

	t.Run("Conflict Reported With Kind", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.FailFor = map[string]error{"g1": domain.ErrPersistenceConflict}
		uc := newSync(repo, mocks.NewMockQuotaLedger(10), nil, 1)

		report := uc.SyncBatch(ctx, records(1), "Pro", syncMonth)

		if report.Failed != 1 || report.Outcomes[0].Kind != domain.FailurePersistenceConflict {
			t.Errorf("expected a persistence conflict failure, got %+v", report.Outcomes)
		}
	})

	t.Run("Missing Identifier Spends Nothing", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(10)
		uc := newSync(repo, ledger, nil, 1)
		recs := records(2)
		recs[0].GoogleID = ""

		report := uc.SyncBatch(ctx, recs, "Pro", syncMonth)

		if report.Outcomes[0].Kind != domain.FailureMissingIdentifier || report.Applied != 1 {
			t.Errorf("unexpected outcomes: %+v", report.Outcomes)
		}
		if ledger.Reserves != 1 {
			t.Errorf("expected 1 reservation, got %d", ledger.Reserves)
		}
	})

	t.Run("Ledger Error Defers", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(10)
		ledger.ReserveErr = errors.New("redis: connection refused")
		uc := newSync(repo, ledger, nil, 1)

		report := uc.SyncBatch(ctx, records(3), "Pro", syncMonth)

		if report.Deferred != 3 || repo.Calls != 0 {
			t.Errorf("expected all 3 deferred and no writes, got %+v (writes=%d)", report, repo.Calls)
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(10)
		uc := newSync(repo, ledger, nil, 1)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		report := uc.SyncBatch(cctx, records(2), "Pro", syncMonth)

		if report.Deferred != 2 {
			t.Fatalf("expected 2 deferred, got %+v", report)
		}
		if report.Outcomes[0].Reason != "cancelled" {
			t.Errorf("expected reason cancelled, got %q", report.Outcomes[0].Reason)
		}
		if ledger.Reserves != 0 {
			t.Errorf("expected no reservations, got %d", ledger.Reserves)
		}
	})

	t.Run("Parallel Workers Respect Limit", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(5)
		uc := newSync(repo, ledger, nil, 4)

		report := uc.SyncBatch(ctx, records(20), "Pro", syncMonth)

		if report.Applied != 5 || report.Deferred != 15 {
			t.Fatalf("expected 5 applied and 15 deferred, got %d/%d", report.Applied, report.Deferred)
		}
		for i, o := range report.Outcomes {
			if o.Index != i || o.Label != fmt.Sprintf("g%d", i+1) {
				t.Errorf("outcome %d out of order: %+v", i, o)
			}
		}
		if repo.Count() != 5 || ledger.Used[key] != 5 {
			t.Errorf("expected 5 stored and 5 used, got %d/%d", repo.Count(), ledger.Used[key])
		}
	})

	t.Run("Fetch Failure", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		ledger := mocks.NewMockQuotaLedger(10)
		fetcher := &mocks.MockFetcher{FailFor: map[string]error{"g1": domain.ErrPlaceNotFound}}
		uc := newSync(repo, ledger, fetcher, 1)

		report := uc.SyncBatch(ctx, records(2), "Pro", syncMonth)

		if report.Outcomes[0].Status != domain.StatusFailed || report.Outcomes[0].Kind != domain.FailureFetch {
			t.Errorf("expected a fetch failure, got %+v", report.Outcomes[0])
		}
		if report.Outcomes[1].Status != domain.StatusApplied {
			t.Errorf("expected second record applied, got %+v", report.Outcomes[1])
		}
		if ledger.Used[key] != 1 || ledger.Releases != 1 {
			t.Errorf("expected used 1 and 1 release, got %d/%d", ledger.Used[key], ledger.Releases)
		}
	})
}

func TestSyncBatchUseCase_SyncNames(t *testing.T) {
	ctx := context.Background()

	t.Run("Only Missing Names Are Fetched", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		existing := testRecord("g-old")
		existing.GoogleName = "Bar do Zé"
		snap, _ := Normalize(existing)
		if _, _, err := repo.Replace(ctx, snap); err != nil {
			t.Fatal(err)
		}

		fetcher := &mocks.MockFetcher{Places: map[string]domain.ExternalRecord{
			"Cantina": testRecord("g-cantina"),
			"Padaria": testRecord("g-padaria"),
		}}
		uc := newSync(repo, mocks.NewMockQuotaLedger(10), fetcher, 1)

		report, err := uc.SyncNames(ctx, []string{"Bar do Zé", "Cantina", "Cantina", "Padaria"}, "Pro", syncMonth)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if report.Applied != 2 {
			t.Errorf("expected 2 applied, got %+v", report)
		}
		if len(fetcher.Calls) != 2 || fetcher.Calls[0] != "Cantina" || fetcher.Calls[1] != "Padaria" {
			t.Errorf("unexpected fetches: %v", fetcher.Calls)
		}
		if repo.Count() != 3 {
			t.Errorf("expected 3 stored restaurants, got %d", repo.Count())
		}
	})

	t.Run("Requires Fetcher", func(t *testing.T) {
		uc := newSync(mocks.NewMockRestaurantRepository(), mocks.NewMockQuotaLedger(10), nil, 1)
		if _, err := uc.SyncNames(ctx, []string{"Cantina"}, "Pro", syncMonth); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Listing Error", func(t *testing.T) {
		repo := mocks.NewMockRestaurantRepository()
		repo.ListErr = errors.New("db down")
		uc := newSync(repo, mocks.NewMockQuotaLedger(10), &mocks.MockFetcher{}, 1)
		if _, err := uc.SyncNames(ctx, []string{"Cantina"}, "Pro", syncMonth); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}
