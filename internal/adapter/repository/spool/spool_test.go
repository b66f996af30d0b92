package spool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

func setupTestSpool(t *testing.T, segmentSize, maxTotalSize int64) *FileSpool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newWithSegmentSize(t.TempDir(), segmentSize, maxTotalSize, logger)
	if err != nil {
		t.Fatalf("failed to create spool: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func deferred(id string) domain.DeferredRecord {
	return domain.DeferredRecord{
		Service:    "Enterprise",
		Month:      "2025-06",
		DeferredAt: time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC),
		Reason:     "quota exhausted",
		Record:     domain.ExternalRecord{GoogleID: id, GoogleName: "name " + id},
	}
}

func TestSpool_WriteAndReplay(t *testing.T) {
	s := setupTestSpool(t, 1024, 1<<20)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := s.Write(ctx, deferred(fmt.Sprintf("g%d", i))); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}
	s.Close()

	// Re-open to simulate a restart.
	reopened, err := newWithSegmentSize(s.dir, 1024, 1<<20, s.logger)
	if err != nil {
		t.Fatalf("failed to re-open spool: %v", err)
	}
	defer reopened.Close()

	var got []domain.DeferredRecord
	if err := reopened.Replay(ctx, func(rec domain.DeferredRecord) error {
		got = append(got, rec)
		return nil
	}); err != nil {
		t.Fatalf("failed to replay: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 replayed records, got %d", len(got))
	}
	for i, rec := range got {
		want := fmt.Sprintf("g%d", i+1)
		if rec.Record.GoogleID != want || rec.Service != "Enterprise" || rec.Month != "2025-06" {
			t.Errorf("record %d mismatch: %+v", i, rec)
		}
	}
}

func TestSpool_SegmentRotation(t *testing.T) {
	s := setupTestSpool(t, 100, 1<<20)

	for i := 0; i < 4; i++ {
		if err := s.Write(context.Background(), deferred(fmt.Sprintf("g%d", i))); err != nil {
			t.Fatalf("failed to write record: %v", err)
		}
	}

	segments, err := s.segments()
	if err != nil {
		t.Fatalf("failed to list segments: %v", err)
	}
	if len(segments) < 2 {
		t.Errorf("expected at least 2 segments, got %d", len(segments))
	}
}

func TestSpool_Truncate(t *testing.T) {
	s := setupTestSpool(t, 1024, 1<<20)
	ctx := context.Background()

	if err := s.Write(ctx, deferred("g1")); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}
	if err := s.Truncate(ctx); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}

	segments, _ := s.segments()
	if len(segments) != 0 {
		t.Errorf("expected no segments after truncate, got %d", len(segments))
	}

	// The spool stays usable after a truncate.
	if err := s.Write(ctx, deferred("g2")); err != nil {
		t.Fatalf("failed to write after truncate: %v", err)
	}
	count := 0
	_ = s.Replay(ctx, func(domain.DeferredRecord) error { count++; return nil })
	if count != 1 {
		t.Errorf("expected 1 record after truncate and write, got %d", count)
	}
}

func TestSpool_MaxTotalSize(t *testing.T) {
	s := setupTestSpool(t, 100, 300)

	var err error
	for i := 0; i < 10; i++ {
		if err = s.Write(context.Background(), deferred(fmt.Sprintf("g%d", i))); err != nil {
			break
		}
	}
	if !errors.Is(err, ErrSpoolFull) {
		t.Fatalf("expected ErrSpoolFull, got %v", err)
	}
}

func TestSpool_SkipsCorruptLines(t *testing.T) {
	s := setupTestSpool(t, 1024, 1<<20)
	ctx := context.Background()

	if err := s.Write(ctx, deferred("g1")); err != nil {
		t.Fatal(err)
	}
	s.Close()
	corrupt := filepath.Join(s.dir, segmentPrefix+"99999999999999999999"+segmentSuffix)
	if err := os.WriteFile(corrupt, []byte("{not json\n"), filePerm); err != nil {
		t.Fatal(err)
	}

	count := 0
	if err := s.Replay(ctx, func(domain.DeferredRecord) error { count++; return nil }); err != nil {
		t.Fatalf("expected corrupt lines to be skipped, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestSpool_RejectsOversizedRecord(t *testing.T) {
	s := setupTestSpool(t, 1024, 4*maxLineSize)
	ctx := context.Background()

	big := deferred("g-big")
	big.Record.EditorialSummary = strings.Repeat("x", maxLineSize)
	if err := s.Write(ctx, big); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("expected ErrRecordTooLarge, got %v", err)
	}
	if err := s.Write(ctx, deferred("g1")); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	var got []string
	if err := s.Replay(ctx, func(rec domain.DeferredRecord) error {
		got = append(got, rec.Record.GoogleID)
		return nil
	}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(got) != 1 || got[0] != "g1" {
		t.Errorf("expected only g1 to be replayed, got %v", got)
	}
}
