package spool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

const (
	segmentPrefix = "deferred-"
	segmentSuffix = ".jsonl"
	filePerm      = 0644

	defaultSegmentSize = 8 << 20 // 8MB
	maxLineSize        = 1 << 20
)

var (
	// ErrSpoolFull is returned when a write would exceed the size cap.
	ErrSpoolFull = errors.New("spool is full")

	// ErrRecordTooLarge is returned for a record whose line would not fit
	// the replay scanner.
	ErrRecordTooLarge = errors.New("deferred record too large")
)

// FileSpool is a directory of JSON-lines segments holding records deferred
// by quota denials. Writes append to the newest segment; segments rotate at
// segmentSize bytes and the whole directory is capped at maxTotalSize.
type FileSpool struct {
	dir          string
	segmentSize  int64
	maxTotalSize int64
	logger       *slog.Logger

	mu          sync.Mutex
	current     *os.File
	currentSize int64
	seq         int
}

// New opens (creating if needed) a spool in dir.
func New(dir string, maxTotalSize int64, logger *slog.Logger) (*FileSpool, error) {
	return newWithSegmentSize(dir, defaultSegmentSize, maxTotalSize, logger)
}

func newWithSegmentSize(dir string, segmentSize, maxTotalSize int64, logger *slog.Logger) (*FileSpool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}
	return &FileSpool{
		dir:          dir,
		segmentSize:  segmentSize,
		maxTotalSize: maxTotalSize,
		logger:       logger.With("component", "spool"),
	}, nil
}

// Write appends one deferred record.
func (s *FileSpool) Write(ctx context.Context, rec domain.DeferredRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal deferred record: %w", err)
	}
	data = append(data, '\n')
	if len(data) > maxLineSize {
		return fmt.Errorf("%w: %d bytes for %s", ErrRecordTooLarge, len(data), rec.Record.Label())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.totalSize()
	if err != nil {
		return fmt.Errorf("could not verify spool size: %w", err)
	}
	if s.maxTotalSize > 0 && total+int64(len(data)) > s.maxTotalSize {
		return fmt.Errorf("%w (%d + %d > %d bytes)", ErrSpoolFull, total, len(data), s.maxTotalSize)
	}

	if s.current == nil || s.currentSize >= s.segmentSize {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	n, err := s.current.Write(data)
	s.currentSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to spool segment: %w", err)
	}
	return nil
}

// Replay calls handler for every spooled record, oldest first. Lines that do
// not decode are skipped with a warning.
func (s *FileSpool) Replay(ctx context.Context, handler func(rec domain.DeferredRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		if err := s.current.Sync(); err != nil {
			s.logger.Error("failed to sync spool segment before replay", "error", err)
		}
	}

	segments, err := s.segments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	replayed := 0
	for _, path := range segments {
		n, err := s.replaySegment(ctx, path, handler)
		replayed += n
		if err != nil {
			return err
		}
	}
	s.logger.Info("spool replayed", "segments", len(segments), "records", replayed)
	return nil
}

func (s *FileSpool) replaySegment(ctx context.Context, path string, handler func(domain.DeferredRecord) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		var rec domain.DeferredRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.Warn("skipping undecodable spool line", "path", path, "error", err)
			continue
		}
		if err := handler(rec); err != nil {
			return n, fmt.Errorf("replay handler failed: %w", err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return n, nil
}

// Truncate removes every segment.
func (s *FileSpool) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeCurrent()
	segments, err := s.segments()
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range segments {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close ensures the current segment is closed gracefully.
func (s *FileSpool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	return err
}

func (s *FileSpool) rotate() error {
	s.closeCurrent()
	s.seq++
	name := fmt.Sprintf("%s%020d-%06d%s", segmentPrefix, time.Now().UnixNano(), s.seq, segmentSuffix)
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create spool segment %s: %w", path, err)
	}
	s.current, s.currentSize = f, 0
	s.logger.Debug("rotated spool segment", "path", path)
	return nil
}

func (s *FileSpool) closeCurrent() {
	if s.current == nil {
		return
	}
	if err := s.current.Sync(); err != nil {
		s.logger.Error("failed to sync spool segment", "error", err)
	}
	if err := s.current.Close(); err != nil {
		s.logger.Error("failed to close spool segment", "error", err)
	}
	s.current = nil
}

func (s *FileSpool) segments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, segmentPrefix) && strings.HasSuffix(name, segmentSuffix) {
			out = append(out, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileSpool) totalSize() (int64, error) {
	segments, err := s.segments()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, path := range segments {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
