package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

const maxLineSize = 1 << 20

// FileSource reads ExternalRecords from a dump file. The file is either
// NDJSON (one record per line) or a single JSON array of records.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a new FileSource.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	return &FileSource{path: path, logger: logger.With("component", "importer", "path", path)}
}

func (s *FileSource) Records(ctx context.Context) ([]domain.ExternalRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	recs, err := Decode(ctx, f, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("records imported", "count", len(recs))
	return recs, nil
}

// Decode reads every record from r. Malformed NDJSON lines are logged and
// skipped; a malformed JSON array fails as a whole.
func Decode(ctx context.Context, r io.Reader, logger *slog.Logger) ([]domain.ExternalRecord, error) {
	br := bufio.NewReader(r)
	if isArray(br) {
		var recs []domain.ExternalRecord
		if err := json.NewDecoder(br).Decode(&recs); err != nil {
			return nil, fmt.Errorf("failed to decode record array: %w", err)
		}
		return recs, nil
	}

	var recs []domain.ExternalRecord
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec domain.ExternalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// Log the error but continue processing other lines
			logger.Warn("failed to unmarshal ndjson line", "line", lineNo, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ndjson: %w", err)
	}
	return recs, nil
}

// isArray peeks past leading whitespace for '['.
func isArray(br *bufio.Reader) bool {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return false
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		_ = br.UnreadByte()
		return b == '['
	}
}
