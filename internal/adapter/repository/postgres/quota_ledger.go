package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// QuotaLedger implements domain.QuotaLedger on the google_api_quota table.
//
// The table has no reserved column, so an admitted reservation is counted in
// quota_used immediately. Commit leaves the counter as it is and Release
// gives the call back. Admission is a single conditional UPDATE, which
// Postgres serializes per row.
type QuotaLedger struct {
	db     *sql.DB
	limits domain.QuotaLimits
	logger *slog.Logger
}

func NewQuotaLedger(db *sql.DB, limits domain.QuotaLimits, logger *slog.Logger) *QuotaLedger {
	return &QuotaLedger{db: db, limits: limits, logger: logger.With("component", "quota_ledger")}
}

func (l *QuotaLedger) TryReserve(ctx context.Context, key domain.QuotaKey) error {
	limit, ok := l.limits.Lookup(key.Service)
	if !ok {
		return &domain.QuotaExceededError{Key: key}
	}

	// Rows are created lazily; an existing row keeps its stored limit.
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO google_api_quota (month_year, api_service, quota_limit, quota_used)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (month_year, api_service) DO NOTHING`,
		key.Month.FirstDay(), key.Service, limit)
	if err != nil {
		return fmt.Errorf("failed to create quota period %s: %w", key, err)
	}

	var used int
	err = l.db.QueryRowContext(ctx, `
		UPDATE google_api_quota
		SET quota_used = quota_used + 1
		WHERE month_year = $1 AND api_service = $2 AND quota_used + 1 <= quota_limit
		RETURNING quota_used`,
		key.Month.FirstDay(), key.Service,
	).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		p, uerr := l.Usage(ctx, key)
		if uerr != nil {
			return &domain.QuotaExceededError{Key: key, Limit: limit}
		}
		return &domain.QuotaExceededError{Key: key, Used: p.Used, Limit: p.Limit}
	}
	if err != nil {
		return fmt.Errorf("failed to reserve quota for %s: %w", key, err)
	}
	l.logger.Debug("quota reserved", "service", key.Service, "month", key.Month.String(), "used", used)
	return nil
}

// Commit is a no-op on the counters: the call was already counted when it
// was reserved.
func (l *QuotaLedger) Commit(ctx context.Context, key domain.QuotaKey, count int) error {
	return nil
}

func (l *QuotaLedger) Release(ctx context.Context, key domain.QuotaKey, count int) error {
	if count <= 0 {
		return nil
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE google_api_quota
		SET quota_used = GREATEST(quota_used - $3, 0)
		WHERE month_year = $1 AND api_service = $2`,
		key.Month.FirstDay(), key.Service, count)
	if err != nil {
		return fmt.Errorf("failed to release quota for %s: %w", key, err)
	}
	return nil
}

// Usage reports the configured limit with zero usage when the period has
// no row yet.
func (l *QuotaLedger) Usage(ctx context.Context, key domain.QuotaKey) (domain.QuotaPeriod, error) {
	p := domain.QuotaPeriod{Key: key}
	err := l.db.QueryRowContext(ctx, `
		SELECT quota_limit, quota_used FROM google_api_quota
		WHERE month_year = $1 AND api_service = $2`,
		key.Month.FirstDay(), key.Service,
	).Scan(&p.Limit, &p.Used)
	if errors.Is(err, sql.ErrNoRows) {
		p.Limit, _ = l.limits.Lookup(key.Service)
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("failed to read quota for %s: %w", key, err)
	}
	return p, nil
}
