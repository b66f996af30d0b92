package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

type period struct {
	limit    int
	used     int
	reserved int
}

// QuotaLedger is a process-local domain.QuotaLedger. It is used for dry runs
// and tests; counters are lost on restart.
type QuotaLedger struct {
	mu      sync.Mutex
	limits  domain.QuotaLimits
	periods map[domain.QuotaKey]*period
}

func NewQuotaLedger(limits domain.QuotaLimits) *QuotaLedger {
	return &QuotaLedger{
		limits:  limits,
		periods: make(map[domain.QuotaKey]*period),
	}
}

// Seed sets the counters of a period, creating it if needed.
func (l *QuotaLedger) Seed(key domain.QuotaKey, limit, used int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.periods[key] = &period{limit: limit, used: used}
}

func (l *QuotaLedger) TryReserve(ctx context.Context, key domain.QuotaKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(key)
	if err != nil {
		return err
	}
	if p.used+p.reserved+1 > p.limit {
		return &domain.QuotaExceededError{Key: key, Used: p.used + p.reserved, Limit: p.limit}
	}
	p.reserved++
	return nil
}

func (l *QuotaLedger) Commit(ctx context.Context, key domain.QuotaKey, count int) error {
	if count <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.periods[key]
	if !ok || p.reserved < count {
		return fmt.Errorf("commit %d for %s: not reserved", count, key)
	}
	p.reserved -= count
	p.used += count
	return nil
}

func (l *QuotaLedger) Release(ctx context.Context, key domain.QuotaKey, count int) error {
	if count <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.periods[key]
	if !ok || p.reserved < count {
		return fmt.Errorf("release %d for %s: not reserved", count, key)
	}
	p.reserved -= count
	return nil
}

func (l *QuotaLedger) Usage(ctx context.Context, key domain.QuotaKey) (domain.QuotaPeriod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, err := l.lookup(key)
	if err != nil {
		return domain.QuotaPeriod{}, err
	}
	return domain.QuotaPeriod{Key: key, Limit: p.limit, Used: p.used, Reserved: p.reserved}, nil
}

// lookup creates the period lazily from the configured limits. Callers hold mu.
func (l *QuotaLedger) lookup(key domain.QuotaKey) (*period, error) {
	if p, ok := l.periods[key]; ok {
		return p, nil
	}
	limit, ok := l.limits.Lookup(key.Service)
	if !ok {
		return nil, &domain.QuotaExceededError{Key: key}
	}
	p := &period{limit: limit}
	l.periods[key] = p
	return p, nil
}
