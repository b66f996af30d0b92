package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

const (
	quotaKeyPrefix = "quota"
	// A period hash outlives its month so late commits still find it.
	periodTTL = 62 * 24 * time.Hour
)

// reserveScript admits one call when used + reserved + 1 <= limit. The
// limit is written once, on the first reservation of the period.
var reserveScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'limit', ARGV[1])
local limit = tonumber(redis.call('HGET', KEYS[1], 'limit'))
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
if used + reserved + 1 > limit then
	return {0, used + reserved, limit}
end
redis.call('HINCRBY', KEYS[1], 'reserved', 1)
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, used + reserved + 1, limit}
`)

// commitScript moves count calls from reserved to used.
var commitScript = redis.NewScript(`
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
local n = tonumber(ARGV[1])
if reserved < n then
	return -1
end
redis.call('HINCRBY', KEYS[1], 'reserved', -n)
return redis.call('HINCRBY', KEYS[1], 'used', n)
`)

// releaseScript drops count calls from reserved.
var releaseScript = redis.NewScript(`
local reserved = tonumber(redis.call('HGET', KEYS[1], 'reserved') or '0')
local n = tonumber(ARGV[1])
if reserved < n then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'reserved', -n)
`)

// QuotaLedger implements domain.QuotaLedger with one Redis hash per
// (service, month). Lua scripts run atomically, so concurrent processes
// sharing the Redis instance never over-admit.
type QuotaLedger struct {
	client *redis.Client
	limits domain.QuotaLimits
	logger *slog.Logger
}

// NewQuotaLedger creates a new Redis-backed QuotaLedger.
func NewQuotaLedger(client *redis.Client, limits domain.QuotaLimits, logger *slog.Logger) *QuotaLedger {
	return &QuotaLedger{
		client: client,
		limits: limits,
		logger: logger.With("component", "redis_quota_ledger"),
	}
}

func periodKey(key domain.QuotaKey) string {
	return fmt.Sprintf("%s:%s:%s", quotaKeyPrefix, key.Service, key.Month)
}

func (l *QuotaLedger) TryReserve(ctx context.Context, key domain.QuotaKey) error {
	limit, ok := l.limits.Lookup(key.Service)
	if !ok {
		return &domain.QuotaExceededError{Key: key}
	}
	res, err := reserveScript.Run(ctx, l.client, []string{periodKey(key)}, limit, int64(periodTTL/time.Second)).Int64Slice()
	if err != nil {
		return fmt.Errorf("failed to reserve quota for %s: %w", key, err)
	}
	if len(res) != 3 {
		return fmt.Errorf("unexpected reserve reply for %s: %v", key, res)
	}
	if res[0] == 0 {
		return &domain.QuotaExceededError{Key: key, Used: int(res[1]), Limit: int(res[2])}
	}
	return nil
}

func (l *QuotaLedger) Commit(ctx context.Context, key domain.QuotaKey, count int) error {
	if count <= 0 {
		return nil
	}
	n, err := commitScript.Run(ctx, l.client, []string{periodKey(key)}, count).Int64()
	if err != nil {
		return fmt.Errorf("failed to commit quota for %s: %w", key, err)
	}
	if n < 0 {
		return fmt.Errorf("commit %d for %s: not reserved", count, key)
	}
	return nil
}

func (l *QuotaLedger) Release(ctx context.Context, key domain.QuotaKey, count int) error {
	if count <= 0 {
		return nil
	}
	n, err := releaseScript.Run(ctx, l.client, []string{periodKey(key)}, count).Int64()
	if err != nil {
		return fmt.Errorf("failed to release quota for %s: %w", key, err)
	}
	if n < 0 {
		l.logger.Warn("release without matching reservation", "service", key.Service, "month", key.Month.String(), "count", count)
		return fmt.Errorf("release %d for %s: not reserved", count, key)
	}
	return nil
}

func (l *QuotaLedger) Usage(ctx context.Context, key domain.QuotaKey) (domain.QuotaPeriod, error) {
	p := domain.QuotaPeriod{Key: key}
	var fields struct {
		Limit    int `redis:"limit"`
		Used     int `redis:"used"`
		Reserved int `redis:"reserved"`
	}
	cmd := l.client.HGetAll(ctx, periodKey(key))
	if err := cmd.Err(); err != nil {
		return p, fmt.Errorf("failed to read quota for %s: %w", key, err)
	}
	if len(cmd.Val()) == 0 {
		p.Limit, _ = l.limits.Lookup(key.Service)
		return p, nil
	}
	if err := cmd.Scan(&fields); err != nil {
		return p, fmt.Errorf("failed to decode quota for %s: %w", key, err)
	}
	p.Limit, p.Used, p.Reserved = fields.Limit, fields.Used, fields.Reserved
	return p, nil
}
