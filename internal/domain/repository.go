package domain

import "context"

// RestaurantRepository persists restaurant aggregates.
type RestaurantRepository interface {
	// Replace upserts the restaurant by google_id and swaps its opening hours
	// and types for the snapshot's, all in one transaction. It reports whether
	// a new row was created.
	Replace(ctx context.Context, snapshot RestaurantSnapshot) (id int64, created bool, err error)

	// FindByGoogleID returns nil, nil when the restaurant does not exist.
	FindByGoogleID(ctx context.Context, googleID string) (*RestaurantSnapshot, error)

	// MissingNames returns the names, in input order, that no stored
	// restaurant carries as google_name.
	MissingNames(ctx context.Context, names []string) ([]string, error)

	// StaleGoogleIDs lists restaurants whose google_name is not in keepNames.
	StaleGoogleIDs(ctx context.Context, keepNames []string) ([]string, error)

	// Delete removes a restaurant; child rows cascade.
	Delete(ctx context.Context, googleID string) error
}

// QuotaLedger is the single source of truth for "may I call the external API
// now". TryReserve is atomic per key: concurrent callers never get more
// admissions than the period's limit.
type QuotaLedger interface {
	// TryReserve admits one call (nil) or denies it with an error wrapping
	// ErrQuotaExceeded. Other errors mean the ledger itself failed.
	TryReserve(ctx context.Context, key QuotaKey) error

	// Commit records count reserved calls as spent. It never decrements usage.
	Commit(ctx context.Context, key QuotaKey, count int) error

	// Release returns count reserved calls whose external work failed.
	Release(ctx context.Context, key QuotaKey, count int) error

	// Usage returns the current counters for key.
	Usage(ctx context.Context, key QuotaKey) (QuotaPeriod, error)
}

// PlaceFetcher completes a record from the external source. It is called
// only after a reservation was admitted.
type PlaceFetcher interface {
	Fetch(ctx context.Context, record ExternalRecord) (ExternalRecord, error)
}

// DeferredSpool parks deferred records across process restarts.
type DeferredSpool interface {
	Write(ctx context.Context, record DeferredRecord) error
	Replay(ctx context.Context, handler func(record DeferredRecord) error) error
	Truncate(ctx context.Context) error
}
