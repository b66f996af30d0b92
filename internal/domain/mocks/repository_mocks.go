package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

// MockRestaurantRepository is an in-memory domain.RestaurantRepository.
// It keeps one snapshot per google_id so idempotency can be asserted.
type MockRestaurantRepository struct {
	mu        sync.Mutex
	nextID    int64
	Snapshots map[string]domain.RestaurantSnapshot
	Calls     int

	// ReplaceErrs is consumed one error per Replace call, in order.
	ReplaceErrs []error
	// FailFor makes Replace fail for specific google_ids.
	FailFor   map[string]error
	FindErr   error
	DeleteErr error
	ListErr   error
}

func NewMockRestaurantRepository() *MockRestaurantRepository {
	return &MockRestaurantRepository{Snapshots: map[string]domain.RestaurantSnapshot{}}
}

func (m *MockRestaurantRepository) Replace(ctx context.Context, snap domain.RestaurantSnapshot) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if len(m.ReplaceErrs) > 0 {
		err := m.ReplaceErrs[0]
		m.ReplaceErrs = m.ReplaceErrs[1:]
		if err != nil {
			return 0, false, err
		}
	}
	if err, ok := m.FailFor[snap.Restaurant.GoogleID]; ok {
		return 0, false, err
	}
	if m.Snapshots == nil {
		m.Snapshots = map[string]domain.RestaurantSnapshot{}
	}
	prev, exists := m.Snapshots[snap.Restaurant.GoogleID]
	if exists {
		snap.Restaurant.ID = prev.Restaurant.ID
	} else {
		m.nextID++
		snap.Restaurant.ID = m.nextID
	}
	m.Snapshots[snap.Restaurant.GoogleID] = snap
	return snap.Restaurant.ID, !exists, nil
}

func (m *MockRestaurantRepository) FindByGoogleID(ctx context.Context, googleID string) (*domain.RestaurantSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	snap, ok := m.Snapshots[googleID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MockRestaurantRepository) MissingNames(ctx context.Context, names []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	stored := m.storedNames()
	var missing []string
	for _, n := range names {
		if _, ok := stored[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing, nil
}

func (m *MockRestaurantRepository) StaleGoogleIDs(ctx context.Context, keepNames []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	keep := make(map[string]struct{}, len(keepNames))
	for _, n := range keepNames {
		keep[n] = struct{}{}
	}
	var stale []string
	for id, snap := range m.Snapshots {
		name := ""
		if snap.Restaurant.GoogleName != nil {
			name = *snap.Restaurant.GoogleName
		}
		if _, ok := keep[name]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

func (m *MockRestaurantRepository) Delete(ctx context.Context, googleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Snapshots, googleID)
	return nil
}

// Count returns the number of stored restaurants.
func (m *MockRestaurantRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Snapshots)
}

func (m *MockRestaurantRepository) storedNames() map[string]struct{} {
	out := make(map[string]struct{}, len(m.Snapshots))
	for _, s := range m.Snapshots {
		if s.Restaurant.GoogleName != nil {
			out[*s.Restaurant.GoogleName] = struct{}{}
		}
	}
	return out
}

// MockQuotaLedger admits up to Limit reservations per key.
type MockQuotaLedger struct {
	mu         sync.Mutex
	Limit      int
	Used       map[domain.QuotaKey]int
	Reserved   map[domain.QuotaKey]int
	Commits    int
	Releases   int
	Reserves   int
	ReserveErr error
	CommitErr  error
}

func NewMockQuotaLedger(limit int) *MockQuotaLedger {
	return &MockQuotaLedger{
		Limit:    limit,
		Used:     map[domain.QuotaKey]int{},
		Reserved: map[domain.QuotaKey]int{},
	}
}

func (m *MockQuotaLedger) TryReserve(ctx context.Context, key domain.QuotaKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reserves++
	if m.ReserveErr != nil {
		return m.ReserveErr
	}
	if m.Used[key]+m.Reserved[key] >= m.Limit {
		return &domain.QuotaExceededError{Key: key, Used: m.Used[key], Limit: m.Limit}
	}
	m.Reserved[key]++
	return nil
}

func (m *MockQuotaLedger) Commit(ctx context.Context, key domain.QuotaKey, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return m.CommitErr
	}
	if count > m.Reserved[key] {
		return fmt.Errorf("commit %d on %s: only %d reserved", count, key, m.Reserved[key])
	}
	m.Commits += count
	m.Reserved[key] -= count
	m.Used[key] += count
	return nil
}

func (m *MockQuotaLedger) Release(ctx context.Context, key domain.QuotaKey, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if count > m.Reserved[key] {
		count = m.Reserved[key]
	}
	m.Releases += count
	m.Reserved[key] -= count
	return nil
}

func (m *MockQuotaLedger) Usage(ctx context.Context, key domain.QuotaKey) (domain.QuotaPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.QuotaPeriod{Key: key, Limit: m.Limit, Used: m.Used[key], Reserved: m.Reserved[key]}, nil
}

// MockFetcher returns records from Places keyed by Label, or the input
// record unchanged when no entry exists.
type MockFetcher struct {
	mu      sync.Mutex
	Places  map[string]domain.ExternalRecord
	FailFor map[string]error
	Calls   []string
}

func (m *MockFetcher) Fetch(ctx context.Context, rec domain.ExternalRecord) (domain.ExternalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	label := rec.Label()
	m.Calls = append(m.Calls, label)
	if err, ok := m.FailFor[label]; ok {
		return domain.ExternalRecord{}, err
	}
	if p, ok := m.Places[label]; ok {
		return p, nil
	}
	return rec, nil
}

// MockSpool is an in-memory domain.DeferredSpool.
type MockSpool struct {
	mu       sync.Mutex
	Records  []domain.DeferredRecord
	WriteErr error
}

func (m *MockSpool) Write(ctx context.Context, rec domain.DeferredRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockSpool) Replay(ctx context.Context, handler func(domain.DeferredRecord) error) error {
	m.mu.Lock()
	recs := append([]domain.DeferredRecord(nil), m.Records...)
	m.mu.Unlock()
	for _, r := range recs {
		if err := handler(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockSpool) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = nil
	return nil
}
