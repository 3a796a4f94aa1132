package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

var (
	ErrNotFound      = errors.New("ride record not found")
	ErrUnauthorized  = errors.New("not the rider of this ride")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Store is the durable trip-history document store. CompleteRide is an
// idempotent merge keyed by the ride identifier: multiple observers may
// race to materialize the same completed ride, and repeating the write
// must leave the record unchanged.
type Store interface {
	CompleteRide(ctx context.Context, rec models.RideRecord) error
	SaveRoute(ctx context.Context, rideID string, route models.CachedRoute) error
	Get(ctx context.Context, rideID string) (models.RideRecord, error)
	// ByRider returns the rider's records ordered by completedAt
	// descending; records without a completion time sort last.
	ByRider(ctx context.Context, riderID string) ([]models.RideRecord, error)
	Rate(ctx context.Context, rideID, riderID string, rating int, comment string) error
}

// SortByCompletedDesc orders records newest-completed first, records with
// no completion time last. Both the indexed query path and the in-memory
// fallback must produce this ordering.
func SortByCompletedDesc(recs []models.RideRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].CompletedAt, recs[j].CompletedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// MemoryStore keeps records in process. It backs tests and runs without a
// Postgres DSN configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.RideRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.RideRecord)}
}

func (m *MemoryStore) CompleteRide(ctx context.Context, rec models.RideRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[rec.ID]
	if !ok {
		if rec.CompletedAt == nil {
			now := time.Now()
			rec.CompletedAt = &now
		}
		m.records[rec.ID] = rec
		return nil
	}

	// merge: completion fields overwrite, everything else (rating, cached
	// route) is left untouched; the first completion time wins so a
	// repeated write has identical effect
	existing.RiderID = rec.RiderID
	existing.Origin = rec.Origin
	existing.Destination = rec.Destination
	existing.Service = rec.Service
	existing.Price = rec.Price
	existing.DriverID = rec.DriverID
	existing.DriverName = rec.DriverName
	existing.DriverPhone = rec.DriverPhone
	existing.Status = rec.Status
	if existing.CompletedAt == nil {
		if rec.CompletedAt != nil {
			existing.CompletedAt = rec.CompletedAt
		} else {
			now := time.Now()
			existing.CompletedAt = &now
		}
	}
	m.records[rec.ID] = existing
	return nil
}

func (m *MemoryStore) SaveRoute(ctx context.Context, rideID string, route models.CachedRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[rideID]
	if !ok {
		return ErrNotFound
	}
	rec.Route = &route
	m.records[rideID] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, rideID string) (models.RideRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[rideID]
	if !ok {
		return models.RideRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) ByRider(ctx context.Context, riderID string) ([]models.RideRecord, error) {
	m.mu.RLock()
	out := make([]models.RideRecord, 0)
	for _, rec := range m.records {
		if rec.RiderID == riderID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	SortByCompletedDesc(out)
	return out, nil
}

func (m *MemoryStore) Rate(ctx context.Context, rideID, riderID string, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[rideID]
	if !ok {
		return ErrNotFound
	}
	if rec.RiderID != riderID {
		return ErrUnauthorized
	}
	now := time.Now()
	rec.RiderRating = rating
	rec.RiderComment = comment
	rec.RiderRatedAt = &now
	m.records[rideID] = rec
	return nil
}
