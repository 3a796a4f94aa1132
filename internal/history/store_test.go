package history

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

func completedRecord(id string) models.RideRecord {
	return models.RideRecord{
		ID:          id,
		RiderID:     "rider-1",
		Origin:      models.Place{Lat: 0, Lng: 0},
		Destination: models.Place{Lat: 1, Lng: 1, Address: "Av. Central 100"},
		Service:     "eco",
		Price:       4.80,
		DriverID:    "d1",
		DriverName:  "X",
		DriverPhone: "+510000",
		Status:      models.StatusCompleted,
	}
}

func TestCompleteRideIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.CompleteRide(ctx, completedRecord("r1")); err != nil {
		t.Fatalf("first CompleteRide: %v", err)
	}
	first, _ := s.Get(ctx, "r1")
	if first.CompletedAt == nil {
		t.Fatal("completedAt not stamped")
	}

	if err := s.CompleteRide(ctx, completedRecord("r1")); err != nil {
		t.Fatalf("second CompleteRide: %v", err)
	}
	second, _ := s.Get(ctx, "r1")
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatal("repeated completion changed completedAt")
	}
	if second.Price != 4.80 || second.DriverName != "X" {
		t.Fatalf("repeated completion changed fields: %+v", second)
	}

	recs, _ := s.ByRider(ctx, "rider-1")
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(recs))
	}
}

func TestCompleteRideMergePreservesRatingAndRoute(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CompleteRide(ctx, completedRecord("r1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Rate(ctx, "r1", "rider-1", 5, "great"); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if err := s.SaveRoute(ctx, "r1", models.CachedRoute{Geometry: [][2]float64{{0, 0}, {1, 1}}, Provider: "osrm"}); err != nil {
		t.Fatalf("SaveRoute: %v", err)
	}

	// a late duplicate completion (e.g. from another observer) must not
	// clobber the rating or the cached route
	if err := s.CompleteRide(ctx, completedRecord("r1")); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Get(ctx, "r1")
	if rec.RiderRating != 5 || rec.Route == nil {
		t.Fatalf("merge clobbered rating/route: %+v", rec)
	}
}

func TestByRiderOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// completedAt values 3, 1, 2, null → expect 3, 2, 1, null
	stamps := []int{3, 1, 2, 0}
	for i, n := range stamps {
		rec := completedRecord(string(rune('a' + i)))
		if n > 0 {
			t := base.Add(time.Duration(n) * time.Hour)
			rec.CompletedAt = &t
		} else {
			rec.CompletedAt = nil
			// store directly to keep the nil completion time
			s.mu.Lock()
			s.records[rec.ID] = rec
			s.mu.Unlock()
			continue
		}
		if err := s.CompleteRide(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ByRider(ctx, "rider-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 records, got %d", len(recs))
	}
	// ids: a→3, b→1, c→2, d→null; expected order a(3), c(2), b(1), d(null)
	expect := []string{"a", "c", "b", "d"}
	for i, id := range expect {
		if recs[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order %+v)", i, recs[i].ID, id, ids(recs))
		}
	}
}

func TestSortByCompletedDescMatchesFallbackContract(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, hour int) models.RideRecord {
		rec := models.RideRecord{ID: id}
		if hour > 0 {
			t := base.Add(time.Duration(hour) * time.Hour)
			rec.CompletedAt = &t
		}
		return rec
	}
	recs := []models.RideRecord{mk("a", 3), mk("b", 1), mk("c", 2), mk("d", 0)}
	SortByCompletedDesc(recs)
	if got := ids(recs); got != "a,c,b,d" {
		t.Fatalf("fallback ordering mismatch: %s", got)
	}
}

func TestRateAuthorization(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CompleteRide(ctx, completedRecord("r1")); err != nil {
		t.Fatal(err)
	}

	if err := s.Rate(ctx, "r1", "someone-else", 4, ""); err != ErrUnauthorized {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := s.Rate(ctx, "r1", "rider-1", 0, ""); err != ErrInvalidRating {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if err := s.Rate(ctx, "r1", "rider-1", 6, ""); err != ErrInvalidRating {
		t.Fatalf("expected ErrInvalidRating, got %v", err)
	}
	if err := s.Rate(ctx, "missing", "rider-1", 3, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Rate(ctx, "r1", "rider-1", 5, "  smooth ride "); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	rec, _ := s.Get(ctx, "r1")
	if rec.RiderRating != 5 || rec.RiderRatedAt == nil {
		t.Fatalf("rating not stored: %+v", rec)
	}
}

func ids(recs []models.RideRecord) string {
	out := ""
	for i, r := range recs {
		if i > 0 {
			out += ","
		}
		out += r.ID
	}
	return out
}
