package pricing

import (
	"math"
	"testing"

	"github.com/example/ride-lifecycle/internal/models"
)

func TestEstimateNeverBelowBase(t *testing.T) {
	tier, err := TierByID("eco")
	if err != nil {
		t.Fatal(err)
	}
	if got := Estimate(tier, 0, 0); got != tier.Base {
		t.Fatalf("zero-length trip priced at %v, want base %v", got, tier.Base)
	}
}

func TestEstimateRoundsToCents(t *testing.T) {
	tier, _ := TierByID("taxi")
	got := Estimate(tier, 3333, 777)
	if got != math.Round(got*100)/100 {
		t.Fatalf("estimate not rounded: %v", got)
	}
	// 3.0 + 3.333*1.5 + 12.95*0.2 = 10.5895 → 10.59
	if got != 10.59 {
		t.Fatalf("expected 10.59, got %v", got)
	}
}

func TestTierByIDUnknown(t *testing.T) {
	if _, err := TierByID("helicopter"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestFallbackSummary(t *testing.T) {
	s := FallbackSummary(models.Coord{Lat: 0, Lng: 0}, models.Coord{Lat: 0, Lng: 0})
	if s.DistanceMeters != 0 || s.DurationSeconds != 0 {
		t.Fatalf("expected zero summary, got %+v", s)
	}
	s = FallbackSummary(models.Coord{Lat: 0, Lng: 0}, models.Coord{Lat: 0, Lng: 1})
	if s.DistanceMeters < 110000 || s.DistanceMeters > 112000 {
		t.Fatalf("one degree of longitude at the equator should be ~111km, got %v", s.DistanceMeters)
	}
	if s.DurationSeconds <= 0 {
		t.Fatalf("expected positive duration, got %v", s.DurationSeconds)
	}
}
