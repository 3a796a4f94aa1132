package pricing

import (
	"fmt"
	"math"

	"github.com/example/ride-lifecycle/internal/models"
)

// Tier is a ride service level with its fare rates.
type Tier struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Base   float64 `json:"base"`
	PerKm  float64 `json:"per_km"`
	PerMin float64 `json:"per_min"`
}

var tiers = []Tier{
	{ID: "taxi", Label: "Taxi", Base: 3.0, PerKm: 1.5, PerMin: 0.2},
	{ID: "premium", Label: "Premium", Base: 5.0, PerKm: 2.2, PerMin: 0.3},
	{ID: "eco", Label: "Eco", Base: 2.5, PerKm: 1.2, PerMin: 0.18},
}

func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

func TierByID(id string) (Tier, error) {
	for _, t := range tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return Tier{}, fmt.Errorf("unknown service tier %q", id)
}

// Estimate quotes a price for the tier given trip distance and duration.
// The quote never drops below the tier's base fare and is rounded to cents.
func Estimate(tier Tier, distanceMeters, durationSeconds float64) float64 {
	price := tier.Base + (distanceMeters/1000)*tier.PerKm + (durationSeconds/60)*tier.PerMin
	if price < tier.Base {
		price = tier.Base
	}
	return math.Round(price*100) / 100
}

const defaultSpeedMps = 8.0 // ~28.8 km/h city traffic

// FallbackSummary estimates a trip summary from straight-line distance when
// no route provider can produce one. The quote stays usable even with every
// directions provider down.
func FallbackSummary(origin, destination models.Coord) models.RouteSummary {
	d := haversine(origin.Lat, origin.Lng, destination.Lat, destination.Lng)
	return models.RouteSummary{
		DistanceMeters:  d,
		DurationSeconds: d / defaultSpeedMps,
	}
}

// haversine distance in meters
func haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
