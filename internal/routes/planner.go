package routes

import (
	"context"
	"errors"

	"github.com/example/ride-lifecycle/internal/models"
)

// ErrRouteUnavailable means no provider could produce a usable path between
// the two points. Callers degrade gracefully (no line drawn); it never
// interrupts the ride lifecycle.
var ErrRouteUnavailable = errors.New("no usable route")

// Planner computes a driving route between two coordinates. The two
// implementations (Mapbox with a credential, OSRM without) normalize their
// provider responses to the same RouteLeg shape so callers never branch on
// the provider.
type Planner interface {
	DrivingRoute(ctx context.Context, origin, destination models.Coord) (models.RouteLeg, error)
	Provider() string
}

// NewPlanner selects the provider by configuration presence: Mapbox when an
// access token is configured, OSRM otherwise.
func NewPlanner(mapboxToken, osrmEndpoint string) Planner {
	if mapboxToken != "" {
		return NewMapboxClient(mapboxToken)
	}
	return NewOSRMClient(osrmEndpoint)
}
