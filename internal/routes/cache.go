package routes

import (
	"context"
	"log/slog"

	"github.com/example/ride-lifecycle/internal/models"
	"github.com/example/ride-lifecycle/internal/observability"
)

// RouteWriter persists a computed route onto a ride record.
type RouteWriter interface {
	SaveRoute(ctx context.Context, rideID string, route models.CachedRoute) error
}

// CacheAdapter serves the route for a persisted ride record. A record with
// a cached geometry is served verbatim without touching the provider;
// otherwise the route is computed once and written back best-effort.
type CacheAdapter struct {
	Planner Planner
	Writer  RouteWriter
	Logger  *slog.Logger
}

func NewCacheAdapter(planner Planner, writer RouteWriter, logger *slog.Logger) *CacheAdapter {
	return &CacheAdapter{Planner: planner, Writer: writer, Logger: logger}
}

// RouteForRecord returns the record's route leg, reusing the cached geometry
// when present. A cache write failure is swallowed: the read path already
// has the computed route.
func (c *CacheAdapter) RouteForRecord(ctx context.Context, rec *models.RideRecord) (models.RouteLeg, error) {
	if rec.Route != nil && len(rec.Route.Geometry) >= 2 {
		observability.RouteCacheHits.Inc()
		leg := models.RouteLeg{Geometry: rec.Route.Geometry}
		if rec.Route.Summary != nil {
			leg.Summary = *rec.Route.Summary
		}
		return leg, nil
	}

	observability.RouteCacheMisses.Inc()
	leg, err := c.Planner.DrivingRoute(ctx, rec.Origin.Coord(), rec.Destination.Coord())
	if err != nil {
		return models.RouteLeg{}, err
	}

	summary := leg.Summary
	cached := models.CachedRoute{
		Geometry: leg.Geometry,
		Summary:  &summary,
		Provider: c.Planner.Provider(),
	}
	if err := c.Writer.SaveRoute(ctx, rec.ID, cached); err != nil {
		if c.Logger != nil {
			c.Logger.Warn("route cache write failed", "ride_id", rec.ID, "error", err)
		}
	} else {
		rec.Route = &cached
	}
	return leg, nil
}
