package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a coordinate plus an optional human-readable address.
type Place struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (p Place) Coord() Coord { return Coord{Lat: p.Lat, Lng: p.Lng} }

// Status is the lifecycle state of a ride request.
type Status string

const (
	StatusSearching  Status = "searching"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition out of s is valid.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Driver struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// RideRequest is the ephemeral dispatch-channel entry for one ride.
// Every snapshot delivered by the channel is a full replacement of these
// fields, tagged with a monotonically increasing Version so stale
// deliveries can be discarded.
type RideRequest struct {
	ID            string    `json:"id"`
	RiderID       string    `json:"rider_id"`
	RiderPhone    string    `json:"rider_phone,omitempty"`
	Origin        Place     `json:"origin"`
	Destination   Place     `json:"destination"`
	Service       string    `json:"service"`
	PriceEstimate float64   `json:"price_estimate"`
	Status        Status    `json:"status"`
	Driver        *Driver   `json:"driver,omitempty"`
	DriverLoc     *Coord    `json:"driver_loc,omitempty"`
	PickupCode    string    `json:"pickup_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Version       int64     `json:"version"`
}

type RouteSummary struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RouteLeg is a drivable path between two coordinates. Geometry is an
// ordered sequence of (lng, lat) pairs with at least two points.
type RouteLeg struct {
	Geometry [][2]float64 `json:"geometry"`
	Summary  RouteSummary `json:"summary"`
}

// CachedRoute is a RouteLeg persisted onto a completed RideRecord together
// with the provider that produced it.
type CachedRoute struct {
	Geometry [][2]float64  `json:"geometry"`
	Summary  *RouteSummary `json:"summary,omitempty"`
	Provider string        `json:"provider,omitempty"`
}

// RideRecord is the durable trip-history document. Its ID is shared with
// the originating RideRequest. It is materialized by an idempotent merge
// when the request first reaches completed, and afterwards touched only by
// the rating flow and the best-effort route cache write.
type RideRecord struct {
	ID           string       `json:"id"`
	RiderID      string       `json:"rider_id"`
	Origin       Place        `json:"origin"`
	Destination  Place        `json:"destination"`
	Service      string       `json:"service"`
	Price        float64      `json:"price"`
	DriverID     string       `json:"driver_id,omitempty"`
	DriverName   string       `json:"driver_name,omitempty"`
	DriverPhone  string       `json:"driver_phone,omitempty"`
	Status       Status       `json:"status"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Route        *CachedRoute `json:"route,omitempty"`
	RiderRating  int          `json:"rider_rating,omitempty"`
	RiderComment string       `json:"rider_comment,omitempty"`
	RiderRatedAt *time.Time   `json:"rider_rated_at,omitempty"`
}
