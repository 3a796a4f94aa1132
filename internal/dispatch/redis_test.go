package dispatch

import (
	"testing"
	"time"

	"github.com/example/ride-lifecycle/internal/models"
)

// hashVals flattens hashFields output into the map shape HGETALL returns.
func hashVals(t *testing.T, req models.RideRequest) map[string]string {
	t.Helper()
	fields, err := hashFields(req)
	if err != nil {
		t.Fatalf("hashFields: %v", err)
	}
	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			t.Fatalf("field %q is %T, want string", k, v)
		}
		vals[k] = s
	}
	return vals
}

func TestHashCodecRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	req := models.RideRequest{
		ID:            "ride-1",
		RiderID:       "rider-1",
		RiderPhone:    "+51999888777",
		Origin:        models.Place{Lat: -12.046, Lng: -77.042, Address: "Plaza Mayor"},
		Destination:   models.Place{Lat: -12.121, Lng: -77.030, Address: "Miraflores"},
		Service:       "taxi",
		PriceEstimate: 4.80,
		Status:        models.StatusInProgress,
		Driver:        &models.Driver{ID: "d1", Name: "X", Phone: "+510000"},
		DriverLoc:     &models.Coord{Lat: -12.05, Lng: -77.04},
		PickupCode:    "1234",
		CreatedAt:     created,
		Version:       7,
	}

	got, err := requestFromHash(req.ID, hashVals(t, req))
	if err != nil {
		t.Fatalf("requestFromHash: %v", err)
	}
	if got.RiderID != req.RiderID || got.RiderPhone != req.RiderPhone {
		t.Fatalf("rider fields mismatch: %+v", got)
	}
	if got.Origin != req.Origin || got.Destination != req.Destination {
		t.Fatalf("places mismatch: %+v", got)
	}
	if got.Service != req.Service || got.PriceEstimate != req.PriceEstimate {
		t.Fatalf("quote fields mismatch: %+v", got)
	}
	if got.Status != req.Status || got.PickupCode != req.PickupCode || got.Version != req.Version {
		t.Fatalf("dispatch fields mismatch: %+v", got)
	}
	if got.Driver == nil || *got.Driver != *req.Driver {
		t.Fatalf("driver mismatch: %+v", got.Driver)
	}
	if got.DriverLoc == nil || *got.DriverLoc != *req.DriverLoc {
		t.Fatalf("driver location mismatch: %+v", got.DriverLoc)
	}
	if !got.CreatedAt.Equal(req.CreatedAt) {
		t.Fatalf("created_at = %v, want %v", got.CreatedAt, req.CreatedAt)
	}
}

func TestHashCodecOmitsUnsetOptionalFields(t *testing.T) {
	req := models.RideRequest{
		ID:            "ride-2",
		RiderID:       "rider-1",
		Origin:        models.Place{Lat: 0, Lng: 0},
		Destination:   models.Place{Lat: 1, Lng: 1},
		Service:       "eco",
		PriceEstimate: 2.50,
		Status:        models.StatusSearching,
		CreatedAt:     time.Now(),
		Version:       1,
	}
	vals := hashVals(t, req)
	for _, k := range []string{"driver", "driver_loc", "pickup_code"} {
		if _, present := vals[k]; present {
			t.Fatalf("unset field %q stored anyway", k)
		}
	}

	got, err := requestFromHash(req.ID, vals)
	if err != nil {
		t.Fatalf("requestFromHash: %v", err)
	}
	if got.Driver != nil || got.DriverLoc != nil || got.PickupCode != "" {
		t.Fatalf("optional fields materialized from nothing: %+v", got)
	}
	if got.Status != models.StatusSearching || got.Version != 1 {
		t.Fatalf("core fields mismatch: %+v", got)
	}
}
