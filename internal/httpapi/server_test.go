package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-lifecycle/internal/dispatch"
	"github.com/example/ride-lifecycle/internal/history"
	"github.com/example/ride-lifecycle/internal/identity"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/models"
)

type stubPlanner struct{}

func (stubPlanner) DrivingRoute(ctx context.Context, from, to models.Coord) (models.RouteLeg, error) {
	return models.RouteLeg{
		Geometry: [][2]float64{{from.Lng, from.Lat}, {to.Lng, to.Lat}},
		Summary:  models.RouteSummary{DistanceMeters: 2500, DurationSeconds: 420},
	}, nil
}

func (stubPlanner) Provider() string { return "stub" }

type testEnv struct {
	srv     *Server
	channel *dispatch.MemoryChannel
	store   *history.MemoryStore
	ids     *identity.Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ch := dispatch.NewMemoryChannel()
	store := history.NewMemoryStore()
	ids := identity.NewProvider("test-secret")
	coord := lifecycle.NewCoordinator(ch, stubPlanner{}, store, nil)
	srv := NewServer(Deps{
		Coordinator: coord,
		Channel:     ch,
		History:     store,
		Identity:    ids,
		Logger:      nil,
	})
	return &testEnv{srv: srv, channel: ch, store: store, ids: ids}
}

func (e *testEnv) token(t *testing.T, riderID string) string {
	t.Helper()
	tok, err := e.ids.IssueToken(identity.Identity{ID: riderID, Phone: "+51999888777"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func createBody() createRideRequest {
	return createRideRequest{
		Origin:      models.Place{Lat: -12.046, Lng: -77.042, Address: "Plaza Mayor"},
		Destination: models.Place{Lat: -12.121, Lng: -77.030, Address: "Miraflores"},
		Service:     "taxi",
	}
}

func TestCreateRide(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "rider-1")

	w := env.do(t, "POST", "/api/v1/rides", tok, createBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp createRideResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RideID == "" {
		t.Fatal("expected a ride id")
	}
	if resp.Status != models.StatusSearching {
		t.Fatalf("status = %q, want searching", resp.Status)
	}
	if resp.PriceEstimate <= 0 {
		t.Fatalf("price estimate = %v, want > 0", resp.PriceEstimate)
	}

	snap, err := env.channel.Get(context.Background(), resp.RideID)
	if err != nil {
		t.Fatalf("dispatch entry missing: %v", err)
	}
	if snap.RiderID != "rider-1" {
		t.Fatalf("rider id = %q", snap.RiderID)
	}
}

func TestCreateRideCoordinateValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "rider-1")

	// (0,0) is a real coordinate and must be accepted.
	body := createBody()
	body.Origin = models.Place{Lat: 0, Lng: 0}
	w := env.do(t, "POST", "/api/v1/rides", tok, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("zero-zero origin status = %d, body %s", w.Code, w.Body.String())
	}

	for _, bad := range []models.Place{
		{Lat: 91, Lng: 0},
		{Lat: -91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: 0, Lng: -181},
	} {
		body := createBody()
		body.Destination = bad
		w := env.do(t, "POST", "/api/v1/rides", tok, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("destination %+v status = %d, want 400", bad, w.Code)
		}
	}
}

func TestCreateRideRejectsUnknownService(t *testing.T) {
	env := newTestEnv(t)
	body := createBody()
	body.Service = "helicopter"
	w := env.do(t, "POST", "/api/v1/rides", env.token(t, "rider-1"), body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/v1/rides", "", createBody())
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	w = env.do(t, "GET", "/api/v1/rides/history", "garbage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestCancelRide(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "rider-1")

	w := env.do(t, "POST", "/api/v1/rides", tok, createBody())
	var created createRideResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	w = env.do(t, "POST", "/api/v1/rides/"+created.RideID+"/cancel", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", w.Code, w.Body.String())
	}

	waitFor(t, func() bool {
		snap, err := env.channel.Get(context.Background(), created.RideID)
		return err == nil && snap.Status == models.StatusCancelled
	})

	// Once terminal, a second cancel is rejected.
	waitFor(t, func() bool {
		_, tracked := env.srv.lookupRide(created.RideID)
		return !tracked
	})
	w = env.do(t, "POST", "/api/v1/rides/"+created.RideID+"/cancel", tok, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", w.Code)
	}
}

func TestCancelForeignRideForbidden(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "POST", "/api/v1/rides", env.token(t, "rider-1"), createBody())
	var created createRideResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	w = env.do(t, "POST", "/api/v1/rides/"+created.RideID+"/cancel", env.token(t, "rider-2"), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestHistoryReturnsOwnRidesOnly(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.store.CompleteRide(context.Background(), models.RideRecord{
		ID: "r1", RiderID: "rider-1", Status: models.StatusCompleted, CompletedAt: &now,
	})
	env.store.CompleteRide(context.Background(), models.RideRecord{
		ID: "r2", RiderID: "rider-2", Status: models.StatusCompleted, CompletedAt: &now,
	})

	w := env.do(t, "GET", "/api/v1/rides/history", env.token(t, "rider-1"), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Rides []models.RideRecord `json:"rides"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rides) != 1 || resp.Rides[0].ID != "r1" {
		t.Fatalf("rides = %+v", resp.Rides)
	}
}

func TestGetRideServesLiveSnapshotThenRecord(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, "rider-1")

	w := env.do(t, "POST", "/api/v1/rides", tok, createBody())
	var created createRideResponse
	json.Unmarshal(w.Body.Bytes(), &created)

	w = env.do(t, "GET", "/api/v1/rides/"+created.RideID, tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("live status = %d", w.Code)
	}
	var live struct {
		Ride *models.RideRequest `json:"ride"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if live.Ride == nil || live.Ride.Status != models.StatusSearching {
		t.Fatalf("live snapshot = %+v", live.Ride)
	}

	// A record not present in dispatch is served from history.
	now := time.Now()
	env.store.CompleteRide(context.Background(), models.RideRecord{
		ID: "done-1", RiderID: "rider-1", Status: models.StatusCompleted, CompletedAt: &now,
	})
	w = env.do(t, "GET", "/api/v1/rides/done-1", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("record status = %d", w.Code)
	}
	var detail rideDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Record.ID != "done-1" {
		t.Fatalf("record = %+v", detail.Record)
	}
}

func TestRating(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()
	env.store.CompleteRide(context.Background(), models.RideRecord{
		ID: "r1", RiderID: "rider-1", Status: models.StatusCompleted, CompletedAt: &now,
	})

	w := env.do(t, "POST", "/api/v1/rides/r1/rating", env.token(t, "rider-1"),
		ratingRequest{Rating: 5, Comment: "smooth ride"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/rides/r1/rating", env.token(t, "rider-2"),
		ratingRequest{Rating: 1})
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign rating status = %d, want 403", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/rides/r1/rating", env.token(t, "rider-1"),
		ratingRequest{Rating: 9})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("out of range rating status = %d, want 400", w.Code)
	}
}

func TestHealthzAndGeocodeUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	w = env.do(t, "GET", "/api/v1/geocode?q=plaza", env.token(t, "rider-1"), nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("geocode = %d, want 503", w.Code)
	}
}
