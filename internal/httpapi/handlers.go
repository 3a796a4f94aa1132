package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-lifecycle/internal/dispatch"
	"github.com/example/ride-lifecycle/internal/geocode"
	"github.com/example/ride-lifecycle/internal/history"
	"github.com/example/ride-lifecycle/internal/identity"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/models"
	"github.com/example/ride-lifecycle/internal/pricing"
	"github.com/example/ride-lifecycle/internal/routes"
)

const settleTimeout = 10 * time.Second

type createRideRequest struct {
	Origin      models.Place `json:"origin"`
	Destination models.Place `json:"destination"`
	Service     string       `json:"service"`
}

type createRideResponse struct {
	RideID        string              `json:"ride_id"`
	Status        models.Status       `json:"status"`
	PriceEstimate float64             `json:"price_estimate"`
	Summary       models.RouteSummary `json:"summary"`
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req createRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !validPlace(req.Origin) || !validPlace(req.Destination) {
		http.Error(w, "origin and destination coordinates are out of range", http.StatusBadRequest)
		return
	}
	tier, err := pricing.TierByID(req.Service)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The quote uses the straight-line fallback so ride creation never
	// waits on a routing provider; the precise leg arrives via the
	// snapshot stream once computed.
	summary := pricing.FallbackSummary(req.Origin.Coord(), req.Destination.Coord())
	price := pricing.Estimate(tier, summary.DistanceMeters, summary.DurationSeconds)

	var paymentIntent string
	if s.payments != nil {
		paymentIntent, err = s.payments.HoldQuote(r.Context(), price, s.currency, ident.ID)
		if err != nil {
			s.logger.Error("payment hold failed", "rider_id", ident.ID, "error", err)
			http.Error(w, "payment hold failed", http.StatusBadGateway)
			return
		}
	}

	ride, err := s.coordinator.Start(r.Context(), lifecycle.StartParams{
		RiderID:       ident.ID,
		RiderPhone:    ident.Phone,
		Origin:        req.Origin,
		Destination:   req.Destination,
		Service:       tier.ID,
		PriceEstimate: price,
		Hooks: lifecycle.Hooks{
			OnCompleted: s.settleCompleted,
			OnCancelled: s.settleCancelled,
		},
	})
	if err != nil {
		s.logger.Error("ride start failed", "rider_id", ident.ID, "error", err)
		if paymentIntent != "" {
			if rerr := s.payments.Release(r.Context(), paymentIntent); rerr != nil {
				s.logger.Error("payment release failed", "rider_id", ident.ID, "error", rerr)
			}
		}
		http.Error(w, "could not create ride", http.StatusInternalServerError)
		return
	}
	s.trackRide(ride, paymentIntent)

	writeJSON(w, http.StatusCreated, createRideResponse{
		RideID:        ride.ID(),
		Status:        models.StatusSearching,
		PriceEstimate: price,
		Summary:       summary,
	})
}

// settleCompleted and settleCancelled run on the ride's event goroutine
// once the terminal snapshot has been handled. The request context is
// long gone by then, so settlement gets its own deadline.
func (s *Server) settleCompleted(rideID string) {
	a := s.dropRide(rideID)
	if a == nil || a.paymentIntent == "" || s.payments == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := s.payments.Capture(ctx, a.paymentIntent); err != nil {
		s.logger.Error("payment capture failed", "ride_id", rideID, "error", err)
	}
}

func (s *Server) settleCancelled(rideID string) {
	a := s.dropRide(rideID)
	if a == nil || a.paymentIntent == "" || s.payments == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := s.payments.Release(ctx, a.paymentIntent); err != nil {
		s.logger.Error("payment release failed", "ride_id", rideID, "error", err)
	}
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	id := mux.Vars(r)["id"]

	snap, err := s.channel.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, "dispatch unavailable", http.StatusBadGateway)
		return
	}
	if snap.RiderID != ident.ID {
		http.Error(w, "not your ride", http.StatusForbidden)
		return
	}

	if a, ok := s.lookupRide(id); ok {
		err = a.ride.Cancel(r.Context())
	} else {
		// Ride is owned by another process; apply the same guard it
		// would and write the terminal status through dispatch.
		if !lifecycle.CanCancel(snap.Status) {
			err = lifecycle.ErrCancelNotAllowed
		} else {
			st := models.StatusCancelled
			err = s.channel.Update(r.Context(), id, dispatch.Fields{Status: &st})
		}
	}
	if err != nil {
		if errors.Is(err, lifecycle.ErrCancelNotAllowed) {
			http.Error(w, "ride can no longer be cancelled", http.StatusConflict)
			return
		}
		http.Error(w, "cancel failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ride_id": id, "status": models.StatusCancelled})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	recs, err := s.history.ByRider(r.Context(), ident.ID)
	if err != nil {
		s.logger.Error("history query failed", "rider_id", ident.ID, "error", err)
		http.Error(w, "history unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": recs})
}

type rideDetailResponse struct {
	Record models.RideRecord `json:"record"`
	Route  *models.RouteLeg  `json:"route,omitempty"`
	Bounds *routes.Bounds    `json:"bounds,omitempty"`
}

// handleGetRide serves the live dispatch snapshot while the ride is
// active, and the durable record with its cached route afterwards.
func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	id := mux.Vars(r)["id"]

	snap, err := s.channel.Get(r.Context(), id)
	if err == nil {
		if snap.RiderID != ident.ID {
			http.Error(w, "not your ride", http.StatusForbidden)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ride": snap})
		return
	}
	if !errors.Is(err, dispatch.ErrNotFound) {
		http.Error(w, "dispatch unavailable", http.StatusBadGateway)
		return
	}

	rec, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			http.Error(w, "ride not found", http.StatusNotFound)
			return
		}
		http.Error(w, "history unavailable", http.StatusBadGateway)
		return
	}
	if rec.RiderID != ident.ID {
		http.Error(w, "not your ride", http.StatusForbidden)
		return
	}

	resp := rideDetailResponse{Record: rec}
	if s.routeCache != nil {
		if leg, err := s.routeCache.RouteForRecord(r.Context(), &rec); err == nil {
			resp.Record = rec
			resp.Route = &leg
			b := routes.LineBounds(leg.Geometry)
			resp.Bounds = &b
		} else {
			s.logger.Warn("route unavailable for ride detail", "ride_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type ratingRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request) {
	ident, _ := identity.FromContext(r.Context())
	id := mux.Vars(r)["id"]

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := s.history.Rate(r.Context(), id, ident.ID, req.Rating, req.Comment)
	switch {
	case errors.Is(err, history.ErrInvalidRating):
		http.Error(w, "rating must be between 1 and 5", http.StatusBadRequest)
	case errors.Is(err, history.ErrUnauthorized):
		http.Error(w, "not your ride", http.StatusForbidden)
	case errors.Is(err, history.ErrNotFound):
		http.Error(w, "ride not found", http.StatusNotFound)
	case err != nil:
		s.logger.Error("rating failed", "ride_id", id, "error", err)
		http.Error(w, "rating failed", http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ride_id": id, "rating": req.Rating})
	}
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if s.geocoder == nil {
		http.Error(w, "geocoding not configured", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()
	lat := parseFloat(q.Get("lat"))
	lng := parseFloat(q.Get("lng"))

	if query := q.Get("q"); query != "" {
		radius := parseFloat(q.Get("radius_miles"))
		if radius <= 0 {
			radius = 50
		}
		features, err := s.geocoder.Search(r.Context(), query, models.Coord{Lat: lat, Lng: lng}, radius, 6)
		if err != nil {
			s.logger.Warn("geocode search failed", "query", query, "error", err)
			http.Error(w, "geocoding failed", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"features": features})
		return
	}

	addr, err := s.geocoder.Reverse(r.Context(), lat, lng)
	if err != nil {
		if errors.Is(err, geocode.ErrNoResult) {
			http.Error(w, "no address at this location", http.StatusNotFound)
			return
		}
		http.Error(w, "geocoding failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr})
}

func validPlace(p models.Place) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
