package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-lifecycle/internal/dispatch"
	"github.com/example/ride-lifecycle/internal/geocode"
	"github.com/example/ride-lifecycle/internal/history"
	"github.com/example/ride-lifecycle/internal/identity"
	"github.com/example/ride-lifecycle/internal/lifecycle"
	"github.com/example/ride-lifecycle/internal/payments"
	"github.com/example/ride-lifecycle/internal/routes"
)

// Deps are the collaborators the HTTP surface is wired with. Geocoder and
// Payments are optional; the matching endpoints degrade when absent.
type Deps struct {
	Coordinator *lifecycle.Coordinator
	Channel     dispatch.Channel
	History     history.Store
	RouteCache  *routes.CacheAdapter
	Geocoder    *geocode.Client
	Identity    *identity.Provider
	Payments    *payments.StripeClient
	Currency    string
	Logger      *slog.Logger
}

// Server exposes the rider-facing API: ride creation and cancellation,
// trip history and detail, rating, geocoding, and a websocket stream of
// dispatch snapshots per ride.
type Server struct {
	coordinator *lifecycle.Coordinator
	channel     dispatch.Channel
	history     history.Store
	routeCache  *routes.CacheAdapter
	geocoder    *geocode.Client
	identity    *identity.Provider
	payments    *payments.StripeClient
	currency    string
	logger      *slog.Logger

	mu     sync.Mutex
	active map[string]*activeRide

	mux *mux.Router
}

// activeRide tracks one lifecycle started by this process, plus the
// payment hold opened for it, so terminal hooks can settle the hold.
type activeRide struct {
	ride          *lifecycle.Ride
	paymentIntent string
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		coordinator: d.Coordinator,
		channel:     d.Channel,
		history:     d.History,
		routeCache:  d.RouteCache,
		geocoder:    d.Geocoder,
		identity:    d.Identity,
		payments:    d.Payments,
		currency:    d.Currency,
		logger:      d.Logger,
		active:      make(map[string]*activeRide),
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.identity.Middleware)
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/rides/{id}", s.handleGetRide).Methods("GET")
	api.HandleFunc("/rides/{id}/cancel", s.handleCancelRide).Methods("POST")
	api.HandleFunc("/rides/{id}/rating", s.handleRating).Methods("POST")
	api.HandleFunc("/geocode", s.handleGeocode).Methods("GET")

	s.mux.HandleFunc("/ws/rides/{id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) trackRide(r *lifecycle.Ride, paymentIntent string) {
	s.mu.Lock()
	s.active[r.ID()] = &activeRide{ride: r, paymentIntent: paymentIntent}
	s.mu.Unlock()
}

func (s *Server) lookupRide(id string) (*activeRide, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.active[id]
	return a, ok
}

func (s *Server) dropRide(id string) *activeRide {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.active[id]
	delete(s.active, id)
	return a
}

// Shutdown stops snapshot processing for every lifecycle this process
// still tracks. Dispatch entries survive; a restarted process can
// re-subscribe to them.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	rides := make([]*activeRide, 0, len(s.active))
	for _, a := range s.active {
		rides = append(rides, a)
	}
	s.active = make(map[string]*activeRide)
	s.mu.Unlock()

	for _, a := range rides {
		a.ride.Stop()
	}
}
