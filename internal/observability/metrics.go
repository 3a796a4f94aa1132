package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "rides_created_total", Help: "Ride requests created"})
	RidesCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "rides_completed_total", Help: "Rides that reached completed"})
	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "rides_cancelled_total", Help: "Rides that reached cancelled"})

	StaleSnapshots = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "stale_snapshots_discarded_total", Help: "Dispatch snapshots discarded as out of order"})
	InvalidEvents  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "invalid_transitions_discarded_total", Help: "Snapshots discarded for violating the state machine"})

	RouteLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "route_lookups_total", Help: "Route provider lookups by outcome"},
		[]string{"provider", "outcome"},
	)
	RouteCacheHits   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "route_cache_hits_total", Help: "Ride records served from the cached route"})
	RouteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "route_cache_misses_total", Help: "Ride records that required a route computation"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_lifecycle", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_lifecycle",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
