package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-lifecycle/internal/dispatch"
	"github.com/example/ride-lifecycle/internal/history"
	"github.com/example/ride-lifecycle/internal/models"
	"github.com/example/ride-lifecycle/internal/observability"
	"github.com/example/ride-lifecycle/internal/routes"
)

// EventSink receives observed status transitions, e.g. for analytics.
// Publishing is best-effort and never blocks the lifecycle.
type EventSink interface {
	PublishTransition(ctx context.Context, rideID string, from, to models.Status) error
}

// Hooks are the caller-facing side effects of the lifecycle. All hooks are
// optional and are invoked from the ride's single event goroutine, so a
// caller never sees two hooks run concurrently for one ride.
type Hooks struct {
	// OnLeg delivers the route leg to display for the current state:
	// origin→destination while searching, driver→origin while accepted,
	// driver→destination while in progress.
	OnLeg func(leg models.RouteLeg)
	// OnStatus fires on every applied status change.
	OnStatus func(status models.Status)
	// OnDriver fires once, when the driver assignment and pickup code are
	// first captured.
	OnDriver func(driver models.Driver, pickupCode string)
	// OnDriverLoc delivers live driver positions; nil clears the marker.
	OnDriverLoc func(loc *models.Coord)
	// OnCompleted fires after the terminal completed snapshot, with the
	// identifier shared by the durable record, so the caller can route to
	// a rating flow.
	OnCompleted func(rideID string)
	// OnCancelled fires after the terminal cancelled snapshot.
	OnCancelled func(rideID string)
}

// Coordinator owns ride lifecycles: it creates dispatch entries, observes
// their snapshots, derives the route leg to display per state, and
// materializes the durable record on completion.
type Coordinator struct {
	Channel dispatch.Channel
	Planner routes.Planner
	History history.Store
	Events  EventSink
	Logger  *slog.Logger

	// SearchTimeout auto-cancels a ride that stays in searching longer
	// than this. Zero disables the timeout.
	SearchTimeout time.Duration
}

func NewCoordinator(channel dispatch.Channel, planner routes.Planner, store history.Store, logger *slog.Logger) *Coordinator {
	return &Coordinator{Channel: channel, Planner: planner, History: store, Logger: logger}
}

// StartParams describe the rider's confirm action.
type StartParams struct {
	RiderID       string
	RiderPhone    string
	Origin        models.Place
	Destination   models.Place
	Service       string
	PriceEstimate float64
	Hooks         Hooks
}

// Ride is one active ride lifecycle. All snapshot processing happens on a
// single goroutine; accessors take a snapshot of that state. Done is
// closed once a terminal snapshot has been fully handled.
type Ride struct {
	id    string
	coord *Coordinator
	hooks Hooks

	sub       *dispatch.Subscription
	unsubOnce sync.Once

	mu         sync.RWMutex
	status     models.Status
	version    int64
	driver     *models.Driver
	pickupCode string
	driverLoc  *models.Coord
	terminal   bool

	legMu  sync.Mutex
	legGen int

	done chan struct{}
}

// Start creates the dispatch entry in searching, subscribes to its
// changes, and begins processing snapshots. The trip preview leg
// (origin→destination) is requested immediately.
func (c *Coordinator) Start(ctx context.Context, p StartParams) (*Ride, error) {
	req := models.RideRequest{
		RiderID:       p.RiderID,
		RiderPhone:    p.RiderPhone,
		Origin:        p.Origin,
		Destination:   p.Destination,
		Service:       p.Service,
		PriceEstimate: p.PriceEstimate,
		Status:        models.StatusSearching,
	}
	created, err := c.Channel.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	sub, err := c.Channel.Subscribe(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	observability.RidesCreated.Inc()

	r := &Ride{
		id:     created.ID,
		coord:  c,
		hooks:  p.Hooks,
		sub:    sub,
		status: models.StatusSearching,
		done:   make(chan struct{}),
	}
	r.requestLeg(p.Origin.Coord(), p.Destination.Coord())

	go r.run()
	if c.SearchTimeout > 0 {
		go r.watchSearchTimeout(c.SearchTimeout)
	}
	return r, nil
}

func (r *Ride) ID() string { return r.id }

// Done is closed once the ride has reached a terminal state and all
// terminal side effects have run.
func (r *Ride) Done() <-chan struct{} { return r.done }

func (r *Ride) Status() models.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Ride) Driver() (*models.Driver, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.driver == nil {
		return nil, ""
	}
	d := *r.driver
	return &d, r.pickupCode
}

func (r *Ride) DriverLoc() *models.Coord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.driverLoc == nil {
		return nil
	}
	loc := *r.driverLoc
	return &loc
}

// Cancel is the rider's only command-side transition. It is valid from
// searching and accepted; afterwards the ride is underway and cancellation
// is rejected by policy. The write is best-effort: the ensuing cancelled
// snapshot confirms it.
func (r *Ride) Cancel(ctx context.Context) error {
	r.mu.RLock()
	st := r.status
	r.mu.RUnlock()
	if !CanCancel(st) {
		return ErrCancelNotAllowed
	}
	cancelled := models.StatusCancelled
	return r.coord.Channel.Update(ctx, r.id, dispatch.Fields{Status: &cancelled})
}

// Stop releases the dispatch subscription without cancelling the ride,
// for callers tearing down their view of it. Safe to call any number of
// times and alongside terminal handling.
func (r *Ride) Stop() {
	r.unsubscribe()
}

func (r *Ride) unsubscribe() {
	r.unsubOnce.Do(func() { r.sub.Close() })
}

func (r *Ride) run() {
	for snap := range r.sub.C {
		r.apply(snap)
	}
}

func (r *Ride) watchSearchTimeout(d time.Duration) {
	select {
	case <-r.done:
	case <-time.After(d):
		if r.Status() != models.StatusSearching {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.Cancel(ctx); err != nil && r.coord.Logger != nil {
			r.coord.Logger.Warn("search timeout cancel failed", "ride_id", r.id, "error", err)
		}
	}
}

// apply processes one full snapshot in delivery order. Stale versions and
// transitions outside the status graph are discarded without touching the
// ride, per the correctness rules of full-replacement updates.
func (r *Ride) apply(snap models.RideRequest) {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return
	}
	if snap.Version <= r.version {
		r.mu.Unlock()
		observability.StaleSnapshots.Inc()
		return
	}
	prev := r.status
	if snap.Status != prev && !CanTransition(prev, snap.Status) {
		r.mu.Unlock()
		observability.InvalidEvents.Inc()
		if r.coord.Logger != nil {
			r.coord.Logger.Warn("discarding snapshot with invalid transition",
				"ride_id", r.id, "from", prev, "to", snap.Status, "version", snap.Version)
		}
		return
	}
	r.version = snap.Version
	statusChanged := snap.Status != prev
	if statusChanged {
		r.status = snap.Status
	}

	driverCaptured := false
	if r.driver == nil && snap.Driver != nil {
		d := *snap.Driver
		r.driver = &d
		driverCaptured = true
	}
	if r.pickupCode == "" && snap.PickupCode != "" {
		r.pickupCode = snap.PickupCode
	}
	capturedDriver := r.driver
	capturedCode := r.pickupCode

	locChanged := coordChanged(r.driverLoc, snap.DriverLoc)
	if locChanged {
		if snap.DriverLoc == nil {
			r.driverLoc = nil
		} else {
			loc := *snap.DriverLoc
			r.driverLoc = &loc
		}
	}
	loc := r.driverLoc
	if snap.Status.Terminal() {
		r.terminal = true
	}
	r.mu.Unlock()

	if statusChanged {
		r.publishTransition(prev, snap.Status)
		if r.hooks.OnStatus != nil {
			r.hooks.OnStatus(snap.Status)
		}
	}
	if driverCaptured && r.hooks.OnDriver != nil && capturedDriver != nil {
		r.hooks.OnDriver(*capturedDriver, capturedCode)
	}
	if locChanged && r.hooks.OnDriverLoc != nil {
		r.hooks.OnDriverLoc(loc)
	}

	switch snap.Status {
	case models.StatusSearching:
		// preview leg already requested at creation; nothing to do

	case models.StatusAccepted:
		// pickup leg driver→origin, refreshed on every location change
		if (statusChanged || locChanged) && loc != nil {
			r.requestLeg(*loc, snap.Origin.Coord())
		}

	case models.StatusInProgress:
		// dropoff leg driver→destination
		if (statusChanged || locChanged) && loc != nil {
			r.requestLeg(*loc, snap.Destination.Coord())
		}

	case models.StatusCompleted:
		r.completeRide(snap)
		observability.RidesCompleted.Inc()
		r.unsubscribe()
		r.clearDriverLoc()
		if r.hooks.OnCompleted != nil {
			r.hooks.OnCompleted(r.id)
		}
		close(r.done)

	case models.StatusCancelled:
		observability.RidesCancelled.Inc()
		r.unsubscribe()
		r.clearDriverLoc()
		if r.hooks.OnCancelled != nil {
			r.hooks.OnCancelled(r.id)
		}
		close(r.done)
	}
}

func (r *Ride) clearDriverLoc() {
	r.mu.Lock()
	r.driverLoc = nil
	r.mu.Unlock()
	if r.hooks.OnDriverLoc != nil {
		r.hooks.OnDriverLoc(nil)
	}
}

// completeRide materializes the durable record from the final snapshot.
// The store write is an idempotent merge, so a duplicate completion from
// another observer converges on the same record. Failures are retried;
// history and rating depend on this write landing.
func (r *Ride) completeRide(snap models.RideRequest) {
	rec := models.RideRecord{
		ID:          snap.ID,
		RiderID:     snap.RiderID,
		Origin:      snap.Origin,
		Destination: snap.Destination,
		Service:     snap.Service,
		Price:       snap.PriceEstimate,
		Status:      models.StatusCompleted,
	}
	if snap.Driver != nil {
		rec.DriverID = snap.Driver.ID
		rec.DriverName = snap.Driver.Name
		rec.DriverPhone = snap.Driver.Phone
	}

	backoff := 200 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = r.coord.History.CompleteRide(ctx, rec)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	if r.coord.Logger != nil {
		r.coord.Logger.Error("trip history upsert failed", "ride_id", r.id, "error", err)
	}
}

// requestLeg computes a route leg off the event goroutine so route lookups
// never block snapshot delivery. Only the newest request may deliver its
// result; superseded lookups are dropped.
func (r *Ride) requestLeg(from, to models.Coord) {
	r.legMu.Lock()
	r.legGen++
	gen := r.legGen
	r.legMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		leg, err := r.coord.Planner.DrivingRoute(ctx, from, to)
		if err != nil {
			observability.RouteLookups.WithLabelValues(r.coord.Planner.Provider(), "error").Inc()
			// non-fatal: the ride goes on with no line drawn
			if r.coord.Logger != nil {
				r.coord.Logger.Warn("route lookup failed", "ride_id", r.id, "error", err)
			}
			return
		}
		observability.RouteLookups.WithLabelValues(r.coord.Planner.Provider(), "ok").Inc()

		r.legMu.Lock()
		current := gen == r.legGen
		r.legMu.Unlock()
		if current && r.hooks.OnLeg != nil {
			r.hooks.OnLeg(leg)
		}
	}()
}

func (r *Ride) publishTransition(from, to models.Status) {
	if r.coord.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.coord.Events.PublishTransition(ctx, r.id, from, to); err != nil && r.coord.Logger != nil {
		r.coord.Logger.Warn("transition event publish failed", "ride_id", r.id, "error", err)
	}
}

func coordChanged(a, b *models.Coord) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil || b == nil:
		return true
	default:
		return a.Lat != b.Lat || a.Lng != b.Lng
	}
}
