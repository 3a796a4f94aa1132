package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/example/ride-lifecycle/internal/models"
)

var ErrNotFound = errors.New("ride request not found")

// Fields is a partial update of a ride request's mutable dispatch fields.
// Nil members are left untouched; the update of the named fields is atomic.
type Fields struct {
	Status     *models.Status
	Driver     *models.Driver
	DriverLoc  *models.Coord
	PickupCode *string
}

// Channel is the realtime dispatch store: one mutable entry per active ride
// request. Subscriptions deliver the full current value on every change,
// not deltas, tagged with a monotonically increasing version. The channel
// itself does not guarantee cross-writer delivery order; consumers discard
// snapshots whose version is not newer than the last applied one.
type Channel interface {
	// Create stores req under a newly generated identifier and returns the
	// stored value (identifier, version 1, creation time filled in).
	Create(ctx context.Context, req models.RideRequest) (models.RideRequest, error)
	Update(ctx context.Context, id string, fields Fields) error
	Get(ctx context.Context, id string) (models.RideRequest, error)
	Subscribe(ctx context.Context, id string) (*Subscription, error)
}

// Subscription is a scoped resource: callers must Close it on every exit
// path. Snapshots are delivered on C; C is closed when the subscription
// ends. Close is safe to call from multiple goroutines.
type Subscription struct {
	C     <-chan models.RideRequest
	close func()
	once  sync.Once
}

func newSubscription(c <-chan models.RideRequest, close func()) *Subscription {
	return &Subscription{C: c, close: close}
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
	})
}
