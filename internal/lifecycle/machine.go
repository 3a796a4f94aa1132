package lifecycle

import (
	"errors"

	"github.com/example/ride-lifecycle/internal/models"
)

var (
	// ErrInvalidTransition marks a snapshot or command that the state
	// machine forbids. Observed snapshots carrying one are discarded, not
	// fatal.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCancelNotAllowed is returned when the rider tries to cancel a
	// ride that is already underway or finished.
	ErrCancelNotAllowed = errors.New("ride can no longer be cancelled")
	// ErrStaleSnapshot marks a dispatch snapshot older than the last one
	// applied.
	ErrStaleSnapshot = errors.New("stale dispatch snapshot")
)

// validTransitions is the ride status graph. Terminal states have no
// outgoing transitions; a snapshot reporting one is treated as a stale or
// duplicate event.
var validTransitions = map[models.Status][]models.Status{
	models.StatusSearching:  {models.StatusAccepted, models.StatusCancelled},
	models.StatusAccepted:   {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

// CanTransition reports whether moving from one status to another is
// allowed by the graph.
func CanTransition(from, to models.Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanCancel reports whether the rider may still cancel from this status.
// Rides already underway cannot be cancelled by the rider.
func CanCancel(from models.Status) bool {
	return from == models.StatusSearching || from == models.StatusAccepted
}
