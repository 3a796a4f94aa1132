package lifecycle

import (
	"testing"

	"github.com/example/ride-lifecycle/internal/models"
)

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	all := []models.Status{
		models.StatusSearching, models.StatusAccepted, models.StatusInProgress,
		models.StatusCompleted, models.StatusCancelled,
	}
	for _, from := range []models.Status{models.StatusCompleted, models.StatusCancelled} {
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to models.Status
		allowed  bool
	}{
		{models.StatusSearching, models.StatusAccepted, true},
		{models.StatusSearching, models.StatusCancelled, true},
		{models.StatusSearching, models.StatusInProgress, false},
		{models.StatusSearching, models.StatusCompleted, false},
		{models.StatusAccepted, models.StatusInProgress, true},
		{models.StatusAccepted, models.StatusCancelled, true},
		{models.StatusAccepted, models.StatusSearching, false},
		{models.StatusInProgress, models.StatusCompleted, true},
		{models.StatusInProgress, models.StatusCancelled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestCanCancel(t *testing.T) {
	if !CanCancel(models.StatusSearching) || !CanCancel(models.StatusAccepted) {
		t.Error("cancel must be allowed from searching and accepted")
	}
	for _, st := range []models.Status{models.StatusInProgress, models.StatusCompleted, models.StatusCancelled} {
		if CanCancel(st) {
			t.Errorf("cancel must be rejected from %s", st)
		}
	}
}
