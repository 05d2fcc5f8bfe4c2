package application

import "github.com/ramppay/ramppay-sync-go/internal/domain"

// DeriveSteps derives the display state of the five progress steps from the
// canonical status. It is a pure function: identical input always yields
// identical output, and it never mutates shared state.
//
// For a non-failed current status, a step is completed when its order is at
// most the status order, active when its order is exactly one past it, and
// pending otherwise. For a failed status the second argument carries the
// furthest non-failed status reached before the failure: steps up to and
// including that point are marked failed, later ones stay pending. A failure
// before any progress leaves every step pending.
func DeriveSteps(current, furthest domain.Status) [5]domain.Step {
	var steps [5]domain.Step

	if current == domain.StatusFailed {
		reached, ok := furthest.Order()
		if !ok {
			reached = 0
		}
		for i, s := range domain.ProgressSteps {
			order, _ := s.Order()
			state := domain.StepPending
			if order <= reached {
				state = domain.StepFailed
			}
			steps[i] = domain.Step{Status: s, State: state}
		}
		return steps
	}

	currentOrder, ok := current.Order()
	if !ok {
		// Unknown status from a newer backend: show no progress rather than
		// guessing.
		currentOrder = 0
	}
	for i, s := range domain.ProgressSteps {
		order, _ := s.Order()
		state := domain.StepPending
		switch {
		case order <= currentOrder:
			state = domain.StepCompleted
		case order == currentOrder+1:
			state = domain.StepActive
		}
		steps[i] = domain.Step{Status: s, State: state}
	}
	return steps
}
