package application

import (
	"testing"

	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

func stateList(steps [5]domain.Step) [5]domain.StepState {
	var out [5]domain.StepState
	for i, s := range steps {
		out[i] = s.State
	}
	return out
}

func TestDeriveStepsProgression(t *testing.T) {
	p, a, c := domain.StepPending, domain.StepActive, domain.StepCompleted

	cases := []struct {
		current domain.Status
		want    [5]domain.StepState
	}{
		{domain.StatusPending, [5]domain.StepState{a, p, p, p, p}},
		{domain.StatusPaymentProcessing, [5]domain.StepState{c, a, p, p, p}},
		{domain.StatusPaymentConfirmed, [5]domain.StepState{c, c, a, p, p}},
		{domain.StatusConvertingToUSDT, [5]domain.StepState{c, c, c, a, p}},
		{domain.StatusUSDTSent, [5]domain.StepState{c, c, c, c, a}},
		{domain.StatusCompleted, [5]domain.StepState{c, c, c, c, c}},
	}
	for _, tc := range cases {
		got := stateList(DeriveSteps(tc.current, tc.current))
		if got != tc.want {
			t.Errorf("DeriveSteps(%s): got %v, want %v", tc.current, got, tc.want)
		}
	}
}

func TestDeriveStepsCompletedPrefixIsMonotonic(t *testing.T) {
	// Advancing the status must never un-complete an earlier step.
	sequence := []domain.Status{
		domain.StatusPending,
		domain.StatusPaymentProcessing,
		domain.StatusPaymentConfirmed,
		domain.StatusConvertingToUSDT,
		domain.StatusUSDTSent,
		domain.StatusCompleted,
	}
	prevCompleted := -1
	for _, status := range sequence {
		steps := DeriveSteps(status, status)
		completed := -1
		for i, s := range steps {
			if s.State == domain.StepCompleted {
				if i != completed+1 {
					t.Fatalf("status %s: completed steps are not a prefix", status)
				}
				completed = i
			}
		}
		if completed < prevCompleted {
			t.Fatalf("status %s: completed prefix shrank from %d to %d", status, prevCompleted, completed)
		}
		prevCompleted = completed
	}
}

func TestDeriveStepsFailedMarksReachedSteps(t *testing.T) {
	f, p := domain.StepFailed, domain.StepPending

	got := stateList(DeriveSteps(domain.StatusFailed, domain.StatusConvertingToUSDT))
	want := [5]domain.StepState{f, f, f, p, p}
	if got != want {
		t.Fatalf("failure after converting_to_usdt: got %v, want %v", got, want)
	}
}

func TestDeriveStepsFailedBeforeProgress(t *testing.T) {
	got := stateList(DeriveSteps(domain.StatusFailed, domain.StatusPending))
	want := [5]domain.StepState{domain.StepPending, domain.StepPending, domain.StepPending, domain.StepPending, domain.StepPending}
	if got != want {
		t.Fatalf("failure before any progress: got %v, want %v", got, want)
	}
}

func TestDeriveStepsFailedAtCompletion(t *testing.T) {
	got := stateList(DeriveSteps(domain.StatusFailed, domain.StatusCompleted))
	for i, s := range got {
		if s != domain.StepFailed {
			t.Fatalf("step %d = %v, want failed", i, s)
		}
	}
}

func TestDeriveStepsUnknownStatusShowsNoProgress(t *testing.T) {
	got := stateList(DeriveSteps(domain.Status("quantum_settled"), domain.Status("quantum_settled")))
	want := [5]domain.StepState{domain.StepActive, domain.StepPending, domain.StepPending, domain.StepPending, domain.StepPending}
	if got != want {
		t.Fatalf("unknown status: got %v, want %v", got, want)
	}
}

func TestDeriveStepsIsPure(t *testing.T) {
	first := DeriveSteps(domain.StatusPaymentConfirmed, domain.StatusPaymentConfirmed)
	second := DeriveSteps(domain.StatusPaymentConfirmed, domain.StatusPaymentConfirmed)
	if first != second {
		t.Fatal("identical inputs produced different step arrays")
	}
}
