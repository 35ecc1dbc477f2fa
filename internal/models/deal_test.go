package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{DealStatusPending, DealStatusAccepted, true},
		{DealStatusAccepted, DealStatusFunded, true},
		{DealStatusFunded, DealStatusScheduled, true},
		{DealStatusFunded, DealStatusPosted, true},
		{DealStatusScheduled, DealStatusPosted, true},
		{DealStatusPosted, DealStatusVerified, true},
		{DealStatusVerified, DealStatusCompleted, true},

		// Cancellation paths
		{DealStatusPending, DealStatusCancelled, true},
		{DealStatusAccepted, DealStatusCancelled, true},
		{DealStatusScheduled, DealStatusCancelled, true},

		// Refund paths
		{DealStatusFunded, DealStatusRefunded, true},
		{DealStatusScheduled, DealStatusRefunded, true},
		{DealStatusPosted, DealStatusRefunded, true},
		{DealStatusVerified, DealStatusRefunded, true},

		// Invalid transitions
		{DealStatusPending, DealStatusPosted, false},
		{DealStatusPending, DealStatusFunded, false},
		{DealStatusAccepted, DealStatusPosted, false},
		{DealStatusFunded, DealStatusCancelled, false},
		{DealStatusPosted, DealStatusCancelled, false},
		{DealStatusPosted, DealStatusCompleted, false},
		{DealStatusCompleted, DealStatusRefunded, false},
		{DealStatusRefunded, DealStatusPending, false},
		{DealStatusCancelled, DealStatusAccepted, false},
		{"nonexistent", DealStatusAccepted, false},
		{DealStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		DealStatusPending, DealStatusAccepted, DealStatusFunded,
		DealStatusScheduled, DealStatusPosted, DealStatusVerified,
		DealStatusCompleted, DealStatusRefunded, DealStatusCancelled,
	}

	for _, status := range allStatuses {
		if _, ok := ValidDealTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidDealTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{DealStatusCompleted, DealStatusRefunded, DealStatusCancelled}
	for _, status := range terminal {
		if !IsTerminalStatus(status) {
			t.Errorf("status %q should be terminal", status)
		}
		if transitions := ValidDealTransitions[status]; len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}

func TestDealStatusSteps(t *testing.T) {
	tests := []struct {
		status string
		step   int
	}{
		{DealStatusPending, 1},
		{DealStatusAccepted, 2},
		{DealStatusFunded, 3},
		{DealStatusPosted, 4},
		{DealStatusVerified, 5},
		{DealStatusCompleted, 6},
		{DealStatusRefunded, 0},
		{DealStatusCancelled, 0},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := DealStatusStep(tt.status); got != tt.step {
				t.Errorf("DealStatusStep(%q) = %d, want %d", tt.status, got, tt.step)
			}
		})
	}
}

func TestStateInfo(t *testing.T) {
	info := StateInfo(DealStatusPending)
	if info.IsTerminal {
		t.Error("pending should not be terminal")
	}
	if len(info.AllowedTransitions) != 2 {
		t.Errorf("pending should allow 2 transitions, got %v", info.AllowedTransitions)
	}

	info = StateInfo(DealStatusCompleted)
	if !info.IsTerminal {
		t.Error("completed should be terminal")
	}
	if len(info.AllowedTransitions) != 0 {
		t.Errorf("completed should allow no transitions, got %v", info.AllowedTransitions)
	}
}
