package models

import (
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     SessionStatus
		to       SessionStatus
		expected bool
	}{
		{
			name:     "initiated to pending",
			from:     SessionStatusInitiated,
			to:       SessionStatusPending,
			expected: true,
		},
		{
			name:     "initiated to completed",
			from:     SessionStatusInitiated,
			to:       SessionStatusCompleted,
			expected: true,
		},
		{
			name:     "initiated to failed",
			from:     SessionStatusInitiated,
			to:       SessionStatusFailed,
			expected: true,
		},
		{
			name:     "pending to completed",
			from:     SessionStatusPending,
			to:       SessionStatusCompleted,
			expected: true,
		},
		{
			name:     "pending to expired",
			from:     SessionStatusPending,
			to:       SessionStatusExpired,
			expected: true,
		},
		{
			name:     "pending back to initiated",
			from:     SessionStatusPending,
			to:       SessionStatusInitiated,
			expected: false,
		},
		{
			name:     "completed to failed",
			from:     SessionStatusCompleted,
			to:       SessionStatusFailed,
			expected: false,
		},
		{
			name:     "completed to expired",
			from:     SessionStatusCompleted,
			to:       SessionStatusExpired,
			expected: false,
		},
		{
			name:     "failed to completed",
			from:     SessionStatusFailed,
			to:       SessionStatusCompleted,
			expected: false,
		},
		{
			name:     "expired to completed",
			from:     SessionStatusExpired,
			to:       SessionStatusCompleted,
			expected: false,
		},
		{
			name:     "same status",
			from:     SessionStatusPending,
			to:       SessionStatusPending,
			expected: false,
		},
		{
			name:     "unknown from status",
			from:     SessionStatus("bogus"),
			to:       SessionStatusCompleted,
			expected: false,
		},
		{
			name:     "unknown to status",
			from:     SessionStatusInitiated,
			to:       SessionStatus("bogus"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("CanTransition(%q, %q) = %v; want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestSessionStatusIsTerminal(t *testing.T) {
	terminal := []SessionStatus{SessionStatusCompleted, SessionStatusFailed, SessionStatusExpired}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%q.IsTerminal() = false; want true", s)
		}
	}

	open := []SessionStatus{SessionStatusInitiated, SessionStatusPending}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%q.IsTerminal() = true; want false", s)
		}
	}
}
