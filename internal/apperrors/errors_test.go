package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "direct app error",
			err:      Validation("bad input"),
			expected: CodeValidation,
		},
		{
			name:     "wrapped app error",
			err:      fmt.Errorf("handler: %w", UpstreamGateway("gateway down", errors.New("timeout"))),
			expected: CodeUpstreamGateway,
		},
		{
			name:     "plain error defaults to internal",
			err:      errors.New("boom"),
			expected: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CodeOf(tt.err)
			if result != tt.expected {
				t.Errorf("CodeOf(%v) = %q; want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestMessageOf(t *testing.T) {
	err := NotFound("Session not found")
	if got := MessageOf(err); got != "Session not found" {
		t.Errorf("MessageOf() = %q; want %q", got, "Session not found")
	}

	if got := MessageOf(errors.New("raw db error")); got == "raw db error" {
		t.Error("MessageOf leaked a raw error message to the user")
	}
}

func TestErrorIsMatchesOnCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Persistence("write failed", errors.New("pq: deadlock")))

	if !errors.Is(wrapped, &Error{Code: CodePersistence}) {
		t.Error("errors.Is did not match a wrapped error by code")
	}
	if errors.Is(wrapped, &Error{Code: CodeValidation}) {
		t.Error("errors.Is matched a different code")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := UpstreamGateway("gateway unreachable", cause)

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
}
