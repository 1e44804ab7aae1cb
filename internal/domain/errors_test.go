package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorConstants(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "invalid argument"},
		{"ErrNotFound", ErrNotFound, "not found"},
		{"ErrTransport", ErrTransport, "transport error"},
		{"ErrService", ErrService, "service error"},
		{"ErrForbidden", ErrForbidden, "forbidden"},
		{"ErrNotReady", ErrNotReady, "not ready"},
		{"ErrTimedOut", ErrTimedOut, "timed out"},
		{"ErrNotFoundAfterDeadline", ErrNotFoundAfterDeadline, "not found after deadline"},
		{"ErrEmptyArtifact", ErrEmptyArtifact, "empty artifact"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.err.Error())
			}
		})
	}
}

func TestServiceError_Is(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
		want   bool
	}{
		{"500 is service", 500, ErrService, true},
		{"403 is forbidden", 403, ErrForbidden, true},
		{"401 is forbidden", 401, ErrForbidden, true},
		{"500 is not forbidden", 500, ErrForbidden, false},
		{"404 is not ready", 404, ErrNotReady, true},
		{"400 is not ready", 400, ErrNotReady, false},
		{"service is not transport", 500, ErrTransport, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("op=test: %w", &ServiceError{Method: "GET", URL: "http://x", Status: tt.status})
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is(%d, %v) = %v, want %v", tt.status, tt.target, got, tt.want)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &TransportError{Op: "browndog.Do", Err: context.DeadlineExceeded})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport match")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected cause to unwrap")
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "browndog.Do" {
		t.Fatalf("errors.As failed: %v", err)
	}
}
