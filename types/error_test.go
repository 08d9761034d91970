package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := NewError(ErrServiceFailure, "generation service error")
	if e.Error() != "[SERVICE_FAILURE] generation service error" {
		t.Errorf("unexpected format: %s", e.Error())
	}

	cause := errors.New("model overloaded")
	e = e.WithCause(cause)
	if !errors.Is(e, cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestIsStopped(t *testing.T) {
	if !IsStopped(NewStoppedError()) {
		t.Error("NewStoppedError must classify as stopped")
	}
	if IsStopped(NewServiceError(errors.New("boom"))) {
		t.Error("service errors must never classify as stopped")
	}
	if IsStopped(nil) {
		t.Error("nil is not stopped")
	}

	// Wrapped cancellations still classify.
	wrapped := fmt.Errorf("scene 2: %w", NewStoppedError())
	if !IsStopped(wrapped) {
		t.Error("wrapped stop should classify as stopped")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"stopped", NewStoppedError(), StoppedMessage},
		{"service", NewServiceError(errors.New("safety block")), "generation service error: safety block"},
		{"plain", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
