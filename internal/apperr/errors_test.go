package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		configuration bool
		transport     bool
		validation    bool
	}{
		{"configuration", Configuration("HUME_API_KEY", nil), true, false, false},
		{"transport", Transport("inference", 502, errors.New("bad gateway")), false, true, false},
		{"validation", Validation("body", ErrEmptyAudio), false, false, true},
		{"wrapped validation", fmt.Errorf("analyze: %w", Validation("", ErrEmptyAudio)), false, false, true},
		{"plain", errors.New("boom"), false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfiguration(tt.err); got != tt.configuration {
				t.Errorf("IsConfiguration = %v, want %v", got, tt.configuration)
			}
			if got := IsTransport(tt.err); got != tt.transport {
				t.Errorf("IsTransport = %v, want %v", got, tt.transport)
			}
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation = %v, want %v", got, tt.validation)
			}
		})
	}
}

func TestValidationUnwrap(t *testing.T) {
	err := Validation("body", ErrEmptyAudio)
	if !errors.Is(err, ErrEmptyAudio) {
		t.Error("expected errors.Is to find ErrEmptyAudio")
	}
	if err.Error() != "body: no audio data received" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTransportMessage(t *testing.T) {
	err := Transport("notification", 403, errors.New("forbidden"))
	if err.Error() != "notification: API error: 403 - forbidden" {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = Transport("inference", 0, errors.New("connection refused"))
	if err.Error() != "inference: connection refused" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
