package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyAudio    = errors.New("no audio data received")
	ErrMissingText   = errors.New("missing 'text' field in request body")
	ErrTextTooLong   = errors.New("text too long")
	ErrNotConfigured = errors.New("collaborator not configured")
)

// ConfigurationError reports missing credentials or settings required by an operation.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s not configured: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("%s not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// TransportError reports an unreachable collaborator or a non-2xx answer from it.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error: %d - %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports malformed input rejected before any collaborator call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Configuration wraps err as a ConfigurationError for setting.
func Configuration(setting string, err error) error {
	return &ConfigurationError{Setting: setting, Err: err}
}

// Transport wraps err as a TransportError for op.
func Transport(op string, status int, err error) error {
	return &TransportError{Op: op, StatusCode: status, Err: err}
}

// Validation wraps err as a ValidationError for field.
func Validation(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
