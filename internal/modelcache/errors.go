package modelcache

import (
	"errors"
	"fmt"
	"time"

	"iotml/internal/engine"
)

// NotFoundError reports a missing artifact.
type NotFoundError struct{ ModelID string }

func (e *NotFoundError) Error() string { return "model not found: " + e.ModelID }

// IsNotFound reports whether err indicates a missing artifact.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// InvalidPathError reports a path outside the storage root. The offending
// path is deliberately not part of the message.
type InvalidPathError struct{ ModelID string }

func (e *InvalidPathError) Error() string { return "invalid model path" }

func IsInvalidPath(err error) bool {
	var e *InvalidPathError
	return errors.As(err, &e)
}

// LoadTimeoutError is transient; callers may retry.
type LoadTimeoutError struct {
	ModelID string
	Timeout time.Duration
}

func (e *LoadTimeoutError) Error() string {
	return fmt.Sprintf("model loading timed out after %s", e.Timeout)
}

func IsLoadTimeout(err error) bool {
	var e *LoadTimeoutError
	return errors.As(err, &e)
}

// TypeMismatchError reports an artifact whose variant differs from the
// requested kind.
type TypeMismatchError struct {
	ModelID string
	Want    engine.Kind
	Got     engine.Kind
}

func (e *TypeMismatchError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("unsupported model type %q", e.Want)
	}
	return fmt.Sprintf("model type mismatch: expected %s, got %s", e.Want, e.Got)
}

func IsTypeMismatch(err error) bool {
	var e *TypeMismatchError
	return errors.As(err, &e)
}

// LoadFailureError wraps I/O and decoding faults. With Sanitized set the
// message never includes the cause; Unwrap still exposes it for logging.
type LoadFailureError struct {
	ModelID   string
	Err       error
	Sanitized bool
}

func (e *LoadFailureError) Error() string {
	if e.Sanitized || e.Err == nil {
		return "failed to load model"
	}
	return "failed to load model: " + e.Err.Error()
}

func (e *LoadFailureError) Unwrap() error { return e.Err }

func IsLoadFailure(err error) bool {
	var e *LoadFailureError
	return errors.As(err, &e)
}
