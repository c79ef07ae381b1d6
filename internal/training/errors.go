package training

import (
	"errors"
	"fmt"
)

// ValidationError reports bad job parameters.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsValidation reports whether err indicates bad job parameters.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// CapacityError signals a full job store or a full run queue.
type CapacityError struct {
	Limit  int
	Reason string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("cannot create training job: %s (limit %d)", e.Reason, e.Limit)
}

func IsCapacity(err error) bool {
	var e *CapacityError
	return errors.As(err, &e)
}

type jobNotFoundError struct{ id string }

func (e jobNotFoundError) Error() string { return "training job not found: " + e.id }

// IsJobNotFound reports whether err indicates an unknown job id.
func IsJobNotFound(err error) bool {
	var e jobNotFoundError
	return errors.As(err, &e)
}

// errCancelled stops the pipeline once the job has left RUNNING.
var errCancelled = errors.New("job is no longer running")
