package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned by Trigger for an unknown job id.
	ErrJobNotFound = errors.New("scheduler: job not found")
	// ErrShuttingDown is returned once Shutdown has started.
	ErrShuttingDown = errors.New("scheduler: shutting down")
)

// ValidationError reports a rejected job registration.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduler: %s %s", e.Field, e.Message)
}
