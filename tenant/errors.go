package tenant

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTenantNotFound is returned when no active tenant matches a signal.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantInactive is returned when the only match is a deactivated tenant.
	// It wraps ErrTenantNotFound: callers must not treat the two differently.
	ErrTenantInactive = fmt.Errorf("%w: tenant is inactive", ErrTenantNotFound)

	// ErrReservedHost is returned for local hosts that never take part in domain matching.
	ErrReservedHost = fmt.Errorf("%w: reserved host", ErrTenantNotFound)

	// ErrNoTenantInContext is returned by context accessors when resolution did not run
	// or did not succeed for the request.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrDirectoryUnavailable means the tenant source could not be read and no usable
	// snapshot was cached.
	ErrDirectoryUnavailable = errors.New("tenant directory unavailable")
)

// NotFoundError reports a failed resolution together with the signals that were present
// on the request and checked, in chain order.
type NotFoundError struct {
	Checked []string
}

func (e *NotFoundError) Error() string {
	if len(e.Checked) == 0 {
		return "tenant not found: no tenant signal on request"
	}
	return "tenant not found: checked " + strings.Join(e.Checked, ", ")
}

// Unwrap lets errors.Is match ErrTenantNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrTenantNotFound
}
