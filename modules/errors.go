// Package modules holds what the HTTP modules share: the translation of store and
// scope errors into API errors.
package modules

import (
	"context"
	"errors"
	"strings"

	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/store"
)

// StoreError maps a repository error to the API error returned to the client.
// Unexpected errors are logged and reported as a generic 500.
func StoreError(log logger.Logger, err error, resource string) server.IAPIError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return server.NewNotFoundError(resource)
	case errors.Is(err, store.ErrConflict):
		return server.NewConflictError(strip(err, store.ErrConflict))
	case errors.Is(err, database.ErrMissingTenant):
		return server.NewTenantNotFoundError(nil)
	case errors.Is(err, database.ErrOutsideAdminScope):
		return server.NewBadRequestError(strip(err, database.ErrOutsideAdminScope))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return server.NewServiceUnavailableError("Request timed out")
	}

	if log != nil {
		log.Error().Err(err).Str("resource", resource).Msg("Store operation failed")
	}
	return server.NewInternalServerError("Internal server error")
}

// strip drops the sentinel prefix so the client sees only the detail, e.g.
// `slug "demo" is used by tenant 2`.
func strip(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()+": "); i >= 0 {
		return msg[i+len(sentinel.Error())+2:]
	}
	return msg
}
