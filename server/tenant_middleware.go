package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

// Resolver decides which tenant a request belongs to. *tenant.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, r *http.Request) (*tenant.Resolution, error)
}

// TenantMiddleware resolves the tenant and stores the resolution in the request context.
// A request that resolves to no active tenant is rejected with TENANT_NOT_FOUND before
// any handler runs; there is no default tenant.
func TenantMiddleware(resolver Resolver, log logger.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if resolver == nil {
				return NewInternalServerError("tenant resolver not configured")
			}

			req := c.Request()
			res, err := resolver.Resolve(req.Context(), req)
			if err != nil {
				return resolutionError(c, log, err)
			}

			c.SetRequest(req.WithContext(tenant.WithResolution(req.Context(), res)))
			return next(c)
		}
	}
}

func resolutionError(c echo.Context, log logger.Logger, err error) error {
	var nf *tenant.NotFoundError
	switch {
	case errors.As(err, &nf):
		log.Warn().
			Strs("checked", nf.Checked).
			Str("path", c.Request().URL.Path).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("Tenant resolution failed")
		return NewTenantNotFoundError(nf.Checked)
	case errors.Is(err, tenant.ErrTenantNotFound):
		return NewTenantNotFoundError(nil)
	case errors.Is(err, tenant.ErrDirectoryUnavailable):
		log.Error().Err(err).Msg("Tenant directory unavailable")
		return NewServiceUnavailableError("Tenant directory unavailable")
	default:
		log.Error().Err(err).Msg("Tenant resolution error")
		return NewInternalServerError("")
	}
}

// RequireTenant rejects requests that reach a handler without a resolved tenant. It is
// meant for routes mounted outside the group that runs TenantMiddleware.
func RequireTenant() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := tenant.FromContext(c.Request().Context()); !ok {
				return NewTenantNotFoundError(nil)
			}
			return next(c)
		}
	}
}
