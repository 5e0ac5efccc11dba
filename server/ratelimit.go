package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/tenant"
)

const RateLimitCleanup = 3 * time.Minute

// RateLimit limits requests per resolved tenant, falling back to the client IP for
// requests without one. Mount it after TenantMiddleware so tenants get their own
// bucket. A non-positive limit disables limiting.
func RateLimit(cfg config.RateConfig) echo.MiddlewareFunc {
	if cfg.Limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Limit
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.Limit),
				Burst:     burst,
				ExpiresIn: RateLimitCleanup,
			},
		),
		IdentifierExtractor: rateLimitKey,
		ErrorHandler: func(_ echo.Context, _ error) error {
			return NewTooManyRequestsError("")
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return NewTooManyRequestsError("Too many requests")
		},
	})
}

func rateLimitKey(c echo.Context) (string, error) {
	if id, ok := tenant.IDFromContext(c.Request().Context()); ok {
		return "tenant:" + strconv.FormatInt(id, 10), nil
	}
	return "ip:" + c.RealIP(), nil
}
