package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/server/internal/tracking"
)

const slowRequestThreshold = time.Second

// SetupMiddlewares registers the global middleware chain. Tenant resolution and rate
// limiting are group-level so that probes and admin routes never depend on a tenant.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config, healthPath, readyPath string) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))

	isProbe := func(c echo.Context) bool {
		p := c.Path()
		return p == healthPath || p == readyPath
	}
	e.Use(otelecho.Middleware(cfg.App.Name, otelecho.WithSkipper(isProbe)))
	e.Use(tracking.HTTPMetrics(isProbe))

	e.Use(CORS(cfg.Server.CORS.Origins, cfg.Tenancy.Header))

	e.Use(Logger(log, LoggerConfig{
		HealthPath:           healthPath,
		ReadyPath:            readyPath,
		SlowRequestThreshold: slowRequestThreshold,
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("stack", string(stack)).
				Msg("Panic recovered")
			return err
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            3600,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	e.Use(Timeout(cfg.Server.Timeout.Middleware))
}
