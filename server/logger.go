package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// Probe paths are never logged.
	HealthPath string
	ReadyPath  string

	// SlowRequestThreshold marks slower requests with result_code WARN. Zero disables it.
	SlowRequestThreshold time.Duration
}

// Logger emits one action line per request using OpenTelemetry HTTP attribute names,
// plus the tenant that served it when resolution ran.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if path == cfg.HealthPath || path == cfg.ReadyPath {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the final status is logged
				c.Error(err)
			}
			logAction(c, log, cfg, time.Since(start), err)
			return nil
		}
	}
}

func logAction(c echo.Context, log logger.Logger, cfg LoggerConfig, latency time.Duration, err error) {
	ctx := c.Request().Context()
	status := c.Response().Status

	level, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold, err)
	event := createLogEvent(log.WithContext(ctx), level)
	if err != nil {
		event = event.Err(err)
	}

	if res, ok := tenant.ResolutionFromContext(ctx); ok {
		event = event.
			Int64("tenant_id", res.Tenant.ID).
			Str("tenant_slug", res.Tenant.Slug).
			Str("tenant_strategy", res.Strategy)
	}

	method := c.Request().Method
	uri := c.Request().URL.Path
	event.
		Str("log.type", "action").
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Str("http.request.method", method).
		Int("http.response.status_code", status).
		Int64("http.server.request.duration", latency.Nanoseconds()).
		Str("url.path", uri).
		Str("http.route", c.Path()).
		Str("client.address", c.RealIP()).
		Str("user_agent.original", c.Request().UserAgent()).
		Str("result_code", resultCode).
		Msg(method + " " + uri + " completed in " + latency.String() + " with status " + strconv.Itoa(status))
}

// determineSeverity maps status, latency and error to a log level and result code.
func determineSeverity(status int, latency, threshold time.Duration, err error) (level, resultCode string) {
	switch {
	case status >= 500 || (err != nil && status == 0):
		return "error", "ERROR"
	case status >= 400:
		return "warn", "WARN"
	case threshold > 0 && latency > threshold:
		return "info", "WARN"
	default:
		return "info", "INFO"
	}
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case "error":
		return log.Error()
	case "warn":
		return log.Warn()
	default:
		return log.Info()
	}
}
