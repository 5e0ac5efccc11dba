// Package tracking records HTTP server metrics following OpenTelemetry semantic
// conventions, with the tenant resolution strategy as an extra attribute.
package tracking

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyvewellness/tenantgate/tenant"
)

const (
	httpMeterName = "tenantgate/http-server"

	metricHTTPRequestDuration = "http.server.request.duration"
	metricHTTPActiveRequests  = "http.server.active_requests"

	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrHTTPRoute          = "http.route"
	attrURLScheme          = "url.scheme"
	attrErrorType          = "error.type"
	attrTenantStrategy     = "tenant.strategy"
)

var httpDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
}

var (
	meterOnce   sync.Once
	meterInitMu sync.Mutex

	httpDurationHistogram   metric.Float64Histogram
	httpActiveRequestsGauge metric.Int64UpDownCounter
)

func logMetricError(metricName string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize HTTP metric %s: %v\n", metricName, err)
	}
}

func initHTTPMeter() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	meter := otel.Meter(httpMeterName)

	var err error
	httpDurationHistogram, err = meter.Float64Histogram(
		metricHTTPRequestDuration,
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(httpDurationBuckets...),
	)
	logMetricError(metricHTTPRequestDuration, err)

	httpActiveRequestsGauge, err = meter.Int64UpDownCounter(
		metricHTTPActiveRequests,
		metric.WithDescription("Number of active HTTP server requests"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricHTTPActiveRequests, err)
}

// Skipper reports requests that should not be measured.
type Skipper func(c echo.Context) bool

// HTTPMetrics records request duration and active request count. The duration carries
// the tenant strategy when the request was resolved to a tenant.
func HTTPMetrics(skip Skipper) echo.MiddlewareFunc {
	meterOnce.Do(initHTTPMeter)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}

			req := c.Request()
			method := req.Method
			scheme := extractScheme(c)
			base := []attribute.KeyValue{
				attribute.String(attrHTTPRequestMethod, method),
				attribute.String(attrURLScheme, scheme),
			}

			recordActiveRequestDelta(req.Context(), 1, base)
			start := time.Now()
			err := next(c)
			duration := time.Since(start)
			recordActiveRequestDelta(req.Context(), -1, base)

			attrs := append(base,
				attribute.Int(attrHTTPResponseStatus, c.Response().Status),
				attribute.String(attrHTTPRoute, normalizeRoute(c.Path())),
			)
			// the tenant middleware replaces the request, so read it again
			if res, ok := tenant.ResolutionFromContext(c.Request().Context()); ok {
				attrs = append(attrs, attribute.String(attrTenantStrategy, res.Strategy))
			}
			if errorType := classifyHTTPError(c.Response().Status, err); errorType != "" {
				attrs = append(attrs, attribute.String(attrErrorType, errorType))
			}
			recordRequestDuration(req.Context(), duration, attrs)

			return err
		}
	}
}

func recordActiveRequestDelta(ctx context.Context, delta int64, attrs []attribute.KeyValue) {
	if httpActiveRequestsGauge != nil {
		httpActiveRequestsGauge.Add(ctx, delta, metric.WithAttributes(attrs...))
	}
}

func recordRequestDuration(ctx context.Context, duration time.Duration, attrs []attribute.KeyValue) {
	if httpDurationHistogram != nil {
		httpDurationHistogram.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
}

func normalizeRoute(route string) string {
	if route == "" {
		return "unknown"
	}
	return route
}

func extractScheme(c echo.Context) string {
	if proto := c.Request().Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if c.Request().TLS != nil {
		return "https"
	}
	return "http"
}

// classifyHTTPError returns the status code for 4xx/5xx responses and "handler_error"
// for errors that did not produce one.
func classifyHTTPError(statusCode int, err error) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	if err != nil {
		return "handler_error"
	}
	return ""
}

// ResetForTesting drops the instruments so the next HTTPMetrics call binds to the
// current global meter provider.
func ResetForTesting() {
	meterInitMu.Lock()
	defer meterInitMu.Unlock()

	httpDurationHistogram = nil
	httpActiveRequestsGauge = nil
	meterOnce = sync.Once{}
}
