package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyvewellness/tenantgate/config"
)

// setupTracing installs an in-memory span exporter and restores the globals afterwards.
func setupTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	originalTP := otel.GetTracerProvider()
	originalPropagator := otel.GetTextMapPropagator()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
		otel.SetTextMapPropagator(originalPropagator)
	})
	return exporter
}

func TestOTelMiddlewareCreatesServerSpan(t *testing.T) {
	exporter := setupTracing(t)
	s := newTestServer(t, testConfig(config.EnvProduction))
	s.Group("/api", TenantMiddleware(testChain(), nil)).GET("/pages/:slug", func(c echo.Context) error {
		return formatSuccessResponse(c, map[string]string{"slug": c.Param("slug")}, http.StatusOK, nil)
	})

	rec := serve(s.Echo(), http.MethodGet, "/api/pages/about", map[string]string{"X-Tenant-ID": "hyve"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/pages/:slug", spans[0].Name)
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)

	tp := rec.Header().Get(HeaderTraceParent)
	require.NotEmpty(t, tp)
	assert.Contains(t, tp, spans[0].SpanContext.TraceID().String())
}

func TestOTelMiddlewareContinuesInboundTrace(t *testing.T) {
	exporter := setupTracing(t)
	s := newTestServer(t, testConfig(config.EnvProduction))
	s.Echo().GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	inbound := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	serve(s.Echo(), http.MethodGet, "/ping", map[string]string{HeaderTraceParent: inbound}, "")

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
}

func TestOTelMiddlewareSkipsProbes(t *testing.T) {
	exporter := setupTracing(t)
	s := newTestServer(t, testConfig(config.EnvProduction))

	serve(s.Echo(), http.MethodGet, "/health", nil, "")

	assert.Empty(t, exporter.GetSpans())
}

func TestTraceParentFallsBackToInbound(t *testing.T) {
	s := newTestServer(t, testConfig(config.EnvProduction))

	inbound := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-00"
	rec := serve(s.Echo(), http.MethodGet, "/missing", map[string]string{HeaderTraceParent: inbound}, "")

	// with the default no-op tracer the inbound context is still propagated
	assert.Contains(t, rec.Header().Get(HeaderTraceParent), "4bf92f3577b34da6a3ce929d0e0e4736")
}
