// Package testing provides in-memory OpenTelemetry providers and assertions
// for tests that check spans and metrics without an external collector.
//
//	mp := InstallMeterProvider(t)
//	// exercise code that records metrics through otel.Meter(...)
//	rm := mp.Collect(t)
//	AssertMetricValue(t, rm, "tenant.resolution.total", 1)
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const metricNotFoundErrMsg = "metric %s not found"

// TestTraceProvider wraps the SDK TracerProvider and an in-memory exporter.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a TracerProvider that exports synchronously to memory.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// InstallTraceProvider sets a TestTraceProvider as the global tracer provider
// and restores the previous one when the test ends.
func InstallTraceProvider(t *testing.T) *TestTraceProvider {
	t.Helper()
	original := otel.GetTracerProvider()
	tp := NewTestTraceProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(original)
	})
	return tp
}

// TestMeterProvider wraps the SDK MeterProvider and a manual reader.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a MeterProvider whose metrics are collected on demand.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// InstallMeterProvider sets a TestMeterProvider as the global meter provider
// and restores the previous one when the test ends. Packages that cache their
// instruments must reset them before and after the test.
func InstallMeterProvider(t *testing.T) *TestMeterProvider {
	t.Helper()
	original := otel.GetMeterProvider()
	mp := NewTestMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		otel.SetMeterProvider(original)
	})
	return mp
}

// Collect reads everything recorded so far.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// FindMetric returns the named metric, or nil.
func FindMetric(rm metricdata.ResourceMetrics, metricName string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == metricName {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// AssertMetricValue checks the first data point of the named metric. Sums and
// gauges compare the value; histograms compare the count.
func AssertMetricValue(t *testing.T, rm metricdata.ResourceMetrics, metricName string, expected int64) {
	t.Helper()
	m := FindMetric(rm, metricName)
	require.NotNil(t, m, metricNotFoundErrMsg, metricName)

	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		require.NotEmpty(t, data.DataPoints, "no data points for metric %s", metricName)
		assert.Equal(t, expected, data.DataPoints[0].Value, "metric %s value mismatch", metricName)
	case metricdata.Gauge[int64]:
		require.NotEmpty(t, data.DataPoints, "no data points for metric %s", metricName)
		assert.Equal(t, expected, data.DataPoints[0].Value, "metric %s value mismatch", metricName)
	case metricdata.Histogram[float64]:
		require.NotEmpty(t, data.DataPoints, "no data points for metric %s", metricName)
		assert.Equal(t, uint64(expected), data.DataPoints[0].Count, "metric %s count mismatch", metricName) //nolint:gosec // test values are small
	default:
		t.Fatalf("unsupported metric data type: %T", m.Data)
	}
}

// SumWhere totals the Sum[int64] data points of the named metric whose
// attributes contain every key/value pair in match.
func SumWhere(t *testing.T, rm metricdata.ResourceMetrics, metricName string, match map[string]string) int64 {
	t.Helper()
	m := FindMetric(rm, metricName)
	require.NotNil(t, m, metricNotFoundErrMsg, metricName)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T, not Sum[int64]", metricName, m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		if attributesMatch(dp.Attributes, match) {
			total += dp.Value
		}
	}
	return total
}

func attributesMatch(set attribute.Set, match map[string]string) bool {
	for k, want := range match {
		v, ok := set.Value(attribute.Key(k))
		if !ok || v.AsString() != want {
			return false
		}
	}
	return true
}

// AssertSpanAttribute checks a string attribute on a recorded span.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key, expected string) {
	t.Helper()
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			assert.Equal(t, expected, kv.Value.AsString(), "attribute %s value mismatch", key)
			return
		}
	}
	assert.Fail(t, "attribute not found", "span %q has no attribute %s", span.Name, key)
}
