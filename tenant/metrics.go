package tenant

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "tenantgate/tenant"

	metricResolutionTotal  = "tenant.resolution.total"
	metricRefreshDuration  = "tenant.directory.refresh.duration"
	metricDirectorySize    = "tenant.directory.size"
	metricDirectoryRefresh = "tenant.directory.refresh.total"

	attrStrategy = "tenant.strategy"
	attrOutcome  = "tenant.outcome"
	attrRule     = "tenant.rule"
	attrError    = "error.type"
)

// Resolution outcomes recorded on tenant.resolution.total.
const (
	OutcomeResolved = "resolved"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	meterOnce sync.Once

	resolutionCounter metric.Int64Counter
	refreshHistogram  metric.Float64Histogram
	refreshCounter    metric.Int64Counter
	sizeGauge         metric.Int64Gauge
)

func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize tenant metric %s: %v\n", name, err)
	}
}

// initMeter creates the instruments against the global meter provider.
func initMeter() {
	meter := otel.Meter(meterName)

	var err error
	resolutionCounter, err = meter.Int64Counter(
		metricResolutionTotal,
		metric.WithDescription("Tenant resolutions by winning strategy and outcome"),
		metric.WithUnit("{resolution}"),
	)
	logMetricError(metricResolutionTotal, err)

	refreshHistogram, err = meter.Float64Histogram(
		metricRefreshDuration,
		metric.WithDescription("Time spent loading the tenant directory from its source"),
		metric.WithUnit("s"),
	)
	logMetricError(metricRefreshDuration, err)

	refreshCounter, err = meter.Int64Counter(
		metricDirectoryRefresh,
		metric.WithDescription("Tenant directory loads"),
		metric.WithUnit("{refresh}"),
	)
	logMetricError(metricDirectoryRefresh, err)

	sizeGauge, err = meter.Int64Gauge(
		metricDirectorySize,
		metric.WithDescription("Active tenants in the current directory snapshot"),
		metric.WithUnit("{tenant}"),
	)
	logMetricError(metricDirectorySize, err)
}

func recordResolution(ctx context.Context, strategy string, rule Rule, outcome string) {
	meterOnce.Do(initMeter)
	if resolutionCounter == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String(attrOutcome, outcome)}
	if strategy != "" {
		attrs = append(attrs, attribute.String(attrStrategy, strategy))
	}
	if rule != "" {
		attrs = append(attrs, attribute.String(attrRule, string(rule)))
	}
	resolutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func recordRefresh(ctx context.Context, elapsed time.Duration, size int, err error) {
	meterOnce.Do(initMeter)

	attrs := []attribute.KeyValue{}
	if err != nil {
		attrs = append(attrs, attribute.String(attrError, fmt.Sprintf("%T", err)))
	}
	if refreshHistogram != nil {
		refreshHistogram.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
	if refreshCounter != nil {
		refreshCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if err == nil && sizeGauge != nil {
		sizeGauge.Record(ctx, int64(size))
	}
}
