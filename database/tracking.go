package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

const (
	instrumentationName = "tenantgate/database"

	metricDBDuration = "db.client.operation.duration"

	maxLoggedQueryLength = 1000
)

var (
	meterOnce         sync.Once
	durationHistogram metric.Float64Histogram
	defaultSlowQuery  = 200 * time.Millisecond
)

func initMeter() {
	var err error
	durationHistogram, err = otel.Meter(instrumentationName).Float64Histogram(
		metricDBDuration,
		metric.WithDescription("Duration of database statements"),
		metric.WithUnit("s"),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: Failed to initialize metric %s: %v\n", metricDBDuration, err)
	}
}

type tracker struct {
	vendor    string
	log       logger.Logger
	slowQuery time.Duration
	tracer    trace.Tracer
}

func newTracker(vendor string, log logger.Logger, slowQuery time.Duration) *tracker {
	if log == nil {
		log = logger.Nop()
	}
	if slowQuery <= 0 {
		slowQuery = defaultSlowQuery
	}
	meterOnce.Do(initMeter)
	return &tracker{
		vendor:    vendor,
		log:       log,
		slowQuery: slowQuery,
		tracer:    otel.Tracer(instrumentationName),
	}
}

// done records one finished statement as a span, a duration sample and a log line.
func (t *tracker) done(ctx context.Context, query string, start time.Time, err error) {
	elapsed := time.Since(start)
	op := operation(query)

	attrs := []attribute.KeyValue{
		attribute.String("db.system", t.vendor),
		attribute.String("db.operation.name", op),
	}
	if id, ok := tenant.IDFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int64("tenant.id", id))
	}

	_, span := t.tracer.Start(ctx, "db."+op, trace.WithTimestamp(start), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attrs...)
	span.SetAttributes(attribute.String("db.query.text", truncate(query, maxLoggedQueryLength)))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End(trace.WithTimestamp(start.Add(elapsed)))

	if durationHistogram != nil {
		durationHistogram.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}

	q := truncate(query, maxLoggedQueryLength)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t.log.Debug().Str("query", q).Dur("elapsed", elapsed).Msg("Query returned no rows")
	case err != nil:
		t.log.Error().Err(err).Str("query", q).Dur("elapsed", elapsed).Msg("Database statement failed")
	case elapsed > t.slowQuery:
		t.log.Warn().Str("query", q).Dur("elapsed", elapsed).Dur("threshold", t.slowQuery).Msg("Slow database statement")
	default:
		t.log.Debug().Str("query", q).Dur("elapsed", elapsed).Msg("Database statement executed")
	}
}

func operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "query"
	}
	return strings.ToLower(fields[0])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
