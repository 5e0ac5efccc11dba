// Package observability wires OpenTelemetry traces and metrics for the gateway.
// Instrumented packages use the otel globals; this package installs the SDK
// providers behind them and tears them down on shutdown.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
)

// Provider manages the lifecycle of the trace and meter providers.
type Provider interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider

	// Shutdown flushes pending telemetry and stops the exporters.
	Shutdown(ctx context.Context) error
	ForceFlush(ctx context.Context) error
}

// Option customizes provider construction.
type Option func(*options)

type options struct {
	writer    io.Writer
	setGlobal bool
}

// WithWriter redirects the stdout exporters to w.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithoutGlobals leaves the otel global providers and propagator untouched.
func WithoutGlobals() Option {
	return func(o *options) { o.setGlobal = false }
}

type provider struct {
	cfg            config.ObservabilityConfig
	app            config.AppConfig
	opts           options
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	mu             sync.Mutex
}

// NewProvider builds the SDK providers described by cfg.Observability. A disabled
// configuration yields a no-op provider. The W3C trace context and baggage
// propagators are installed either way so inbound traceparent headers survive.
func NewProvider(cfg *config.Config, log logger.Logger, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	o := options{writer: os.Stdout, setGlobal: true}
	for _, opt := range opts {
		opt(&o)
	}

	if o.setGlobal {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	obs := cfg.Observability
	if !obs.Enabled {
		return newNoopProvider(), nil
	}
	if obs.ServiceName == "" {
		obs.ServiceName = cfg.App.Name
	}
	if obs.ServiceName == "" {
		return nil, ErrMissingServiceName
	}
	if obs.SampleRatio < 0 || obs.SampleRatio > 1 {
		return nil, ErrInvalidSampleRate
	}

	p := &provider{cfg: obs, app: cfg.App, opts: o}
	res, err := p.createResource()
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	if err := p.initTraceProvider(res); err != nil {
		return nil, fmt.Errorf("failed to initialize trace provider: %w", err)
	}
	if err := p.initMeterProvider(res); err != nil {
		_ = p.tracerProvider.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize meter provider: %w", err)
	}

	if o.setGlobal {
		otel.SetTracerProvider(p.tracerProvider)
		otel.SetMeterProvider(p.meterProvider)
	}

	if log != nil {
		log.Info().
			Str("service", obs.ServiceName).
			Str("exporter", obs.Exporter).
			Str("protocol", obs.Protocol).
			Str("endpoint", obs.Endpoint).
			Interface("sample_ratio", obs.SampleRatio).
			Msg("Observability enabled")
	}
	return p, nil
}

func (p *provider) createResource() (*resource.Resource, error) {
	custom, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(p.cfg.ServiceName),
			semconv.ServiceVersion(p.app.Version),
			semconv.DeploymentEnvironmentName(p.app.Env),
		),
	)
	if err != nil {
		return nil, err
	}
	// no schema URL on custom, so the merge never conflicts with the SDK default
	return resource.Merge(resource.Default(), custom)
}

func (p *provider) initTraceProvider(res *resource.Resource) error {
	exporter, err := p.createTraceExporter()
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.cfg.SampleRatio))),
	)
	return nil
}

func (p *provider) createTraceExporter() (sdktrace.SpanExporter, error) {
	if p.cfg.Exporter == config.ExporterStdout {
		return stdouttrace.New(stdouttrace.WithWriter(p.opts.writer))
	}

	ctx := context.Background()
	switch p.cfg.Protocol {
	case config.ProtocolHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(p.cfg.Endpoint)}
		if p.cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	case config.ProtocolGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.cfg.Endpoint)}
		if p.cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("trace protocol '%s': %w", p.cfg.Protocol, ErrInvalidProtocol)
	}
}

func (p *provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

func (p *provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

//nolint:dupl // Shutdown and ForceFlush have similar structure but different semantics
func (p *provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown trace provider: %w", err))
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

//nolint:dupl // Shutdown and ForceFlush have similar structure but different semantics
func (p *provider) ForceFlush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if err := p.tracerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush trace provider: %w", err))
	}
	if err := p.meterProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush meter provider: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("flush errors: %w", errors.Join(errs...))
	}
	return nil
}
