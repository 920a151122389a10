// Package observability wires OpenTelemetry tracing and metrics for the
// event store and replay manager. All recording methods are nil-safe so
// components can accept an optional *Provider and skip instrumentation
// when none is configured.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string // e.g. "localhost:4317"
	SampleRate     float64
	BatchTimeout   time.Duration
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "simtrace",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider holds the trace and metric providers plus the domain
// instruments for event storage and replay.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	eventsStored    metric.Int64Counter
	eventsDropped   metric.Int64Counter
	recordsSkipped  metric.Int64Counter
	keysReaped      metric.Int64Counter
	handlerFailures metric.Int64Counter
	storeDuration   metric.Float64Histogram
	replayDuration  metric.Float64Histogram
}

// New creates a provider. With Enabled false the provider is inert and
// every recording method is a no-op.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer("simtrace",
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter("simtrace",
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "telemetry initialized",
		"service", config.ServiceName,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initInstruments() error {
	var err error

	p.eventsStored, err = p.meter.Int64Counter("simtrace.events.stored.total",
		metric.WithDescription("Events accepted by the store"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}
	p.eventsDropped, err = p.meter.Int64Counter("simtrace.events.dropped.total",
		metric.WithDescription("Events the store failed to persist"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}
	p.recordsSkipped, err = p.meter.Int64Counter("simtrace.records.skipped.total",
		metric.WithDescription("Malformed stored records skipped on read"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}
	p.keysReaped, err = p.meter.Int64Counter("simtrace.keys.reaped.total",
		metric.WithDescription("Expired stream keys deleted by cleanup"),
		metric.WithUnit("{key}"),
	)
	if err != nil {
		return err
	}
	p.handlerFailures, err = p.meter.Int64Counter("simtrace.replay.handler_failures.total",
		metric.WithDescription("Handler errors isolated during replay"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}
	p.storeDuration, err = p.meter.Float64Histogram("simtrace.store.duration",
		metric.WithDescription("Store operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return err
	}
	p.replayDuration, err = p.meter.Float64Histogram("simtrace.replay.duration",
		metric.WithDescription("Full replay duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0, 300.0),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// StartSpan starts a span; on a nil or disabled provider it falls back to
// the global tracer.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if p == nil || p.tracer == nil {
		return otel.Tracer("simtrace").Start(ctx, name, opts...)
	}
	return p.tracer.Start(ctx, name, opts...)
}

// CountEventStored records one accepted write.
func (p *Provider) CountEventStored(ctx context.Context, simulationID string) {
	if p == nil || p.eventsStored == nil {
		return
	}
	p.eventsStored.Add(ctx, 1, metric.WithAttributes(attribute.String("simulation.id", simulationID)))
}

// CountEventDropped records one failed write.
func (p *Provider) CountEventDropped(ctx context.Context, simulationID string) {
	if p == nil || p.eventsDropped == nil {
		return
	}
	p.eventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("simulation.id", simulationID)))
}

// CountRecordSkipped records one malformed record skipped on read.
// Corruption rate is observable as skipped/stored.
func (p *Provider) CountRecordSkipped(ctx context.Context, simulationID string) {
	if p == nil || p.recordsSkipped == nil {
		return
	}
	p.recordsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("simulation.id", simulationID)))
}

// CountKeysReaped records keys deleted by a cleanup sweep.
func (p *Provider) CountKeysReaped(ctx context.Context, n int64) {
	if p == nil || p.keysReaped == nil || n == 0 {
		return
	}
	p.keysReaped.Add(ctx, n)
}

// CountHandlerFailure records one isolated handler error during replay.
func (p *Provider) CountHandlerFailure(ctx context.Context, simulationID string) {
	if p == nil || p.handlerFailures == nil {
		return
	}
	p.handlerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("simulation.id", simulationID)))
}

// RecordStoreDuration records the duration of one store operation.
func (p *Provider) RecordStoreDuration(ctx context.Context, op string, d time.Duration) {
	if p == nil || p.storeDuration == nil {
		return
	}
	p.storeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("store.operation", op)))
}

// RecordReplayDuration records the wall-clock duration of one replay run.
func (p *Provider) RecordReplayDuration(ctx context.Context, simulationID string, d time.Duration) {
	if p == nil || p.replayDuration == nil {
		return
	}
	p.replayDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("simulation.id", simulationID)))
}
