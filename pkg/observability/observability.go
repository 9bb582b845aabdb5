// Package observability provides logging and OpenTelemetry tracing and
// metrics for VigilAero.
//
// Telemetry is opt-in. With Enabled=false New returns a provider whose
// Tracer and Meter fall back to the otel globals (no-op unless something else
// installed them), so callers never need nil checks.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
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

const scopeName = "vigilaero.platform"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC collector, host:port
	SampleRate     float64       // root span sampling ratio, 0..1
	BatchTimeout   time.Duration // span batch flush interval
	MetricInterval time.Duration // periodic metric export interval
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns local development defaults with telemetry off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "vigilaero",
		ServiceVersion: "dev",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
		Insecure:       true,
	}
}

// Provider owns the SDK providers (when enabled) and the per-operation
// instruments used by TrackOperation.
type Provider struct {
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer
	meter  metric.Meter
	ops    opInstruments
	logger *slog.Logger
}

type opInstruments struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates a provider. Exporters are only created when cfg.Enabled; the
// SDK providers are then installed as the otel globals.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &Provider{logger: slog.Default().With("component", "observability")}

	if cfg.Enabled {
		res, err := serviceResource(cfg)
		if err != nil {
			return nil, err
		}
		if p.tp, err = tracerProvider(ctx, cfg, res); err != nil {
			return nil, err
		}
		if p.mp, err = meterProvider(ctx, cfg, res); err != nil {
			_ = p.tp.Shutdown(ctx)
			return nil, err
		}
		otel.SetTracerProvider(p.tp)
		otel.SetMeterProvider(p.mp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))

		p.tracer = p.tp.Tracer(scopeName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
		p.meter = p.mp.Meter(scopeName, metric.WithInstrumentationVersion(cfg.ServiceVersion))
		p.logger.InfoContext(ctx, "telemetry exporting",
			"service", cfg.ServiceName, "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.SampleRate)
	}

	ops, err := newOpInstruments(p.Meter())
	if err != nil {
		return nil, fmt.Errorf("operation instruments: %w", err)
	}
	p.ops = ops
	return p, nil
}

func serviceResource(cfg *Config) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

func tracerProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		sdktrace.WithSampler(sdktrace.ParentBased(ratioSampler(cfg.SampleRate))),
	), nil
}

func ratioSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func meterProvider(ctx context.Context, cfg *Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	every := cfg.MetricInterval
	if every <= 0 {
		every = 15 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(every))),
	), nil
}

func newOpInstruments(m metric.Meter) (opInstruments, error) {
	var (
		ops opInstruments
		err error
	)
	if ops.calls, err = m.Int64Counter("vigilaero.operation.calls",
		metric.WithDescription("Tracked operations started"),
		metric.WithUnit("{call}"),
	); err != nil {
		return ops, err
	}
	if ops.failures, err = m.Int64Counter("vigilaero.operation.failures",
		metric.WithDescription("Tracked operations that returned an error"),
		metric.WithUnit("{call}"),
	); err != nil {
		return ops, err
	}
	ops.latency, err = m.Float64Histogram("vigilaero.operation.duration",
		metric.WithDescription("Tracked operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 1, 2.5, 10),
	)
	return ops, err
}

// Shutdown flushes and stops the SDK providers, if any.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (p *Provider) Tracer() trace.Tracer {
	if p.tracer != nil {
		return p.tracer
	}
	return otel.Tracer(scopeName)
}

func (p *Provider) Meter() metric.Meter {
	if p.meter != nil {
		return p.meter
	}
	return otel.Meter(scopeName)
}

// TrackOperation starts a span named name and counts the call. The returned
// func ends the span and records duration and, for a non-nil error, the
// failure.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := p.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
	set := metric.WithAttributes(attrs...)
	p.ops.calls.Add(ctx, 1, set)

	return ctx, func(err error) {
		defer span.End()
		p.ops.latency.Record(ctx, time.Since(started).Seconds(), set)
		if err == nil {
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.ops.failures.Add(ctx, 1, set)
	}
}
