// Package observability provides OpenTelemetry tracing and metrics for the
// governed telemetry pipeline: decision counters by outcome and reason, the
// committed risk gauge, epoch processing latency, and overlay drop counts.
//
// Instrumentation is advisory. A failed export never blocks or reorders a
// decision path; the ledger remains the authoritative record.
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

	"github.com/neuroprint-labs/neurogate/pkg/contracts"
)

const scopeName = "neurogate.pipeline"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // e.g. "localhost:4317" for gRPC
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	Enabled        bool
	Insecure       bool // dev only
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "neurogate",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       false,
	}
}

// Provider manages the trace and metric providers plus the pipeline's
// instruments.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	epochCounter    metric.Int64Counter
	decisionCounter metric.Int64Counter
	riskGauge       metric.Float64Gauge
	epochDuration   metric.Float64Histogram
	framesDropped   metric.Int64Counter
	chainVerify     metric.Int64Counter
}

// New creates a new observability provider.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("neurogate.component", "pipeline"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(scopeName,
		trace.WithInstrumentationVersion(config.ServiceVersion),
	)
	p.meter = otel.Meter(scopeName,
		metric.WithInstrumentationVersion(config.ServiceVersion),
	)

	if err := p.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to init instruments: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
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
		return fmt.Errorf("failed to create trace exporter: %w", err)
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
		return fmt.Errorf("failed to create metric exporter: %w", err)
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

	p.epochCounter, err = p.meter.Int64Counter("neurogate.epochs.total",
		metric.WithDescription("Epochs processed through the pipeline"),
		metric.WithUnit("{epoch}"),
	)
	if err != nil {
		return err
	}

	p.decisionCounter, err = p.meter.Int64Counter("neurogate.decisions.total",
		metric.WithDescription("Kernel decisions by outcome and reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	p.riskGauge, err = p.meter.Float64Gauge("neurogate.risk.committed",
		metric.WithDescription("Committed session risk fraction"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	p.epochDuration, err = p.meter.Float64Histogram("neurogate.epoch.duration",
		metric.WithDescription("Epoch processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return err
	}

	p.framesDropped, err = p.meter.Int64Counter("neurogate.overlay.dropped.total",
		metric.WithDescription("Diagnostic frames dropped by the overlay consumer"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return err
	}

	p.chainVerify, err = p.meter.Int64Counter("neurogate.chain.verifications.total",
		metric.WithDescription("Ledger chain verification results"),
		metric.WithUnit("{check}"),
	)
	return err
}

// Shutdown gracefully shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
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

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(scopeName)
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(scopeName)
	}
	return p.meter
}

// StartSpan starts a new span with the given name.
func (p *Provider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, name, opts...)
}

// RecordDecision records a kernel decision for one proposal.
func (p *Provider) RecordDecision(ctx context.Context, prop contracts.TransitionProposal, d contracts.Decision) {
	if p.decisionCounter != nil {
		p.decisionCounter.Add(ctx, 1, metric.WithAttributes(DecisionAttrs(prop, d)...))
	}
}

// RecordCommittedRisk records the session's committed risk after an epoch.
func (p *Provider) RecordCommittedRisk(ctx context.Context, sessionID string, tier contracts.CapabilityState, risk float64) {
	if p.riskGauge != nil {
		p.riskGauge.Record(ctx, risk, metric.WithAttributes(
			AttrSessionID.String(sessionID),
			AttrTier.String(string(tier)),
		))
	}
}

// RecordFramesDropped records overlay frames lost to backpressure.
func (p *Provider) RecordFramesDropped(ctx context.Context, sessionID string, n int64) {
	if p.framesDropped != nil && n > 0 {
		p.framesDropped.Add(ctx, n, metric.WithAttributes(AttrSessionID.String(sessionID)))
	}
}

// RecordChainVerification records the outcome of a ledger chain check.
func (p *Provider) RecordChainVerification(ctx context.Context, sessionID string, ok bool) {
	if p.chainVerify != nil {
		p.chainVerify.Add(ctx, 1, metric.WithAttributes(
			AttrSessionID.String(sessionID),
			AttrChainIntact.Bool(ok),
		))
	}
}

// TrackEpoch instruments one epoch from ingest to ledger commit. The returned
// function records duration and any processing error, then ends the span.
func (p *Provider) TrackEpoch(ctx context.Context, sessionID string, epochIndex uint64) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrEpochIndex.Int64(int64(epochIndex)),
	}

	ctx, span := p.StartSpan(ctx, "neurogate.epoch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	if p.epochCounter != nil {
		p.epochCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.epochDuration != nil {
			p.epochDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}
