// Package observability provides OpenTelemetry tracing and metrics for the
// poolrun service: OTLP export, RED-style request metrics, and counters for
// the money-moving operations.
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
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "poolrun",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
		Insecure:       true,
	}
}

// Provider manages the trace and metric providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
}

// NewProvider initializes OTLP exporters and registers global providers.
// With cfg.Enabled false it returns a provider backed by the global no-op
// implementations, so instrumentation points stay cheap.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		return &Provider{
			tracer: otel.Tracer(cfg.ServiceName),
			meter:  otel.Meter(cfg.ServiceName),
		}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(cfg.ServiceName),
		meter:          mp.Meter(cfg.ServiceName),
	}, nil
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			slog.Warn("tracer provider shutdown", "error", err)
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the service tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Metrics holds the engine's business metrics.
type Metrics struct {
	RunsCreated          metric.Int64Counter
	DepositsAccepted     metric.Int64Counter
	DepositsRejected     metric.Int64Counter
	WithdrawalsPaid      metric.Int64Counter
	EmergencyWithdrawals metric.Int64Counter
	AmountDeposited      metric.Int64Counter
	AmountWithdrawn      metric.Int64Counter
	SettlementSpread     metric.Int64Histogram
}

// NewMetrics registers the engine counters on the provider's meter.
func NewMetrics(p *Provider) (*Metrics, error) {
	meter := p.meter
	m := &Metrics{}
	var err error
	if m.RunsCreated, err = meter.Int64Counter("poolrun.runs.created",
		metric.WithDescription("Runs created")); err != nil {
		return nil, err
	}
	if m.DepositsAccepted, err = meter.Int64Counter("poolrun.deposits.accepted",
		metric.WithDescription("Deposits accepted")); err != nil {
		return nil, err
	}
	if m.DepositsRejected, err = meter.Int64Counter("poolrun.deposits.rejected",
		metric.WithDescription("Deposits rejected")); err != nil {
		return nil, err
	}
	if m.WithdrawalsPaid, err = meter.Int64Counter("poolrun.withdrawals.paid",
		metric.WithDescription("Withdrawals paid out")); err != nil {
		return nil, err
	}
	if m.EmergencyWithdrawals, err = meter.Int64Counter("poolrun.withdrawals.emergency",
		metric.WithDescription("Emergency withdrawals executed")); err != nil {
		return nil, err
	}
	if m.AmountDeposited, err = meter.Int64Counter("poolrun.amount.deposited",
		metric.WithDescription("Total units deposited")); err != nil {
		return nil, err
	}
	if m.AmountWithdrawn, err = meter.Int64Counter("poolrun.amount.withdrawn",
		metric.WithDescription("Total units withdrawn")); err != nil {
		return nil, err
	}
	if m.SettlementSpread, err = meter.Int64Histogram("poolrun.settlement.spread",
		metric.WithDescription("Final balance minus total deposited at settlement")); err != nil {
		return nil, err
	}
	return m, nil
}

// CountSettlement records a settled run and its spread over deposits.
// The spread is signed: losses land below zero.
func (m *Metrics) CountSettlement(ctx context.Context, runID uint64, totalDeposited, finalBalance uint64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int64("run_id", int64(runID)))
	m.SettlementSpread.Record(ctx, int64(finalBalance)-int64(totalDeposited), attrs)
}

// CountDeposit records an accepted deposit.
func (m *Metrics) CountDeposit(ctx context.Context, runID uint64, amount uint64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int64("run_id", int64(runID)))
	m.DepositsAccepted.Add(ctx, 1, attrs)
	m.AmountDeposited.Add(ctx, int64(amount), attrs)
}

// CountWithdrawal records a paid withdrawal.
func (m *Metrics) CountWithdrawal(ctx context.Context, runID uint64, amount uint64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int64("run_id", int64(runID)))
	m.WithdrawalsPaid.Add(ctx, 1, attrs)
	m.AmountWithdrawn.Add(ctx, int64(amount), attrs)
}
