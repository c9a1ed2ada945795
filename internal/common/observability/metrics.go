package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Job status attribute values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Observability records per-agent job counts and durations through an
// OpenTelemetry meter exported on the prometheus default registry.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	jobCounter    otelmetric.Int64Counter
	jobDuration   otelmetric.Float64Histogram
	forwards      otelmetric.Int64Counter
}

// New returns a usable Observability even when the exporter cannot be
// created; the recorders are then no-ops.
func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return &Observability{}, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	jobCounter, _ := meter.Int64Counter(
		"agent.jobs.processed",
		otelmetric.WithDescription("Number of agent jobs processed"),
	)

	jobDuration, _ := meter.Float64Histogram(
		"agent.jobs.duration",
		otelmetric.WithDescription("Agent job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	forwards, _ := meter.Int64Counter(
		"agent.messages.forwarded",
		otelmetric.WithDescription("Messages forwarded between agents"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		jobCounter:    jobCounter,
		jobDuration:   jobDuration,
		forwards:      forwards,
	}, nil
}

// NewNoop returns an Observability whose recorders do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordJobProcessed(ctx context.Context, agent, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, agent string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordForward(ctx context.Context, sender, recipient string) {
	if o == nil || o.forwards == nil {
		return
	}
	o.forwards.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("sender", sender),
		attribute.String("recipient", recipient),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
