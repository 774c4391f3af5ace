package observability

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options selects where telemetry goes. A nil TraceWriter disables tracing.
type Options struct {
	// Registerer receives the OTel metrics collector. Defaults to
	// prometheus.DefaultRegisterer, which /metrics serves.
	Registerer prometheus.Registerer
	// TraceWriter receives finished spans as JSON, one batch at a time.
	TraceWriter io.Writer
}

// Observability owns the OTel meter and tracer providers. A zero value is
// safe to use and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	webhookCounter otelmetric.Int64Counter
	webhookLatency otelmetric.Float64Histogram
	leadCounter    otelmetric.Int64Counter
}

// New registers a Prometheus-backed meter provider and, when opts carries a
// trace writer, a tracer provider that batches spans to it. Exporter
// failures degrade to a zero Observability.
func New(serviceName string, opts Options) (*Observability, error) {
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return &Observability{}, err
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	provider := metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(provider)

	obs := &Observability{meterProvider: provider}

	if opts.TraceWriter != nil {
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(opts.TraceWriter))
		if err != nil {
			return obs, err
		}
		obs.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spanExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(obs.tracerProvider)
		obs.tracer = obs.tracerProvider.Tracer(serviceName)
	}

	meter := provider.Meter(serviceName)

	obs.webhookCounter, _ = meter.Int64Counter(
		"webhooks.processed",
		otelmetric.WithDescription("Number of webhook calls processed"),
	)
	obs.webhookLatency, _ = meter.Float64Histogram(
		"webhooks.duration",
		otelmetric.WithDescription("Webhook processing duration"),
		otelmetric.WithUnit("ms"),
	)
	obs.leadCounter, _ = meter.Int64Counter(
		"leads.processed",
		otelmetric.WithDescription("Number of leads processed by result"),
	)

	return obs, nil
}

// TracingEnabled reports whether spans are exported.
func (o *Observability) TracingEnabled() bool {
	return o != nil && o.tracerProvider != nil
}

func (o *Observability) RecordWebhook(ctx context.Context, status string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("status", status))
	if o.webhookCounter != nil {
		o.webhookCounter.Add(ctx, 1, attrs)
	}
	if o.webhookLatency != nil {
		o.webhookLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordLead(ctx context.Context, result string) {
	if o == nil || o.leadCounter == nil {
		return
	}
	o.leadCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("result", result)))
}

// StartSpan starts a span named name. With tracing disabled it returns a
// non-recording span.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans and stops both providers.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
