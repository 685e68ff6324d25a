package observe

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// DefaultServiceName is reported when [ProviderConfig.ServiceName] is empty.
const DefaultServiceName = "eclectech"

// ProviderConfig configures [InitProvider].
type ProviderConfig struct {
	ServiceName    string
	ServiceVersion string

	// Registerer receives the Prometheus collector. Nil means
	// prometheus.DefaultRegisterer, which is what /metrics serves.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. Without one spans are sampled
	// for log correlation but never exported.
	TraceExporter sdktrace.SpanExporter
}

// Telemetry owns the SDK providers installed by [InitProvider].
type Telemetry struct {
	Meters  *sdkmetric.MeterProvider
	Tracers *sdktrace.TracerProvider
}

// InitProvider installs a meter provider backed by the Prometheus exporter
// and a tracer provider as the global OpenTelemetry providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	exp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}

	t := &Telemetry{
		Meters:  sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(exp)),
		Tracers: sdktrace.NewTracerProvider(tpOpts...),
	}
	otel.SetMeterProvider(t.Meters)
	otel.SetTracerProvider(t.Tracers)
	return t, nil
}

// Shutdown flushes pending spans and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.Tracers.Shutdown(ctx), t.Meters.Shutdown(ctx))
}
