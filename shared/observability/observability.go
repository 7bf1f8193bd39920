package observability

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

func newResource(serviceName string) *resource.Resource {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		// schema mismatch between the SDK default and ours; keep our attributes
		return resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName))
	}
	return res
}

// SetupTracing installs a global tracer provider exporting to stdout and
// W3C trace-context propagation. The returned function flushes and stops it.
func SetupTracing(serviceName string) (func(context.Context) error, error) {
	exp, err := stdouttrace.New()
	if err != nil {
		return nil, fmt.Errorf("init stdouttrace exporter: %w", err)
	}
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(newResource(serviceName)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

// Metrics is the installed meter provider and the handler exposing it.
type Metrics struct {
	Provider *metric.MeterProvider
	Handler  http.Handler
}

// SetupPrometheusMetrics installs a global meter provider backed by a
// dedicated Prometheus registry. Counters created through otel.Meter are
// scraped from Handler.
func SetupPrometheusMetrics(serviceName string) (*Metrics, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exp, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("init prometheus exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(exp),
		metric.WithResource(newResource(serviceName)),
	)
	otel.SetMeterProvider(mp)

	return &Metrics{
		Provider: mp,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}, nil
}

// MetricsServer serves /metrics on its own port.
func MetricsServer(port string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{Addr: ":" + port, Handler: mux}
}
