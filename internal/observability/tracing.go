package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing wires a process-wide TracerProvider. No exporter is
// configured here (the provider is built without sdktrace.WithBatcher), so
// spans are not exported; an exporter can be added in this function without
// touching call sites.
func InitTracing(serviceName string) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("building otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer for a package, e.g. observability.Tracer("versions").
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// TracingMiddleware wraps a handler with otelhttp span creation, naming the
// service span after the route pattern rather than the raw path to keep
// cardinality bounded.
func TracingMiddleware(routePattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, routePattern)
	}
}

// serviceNameFromEnv falls back to a stable default when ANNEXOPS_SERVICE_NAME
// is unset, e.g. when running tests.
func serviceNameFromEnv() string {
	if n := os.Getenv("ANNEXOPS_SERVICE_NAME"); n != "" {
		return n
	}
	return "annexops-registry"
}
