// Package telemetry exports the spans of a command run to an OTLP collector.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// ServiceName is reported as service.name on every span.
	ServiceName = "authflow"

	exportTimeout   = 10 * time.Second
	defaultOTLPPath = "/v1/traces"
)

// Tracing owns the tracer provider of one command run.
type Tracing struct {
	provider *sdktrace.TracerProvider
}

// otlpTarget is a collector endpoint split the way otlptracehttp wants it.
type otlpTarget struct {
	endpoint string // host:port
	path     string
	insecure bool
}

func resolveOTLPTarget(endpoint string) (otlpTarget, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return otlpTarget{}, fmt.Errorf("telemetry: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: endpoint %q has no host", endpoint)
	}

	target := otlpTarget{endpoint: u.Host, path: u.Path}
	switch u.Scheme {
	case "http":
		target.insecure = true
	case "https":
	default:
		return otlpTarget{}, fmt.Errorf("telemetry: unsupported scheme %q", u.Scheme)
	}
	if target.path == "" || target.path == "/" {
		target.path = defaultOTLPPath
	}
	return target, nil
}

// SetupTracing starts a batching OTLP/HTTP exporter for endpoint. It
// returns nil when endpoint is empty.
func SetupTracing(ctx context.Context, endpoint, version string) (*Tracing, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, nil
	}

	target, err := resolveOTLPTarget(endpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(target.endpoint),
		otlptracehttp.WithURLPath(target.path),
		otlptracehttp.WithTimeout(exportTimeout),
	}
	if target.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: start trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	return &Tracing{
		provider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		),
	}, nil
}

// TracerProvider returns the provider to hand to instrumented components.
func (t *Tracing) TracerProvider() trace.TracerProvider {
	return t.provider
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: trace shutdown: %w", err)
	}
	return nil
}
