// Package tracing installs the OpenTelemetry tracer provider used by the
// dispatcher and supervisor spans.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ServiceName identifies the connector in exported spans.
const ServiceName = "queuekit-connector-bull"

// Options selects the exporter.
type Options struct {
	// Exporter is "", "none", "stdout" or "otlp".
	Exporter string
	// Endpoint is the OTLP gRPC collector; defaults to localhost:4317.
	Endpoint string
	// Writer receives stdout exporter output; defaults to os.Stdout.
	Writer io.Writer
	// Version is attached as service.version.
	Version string
}

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider. With no exporter configured the
// global no-op provider is left in place and the returned shutdown is a no-op.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch opts.Exporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		so := []stdouttrace.Option{}
		if opts.Writer != nil {
			so = append(so, stdouttrace.WithWriter(opts.Writer))
		}
		exporter, err = stdouttrace.New(so...)
	case "otlp":
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("tracing: create %s exporter: %w", opts.Exporter, err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", ServiceName)}
	if opts.Version != "" {
		attrs = append(attrs, attribute.String("service.version", opts.Version))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
