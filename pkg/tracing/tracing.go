// Package tracing wires OpenTelemetry spans for recording sessions.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/user/drivecap/pkg/ports"
)

// TracerName is the instrumentation scope of drivecap spans.
const TracerName = "github.com/user/drivecap"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Init installs a global tracer provider that writes spans as JSON to w.
func Init(ctx context.Context, w io.Writer, serviceName string) (ShutdownFunc, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// InitFile is Init writing to the file at path. The file is closed by the
// returned shutdown function.
func InitFile(ctx context.Context, path, serviceName string) (ShutdownFunc, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	shutdown, err := Init(ctx, f, serviceName)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// Disable installs a no-op tracer provider.
func Disable() {
	otel.SetTracerProvider(noop.NewTracerProvider())
}

// Tracer returns the drivecap tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// End records err on the span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ShutdownWithTimeout flushes pending spans, logging failures.
func ShutdownWithTimeout(ctx context.Context, shutdown ShutdownFunc, logger ports.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("Tracing shutdown failed: %s", err)
	}
}
