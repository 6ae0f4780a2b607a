package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
)

// InitializeProvider creates a [tracesdk.TracerProvider] and sets it as the global OTel
// TracerProvider.
//
// The returned function flushes and then shuts down the provider.
// If no span processor or exporter is provided, spans will not be exported.
func InitializeProvider(opts ...tracesdk.TracerProviderOption) (*tracesdk.TracerProvider, func(context.Context) error) {
	tp := tracesdk.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	f := func(ctx context.Context) error {
		err := tp.ForceFlush(ctx)
		// shutdown regardless of flush result
		if err2 := tp.Shutdown(ctx); err == nil && err2 != nil {
			return err2
		}
		return err
	}
	return tp, f
}

func tracer() trace.Tracer {
	// for now, one instrumentation for the entire repo
	return otel.Tracer(
		// use dedicated Tracer in case imported code modifies the global default.
		InstrumentationName,
		trace.WithSchemaURL(semconv.SchemaURL),
	)
}
