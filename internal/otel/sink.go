package otel

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

// SpanSink is the capability set shared by the exporter backends in this repo.
//
// Backends are interchangeable: the span processor only relies on this interface, so the
// backend is picked when the pipeline is configured.
type SpanSink interface {
	tracesdk.SpanExporter

	// ForceFlush writes out any buffered spans.
	ForceFlush(context.Context) error

	// SetResource replaces the cached resource used to populate exported events.
	//
	// It is meant to be called during configuration, before spans are exported, but must be
	// safe to call concurrently with ExportSpans.
	SetResource(*resource.Resource)
}
