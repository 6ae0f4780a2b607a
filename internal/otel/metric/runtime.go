package metric

import (
	"context"
	"fmt"
	"runtime"

	"go.opentelemetry.io/otel"
	api "go.opentelemetry.io/otel/metric"
)

// InitializeRuntimeInstruments registers gauges for the Go runtime, so that the cost of exporting
// spans can be compared against the process as a whole.
//
// The gauges nop if the global [api.MeterProvider] has no readers.
//
// naming based on:
// https://opentelemetry.io/docs/specs/otel/metrics/semantic_conventions/runtime-environment-metrics
func InitializeRuntimeInstruments() {
	goroutines := Int64ObservableGauge("process.runtime.go.goroutines",
		api.WithDescription("Number of goroutines that currently exist"),
		api.WithUnit("{goroutine}"))
	heap := Int64ObservableGauge("process.runtime.go.mem.heap_alloc",
		api.WithDescription("Bytes of allocated heap objects"),
		api.WithUnit("By"))
	mallocs := Int64ObservableGauge("process.runtime.go.mem.mallocs",
		api.WithDescription("Cumulative count of heap objects allocated"),
		api.WithUnit("{object}"))
	gcs := Int64ObservableGauge("process.runtime.go.gc.count",
		api.WithDescription("Number of completed garbage collection cycles"),
		api.WithUnit("{cycle}"))

	if _, err := Meter().RegisterCallback(
		func(_ context.Context, o api.Observer) error {
			ms := runtime.MemStats{}
			// stops the world, but callbacks are only run on collection
			runtime.ReadMemStats(&ms)

			o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
			o.ObserveInt64(heap, int64(ms.HeapAlloc))
			o.ObserveInt64(mallocs, int64(ms.Mallocs))
			o.ObserveInt64(gcs, int64(ms.NumGC))
			return nil
		},
		goroutines,
		heap,
		mallocs,
		gcs,
	); err != nil {
		otel.Handle(fmt.Errorf("register runtime statistics callback: %w", err))
	}
}
