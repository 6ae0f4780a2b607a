// This package provides OTel metrics support for the exporter.
package metric

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
)

// InitializeProvider sets the global OTel MeterProvider.
//
// If no reader is provided, returned Instruments will nop.
func InitializeProvider(opts ...metric.Option) (func(context.Context) error, error) {
	provider := metric.NewMeterProvider(opts...)
	// set it to the global meter provider
	otel.SetMeterProvider(provider)

	f := func(ctx context.Context) error {
		err := provider.ForceFlush(ctx)
		// shutdown regardless of flush result
		if err2 := provider.Shutdown(ctx); err == nil && err2 != nil {
			return err2
		}
		return err
	}
	return f, nil
}

func Meter(opts ...api.MeterOption) api.Meter {
	return otel.Meter(
		etwotel.InstrumentationName,
		// append opts to default MeterOptions so they can take precedence and override defaults
		append([]api.MeterOption{api.WithSchemaURL(semconv.SchemaURL)}, opts...)...,
	)
}

// re-implement [api.Meter] functions, but instead of returning errors, use the OTel error handler.
//
// The OTel API (and SDK) return a valid instrument regardless of error status:
// https://opentelemetry.io/docs/specs/otel/library-guidelines/#api-and-minimal-implementation

// Int64Counter returns a Counter used to record int64 measurements.
func Int64Counter(name string, options ...api.Int64CounterOption) api.Int64Counter {
	i, err := Meter().Int64Counter(name, options...)
	if err != nil {
		onError(name, err)
	}
	return i
}

// Int64Histogram returns a Histogram used to record int64 measurements.
func Int64Histogram(name string, options ...api.Int64HistogramOption) api.Int64Histogram {
	i, err := Meter().Int64Histogram(name, options...)
	if err != nil {
		onError(name, err)
	}
	return i
}

// Int64ObservableGauge returns an ObservableGauge used to asynchronously record int64 measurements.
func Int64ObservableGauge(name string, options ...api.Int64ObservableGaugeOption) api.Int64ObservableGauge {
	i, err := Meter().Int64ObservableGauge(name, options...)
	if err != nil {
		onError(name, err)
	}
	return i
}

// onError handles errors in the above instrument creation functions, since it is ignored and
// instead a nop version is returned.
func onError(name string, err error) {
	otel.Handle(fmt.Errorf("unable to create instrument %q from meter %q: %v", name, etwotel.InstrumentationName, err))
}
