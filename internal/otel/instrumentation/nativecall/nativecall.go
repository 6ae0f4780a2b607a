// This package records the duration of calls into the OS event tracing subsystem.
package nativecall

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	etwmetric "github.com/Microsoft/otel-etw-trace/internal/otel/metric"
)

// see:
// https://opentelemetry.io/docs/specs/otel/metrics/semantic_conventions/rpc-metrics/#rpc-client

// not all failed calls return a status code, so this key is used to distinguish between
// successful and failed calls, absent a valid status code.
const successKey = attribute.Key("rpc.etw.success")

const statusCodeKey = attribute.Key("rpc.etw.status_code")

var rpcSystem = semconv.RPCSystemKey.String("etw")

// this will initially be created via the default (nop) MeterProvider, but so long as the
// global MeterProvider is initialized between this initialization and a [RecordDuration] call,
// then the global delegate will forward measurements to it.
var rpcDuration = etwmetric.Int64Histogram("rpc.client.duration",
	api.WithDescription("Duration of calls into the OS event tracing subsystem"),
	api.WithUnit("us"))

// statusCoder is implemented by errors that carry the raw OS status code.
type statusCoder interface {
	StatusCode() uint32
}

// RecordDuration records the duration of a call to function for the specified ETW provider.
func RecordDuration(ctx context.Context, provider, function string, err error, duration time.Duration, options ...api.RecordOption) {
	attrs := make([]attribute.KeyValue, 0, 5)
	attrs = append(attrs, rpcSystem, successKey.Bool(err == nil))

	if provider != "" {
		attrs = append(attrs, semconv.RPCService(provider))
	}
	if function != "" {
		attrs = append(attrs, semconv.RPCMethod(function))
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		attrs = append(attrs, statusCodeKey.Int64(int64(sc.StatusCode())))
	}

	rpcDuration.Record(ctx, duration.Microseconds(), append(options, api.WithAttributeSet(attribute.NewSet(attrs...)))...)
}
