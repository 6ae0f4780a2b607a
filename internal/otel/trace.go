package otel

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var WithClientSpanKind = trace.WithSpanKind(trace.SpanKindClient)

func SetSpanStatusAndEnd(span trace.Span, err error, opts ...trace.SpanEndOption) {
	SetSpanStatus(span, err)
	span.End(opts...)
}

// SetSpanStatus sets the span status to [codes.Ok] if err is nil, otherwise it records
// err and sets the status to [codes.Error].
func SetSpanStatus(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// StartSpan wraps "go.opentelemetry.io/otel/trace".Tracer.Start using the repo-wide tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer().Start(ctx, name, opts...)
}

// Attribute creates an [attribute.KeyValue] from an arbitrary value.
//
// Types that do not map to an OTel attribute type are formatted as strings.
func Attribute(k string, v interface{}) attribute.KeyValue {
	if v == nil {
		return attribute.String(k, "<nil>")
	}

	switch typed := v.(type) {
	case bool:
		return attribute.Bool(k, typed)
	case []bool:
		return attribute.BoolSlice(k, typed)
	case int:
		return attribute.Int(k, typed)
	case []int:
		return attribute.IntSlice(k, typed)
	case int32:
		return attribute.Int64(k, int64(typed))
	case uint32:
		return attribute.Int64(k, int64(typed))
	case int64:
		return attribute.Int64(k, typed)
	case []int64:
		return attribute.Int64Slice(k, typed)
	case float32:
		return attribute.Float64(k, float64(typed))
	case float64:
		return attribute.Float64(k, typed)
	case []float64:
		return attribute.Float64Slice(k, typed)
	case string:
		return attribute.String(k, typed)
	case []string:
		return attribute.StringSlice(k, typed)
	case error:
		return attribute.String(k, typed.Error())
	}

	if stringer, ok := v.(fmt.Stringer); ok {
		return attribute.Stringer(k, stringer)
	}
	if b, err := json.Marshal(v); b != nil && err == nil {
		return attribute.String(k, string(b))
	}
	return attribute.String(k, fmt.Sprintf("%v", v))
}
