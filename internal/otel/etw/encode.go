package etw

import (
	"encoding/hex"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	"github.com/Microsoft/otel-etw-trace/internal/option"
)

// Encode converts a span into an [Event].
//
// Encode does not fail: unknown span kinds are encoded as [KindInternal], unknown status codes
// as [StatusUnset], and a negative duration (from clock skew) as zero.
// The output depends only on the inputs, so encoding the same span twice yields identical events.
func Encode(span tracesdk.ReadOnlySpan, rsc Resource) *Event {
	sc := span.SpanContext()
	start, end := span.StartTime(), span.EndTime()
	status := span.Status()

	ev := &Event{
		PartA: PartA{
			Version:        SchemaVersion,
			Time:           formatTime(start),
			ServiceName:    rsc.ServiceName,
			ServiceVersion: rsc.ServiceVersion,
			Role:           rsc.ServiceNamespace,
			RoleInstance:   rsc.ServiceInstanceID,
			TraceID:        traceIDString(sc.TraceID()),
			SpanID:         spanIDString(sc.SpanID()),
		},
		PartB: PartB{
			Name:              span.Name(),
			Kind:              kindString(span.SpanKind()),
			Status:            statusString(status.Code),
			StartTime:         formatTime(start),
			EndTime:           formatTime(end),
			DurationNs:        duration(start, end),
			DroppedAttributes: span.DroppedAttributes(),
		},
		PartC: attributesToPartC(span.Attributes()),
	}

	if p := span.Parent().SpanID(); p.IsValid() {
		ev.PartA.ParentID = option.Some(spanIDString(p))
	}
	if status.Code == codes.Error {
		// the description is only meaningful for errors
		ev.PartB.StatusMessage = option.Some(status.Description)
	}
	return ev
}

// technically ISO 8601 and RFC 3339 are not equivalent, but ...
func formatTime(t time.Time) string { return log.FormatTime(t) }

// ids are always lowercase and fixed width, even if they are not valid (all zero)

func traceIDString(id trace.TraceID) string { return hex.EncodeToString(id[:]) }

func spanIDString(id trace.SpanID) string { return hex.EncodeToString(id[:]) }

// duration returns the nanoseconds between start and end, or zero if end is before start.
func duration(start, end time.Time) uint64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return uint64(d.Nanoseconds())
}

func kindString(k trace.SpanKind) string {
	switch k {
	case trace.SpanKindServer:
		return KindServer
	case trace.SpanKindClient:
		return KindClient
	case trace.SpanKindProducer:
		return KindProducer
	case trace.SpanKindConsumer:
		return KindConsumer
	default:
		// coerce unspecified (and future) kinds to internal
		return KindInternal
	}
}

func statusString(c codes.Code) string {
	switch c {
	case codes.Ok:
		return StatusOK
	case codes.Error:
		return StatusError
	default:
		return StatusUnset
	}
}

// attributesToPartC flattens attributes into a map.
// Later attributes overwrite earlier ones with the same key.
func attributesToPartC(attrs []attribute.KeyValue) PartC {
	c := make(PartC, len(attrs))
	for _, kv := range attrs {
		c[string(kv.Key)] = valueString(kv.Value)
	}
	return c
}

func valueString(v attribute.Value) string {
	switch v.Type() {
	case attribute.STRING:
		return v.AsString()
	case attribute.INT64:
		return strconv.FormatInt(v.AsInt64(), 10)
	case attribute.BOOL:
		return strconv.FormatBool(v.AsBool())
	case attribute.FLOAT64:
		// shortest representation that round-trips to the same float64
		return strconv.FormatFloat(v.AsFloat64(), 'g', -1, 64)
	default:
		// slices are emitted as JSON arrays; invalid values as "unknown"
		return v.Emit()
	}
}
