package etw

import (
	"sort"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/Microsoft/otel-etw-trace/internal/option"
)

const (
	// SchemaVersion is the default value of [PartA.Version].
	SchemaVersion = "1.0.0"

	// DefaultServiceName is used when the resource does not specify a service name.
	DefaultServiceName = "unknown_service"
)

// Span kind strings.
const (
	KindInternal = "internal"
	KindServer   = "server"
	KindClient   = "client"
	KindProducer = "producer"
	KindConsumer = "consumer"
)

// Span status strings.
const (
	StatusUnset = "unset"
	StatusOK    = "ok"
	StatusError = "error"
)

// Event is the ETW representation of a single span.
type Event struct {
	PartA PartA `json:"PartA"`
	PartB PartB `json:"PartB"`
	PartC PartC `json:"PartC"`
}

// PartA holds the event envelope: schema, time, and the service and span identity.
type PartA struct {
	Version        string `json:"ver"`
	Time           string `json:"time"`
	ServiceName    string `json:"name"`
	ServiceVersion string `json:"sv,omitempty"`
	// Role and RoleInstance are the service namespace and instance ID.
	Role         string                `json:"role,omitempty"`
	RoleInstance string                `json:"roleInstance,omitempty"`
	TraceID      string                `json:"traceId"`
	SpanID       string                `json:"spanId"`
	ParentID     option.Option[string] `json:"parentId,omitempty"`
}

// PartB holds the span's operation semantics.
type PartB struct {
	Name              string                `json:"name"`
	Kind              string                `json:"kind"`
	Status            string                `json:"status"`
	StatusMessage     option.Option[string] `json:"statusMessage,omitempty"`
	StartTime         string                `json:"startTime"`
	EndTime           string                `json:"endTime"`
	DurationNs        uint64                `json:"durationNs"`
	DroppedAttributes int                   `json:"droppedAttributes,omitempty"`
}

// PartC holds the span attributes as strings, keyed by attribute name.
type PartC map[string]string

// Keys returns the attribute names in sorted order.
func (c PartC) Keys() []string {
	ks := make([]string, 0, len(c))
	for k := range c {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// IsError returns true if the span had an error status.
func (ev *Event) IsError() bool {
	return ev.PartB.Status == StatusError
}

// Level returns errLevel if the span had an error status, and level otherwise.
func (ev *Event) Level(level, errLevel Level) Level {
	if ev.IsError() {
		return errLevel
	}
	return level
}

// Resource is the subset of an OTel resource needed to build [PartA].
type Resource struct {
	ServiceName       string
	ServiceNamespace  string
	ServiceInstanceID string
	ServiceVersion    string

	// Extra holds all other resource attributes.
	Extra map[string]string
}

// NewResource extracts the service attributes from rsc.
//
// The service name is [DefaultServiceName] only if rsc has no "service.name" attribute.
func NewResource(rsc *resource.Resource) Resource {
	r := Resource{
		ServiceName: DefaultServiceName,
		Extra:       make(map[string]string),
	}

	iter := rsc.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		v := valueString(kv.Value)
		switch kv.Key {
		case semconv.ServiceNameKey:
			r.ServiceName = v
		case semconv.ServiceNamespaceKey:
			r.ServiceNamespace = v
		case semconv.ServiceInstanceIDKey:
			r.ServiceInstanceID = v
		case semconv.ServiceVersionKey:
			r.ServiceVersion = v
		default:
			r.Extra[string(kv.Key)] = v
		}
	}
	return r
}
