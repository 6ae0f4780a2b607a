package etw

// ETW field and struct names for the span event.
// They match the JSON field names of [PartA] and [PartB].

const (
	EventName = "Span" // ETW event name for Span

	fieldPartA = "PartA"
	fieldPartB = "PartB"

	fieldVersion        = "ver"
	fieldTime           = "time"
	fieldServiceName    = "name"
	fieldServiceVersion = "sv"
	fieldRole           = "role"
	fieldRoleInstance   = "roleInstance"
	fieldTraceID        = "traceId"
	fieldSpanID         = "spanId"
	fieldParentID       = "parentId"

	fieldName              = "name"
	fieldKind              = "kind"
	fieldStatus            = "status"
	fieldStatusMessage     = "statusMessage"
	fieldStartTime         = "startTime"
	fieldEndTime           = "endTime"
	fieldDuration          = "durationNs"
	fieldDroppedAttributes = "droppedAttributes"
)
