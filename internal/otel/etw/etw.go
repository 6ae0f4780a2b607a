// This package maps OpenTelemetry spans onto ETW events and manages the lifetime of the
// ETW provider registration used to write them.
//
// Spans are encoded into a three part event, loosely following the Common Schema used
// by the [.NET OTel Geneva] exporter:
//   - Part A: envelope and identity (schema version, time, service, trace and span IDs)
//   - Part B: span semantics (name, kind, status, timing)
//   - Part C: span attributes, flattened to strings
//
// The OS event tracing subsystem is accessed via the [Native] interface. On Windows,
// [DefaultNative] is backed by [github.com/Microsoft/go-winio/pkg/etw]; the [Recorder]
// keeps events in memory instead.
//
// [.NET OTel Geneva]: https://github.com/open-telemetry/opentelemetry-dotnet-contrib/tree/main/src/OpenTelemetry.Exporter.Geneva
package etw

import (
	"fmt"

	"github.com/Microsoft/go-winio/pkg/guid"
)

// Level is the ETW event severity.
//
// Values match [github.com/Microsoft/go-winio/pkg/etw.Level], which is only available on Windows.
type Level uint8

const (
	LevelAlways Level = iota
	LevelCritical
	LevelError
	LevelWarning
	LevelInfo
	LevelVerbose
)

func (l Level) String() string {
	switch l {
	case LevelAlways:
		return "always"
	case LevelCritical:
		return "critical"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelVerbose:
		return "verbose"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// ParseLevel converts a level name (as returned by [Level.String]) back into a [Level].
func ParseLevel(s string) (Level, error) {
	for l := LevelAlways; l <= LevelVerbose; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown ETW level %q", s)
}

// KeywordSpan is the ETW keyword bit set on all span events.
const KeywordSpan uint64 = 0x1

// Descriptor holds the per-event ETW options.
type Descriptor struct {
	Level   Level
	Keyword uint64

	// ActivityID and RelatedActivityID are omitted if they are the zero GUID.
	ActivityID        guid.GUID
	RelatedActivityID guid.GUID
}
