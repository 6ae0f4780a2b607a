//go:build windows

package etw

import (
	"errors"

	"github.com/Microsoft/go-winio/pkg/etw"
	"github.com/Microsoft/go-winio/pkg/guid"
	"golang.org/x/sys/windows"
)

type winNative struct{}

// DefaultNative returns the [Native] backed by TraceLogging providers.
func DefaultNative() Native { return winNative{} }

func (winNative) Register(name string) (Session, error) {
	p, err := etw.NewProviderWithOptions(name)
	if err != nil {
		return nil, err
	}
	return &winSession{p: p}, nil
}

type winSession struct {
	p *etw.Provider
}

var _ Session = &winSession{}

func (s *winSession) IsEnabled(level Level, keyword uint64) bool {
	return s.p.IsEnabledForLevelAndKeywords(etw.Level(level), keyword)
}

func (s *winSession) Write(d Descriptor, ev *Event) error {
	opts := make([]etw.EventOpt, 0, 4) // level, keyword, activity ID, related activity ID
	opts = append(opts, etw.WithLevel(etw.Level(d.Level)), etw.WithKeyword(d.Keyword))
	if d.ActivityID != (guid.GUID{}) {
		opts = append(opts, etw.WithActivityID(d.ActivityID))
	}
	if d.RelatedActivityID != (guid.GUID{}) {
		opts = append(opts, etw.WithRelatedActivityID(d.RelatedActivityID))
	}

	err := s.p.WriteEvent(EventName, opts, eventFields(ev))
	if err == nil {
		return nil
	}

	we := &WriteError{Provider: s.p.String(), Err: err}
	if e := windows.ERROR_SUCCESS; errors.As(err, &e) {
		we.Status = uint32(e)
	}
	return we
}

func (s *winSession) Close() error {
	return s.p.Close()
}

func eventFields(ev *Event) []etw.FieldOpt {
	a := make([]etw.FieldOpt, 0, 9)
	a = append(a,
		etw.StringField(fieldVersion, ev.PartA.Version),
		etw.StringField(fieldTime, ev.PartA.Time),
		etw.StringField(fieldServiceName, ev.PartA.ServiceName),
	)
	if ev.PartA.ServiceVersion != "" {
		a = append(a, etw.StringField(fieldServiceVersion, ev.PartA.ServiceVersion))
	}
	if ev.PartA.Role != "" {
		a = append(a, etw.StringField(fieldRole, ev.PartA.Role))
	}
	if ev.PartA.RoleInstance != "" {
		a = append(a, etw.StringField(fieldRoleInstance, ev.PartA.RoleInstance))
	}
	a = append(a,
		etw.StringField(fieldTraceID, ev.PartA.TraceID),
		etw.StringField(fieldSpanID, ev.PartA.SpanID),
	)
	if ev.PartA.ParentID != nil {
		a = append(a, etw.StringField(fieldParentID, *ev.PartA.ParentID))
	}

	b := make([]etw.FieldOpt, 0, 8)
	b = append(b,
		etw.StringField(fieldName, ev.PartB.Name),
		etw.StringField(fieldKind, ev.PartB.Kind),
		etw.StringField(fieldStatus, ev.PartB.Status),
	)
	if ev.PartB.StatusMessage != nil {
		b = append(b, etw.StringField(fieldStatusMessage, *ev.PartB.StatusMessage))
	}
	b = append(b,
		etw.StringField(fieldStartTime, ev.PartB.StartTime),
		etw.StringField(fieldEndTime, ev.PartB.EndTime),
		etw.Uint64Field(fieldDuration, ev.PartB.DurationNs),
	)
	if n := ev.PartB.DroppedAttributes; n > 0 {
		b = append(b, etw.IntField(fieldDroppedAttributes, n))
	}

	fields := make([]etw.FieldOpt, 0, 2+len(ev.PartC))
	fields = append(fields, etw.Struct(fieldPartA, a...), etw.Struct(fieldPartB, b...))
	// Part C is flattened into the top level of the event.
	// ETW will prefer the first definition if there a conflict with the part names.
	for _, k := range ev.PartC.Keys() {
		fields = append(fields, etw.StringField(k, ev.PartC[k]))
	}
	return fields
}
