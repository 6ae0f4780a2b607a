package etw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

// ErrLevelMismatch is returned when the configured ETW level for spans with an Error status is less
// severe than the level for nominal spans.
var ErrLevelMismatch = errors.New("error span ETW level is less severe than span level")

// Exporter writes spans to an ETW provider.
//
// Exports may run concurrently, but [Exporter.Shutdown] waits for all in-progress exports.
// Span events and links are ignored.
type Exporter struct {
	registry *otetw.Registry
	// registerNew is set if [New] should register newProvider
	registerNew bool
	newProvider string

	// mu guards handle; exports hold a read lock
	mu     sync.RWMutex
	handle *otetw.Handle
	owned  bool // if the handle was registered by (and should be released by) the exporter

	provider string // handle description, for logging

	setActivityID bool // set the (related) activity ID on the ETW event
	level         otetw.Level
	errorLevel    otetw.Level
	keyword       uint64
	version       string

	// the resource is captured from the first exported span and is not expected to change
	rsc atomic.Pointer[otetw.Resource]
}

var _ etwotel.SpanSink = (*Exporter)(nil)

// New returns an exporter that writes spans to ETW.
//
// Either [WithNewETWProvider] or [WithExistingETWProvider] must be specified.
func New(opts ...Option) (*Exporter, error) {
	// C++ exporter writes as LevelAlways, .NET (Geneva) writes as LevelVerbose.
	// stick to prior (open census) behavior and use Info and Error
	e := &Exporter{
		level:      otetw.LevelInfo,
		errorLevel: otetw.LevelError,
		keyword:    otetw.KeywordSpan,
		version:    otetw.SchemaVersion,
	}

	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}

	// higher numeric levels are less severe
	if e.errorLevel > e.level {
		return nil, fmt.Errorf("%w: error level (%v) is less severe than span level (%v)", ErrLevelMismatch, e.errorLevel, e.level)
	}

	if e.registerNew {
		if e.handle != nil {
			return nil, errors.New("cannot specify both a new and an existing ETW provider")
		}
		if e.registry == nil {
			e.registry = otetw.NewRegistry(nil)
		}

		h, err := e.registry.Register(e.newProvider)
		if err != nil {
			return nil, err
		}
		e.handle = h
		e.owned = true
	}

	if e.handle == nil {
		return nil, etwotel.ErrNoETWProvider
	}
	e.provider = e.handle.String()

	log.L.WithFields(logrus.Fields{
		"provider":   e.provider,
		"owned":      e.owned,
		"level":      e.level.String(),
		"errorLevel": e.errorLevel.String(),
	}).Debug("created ETW span exporter")
	return e, nil
}

// Provider returns the name and GUID of the ETW provider spans are written to.
func (e *Exporter) Provider() string { return e.provider }

// based on:
//https://github.com/open-telemetry/opentelemetry-cpp/blob/7cb7654552d68936d70986bc2ee67f3cc3e0b469/exporters/etw/include/opentelemetry/exporters/etw/etw_tracer.h#L235

// ExportSpans writes each span as an ETW event.
//
// Spans whose level and keyword are not enabled by any trace session are skipped.
// A span that fails to export does not prevent the remaining spans from being written; the
// first failure is returned, wrapped with [etwotel.ErrSpanExport].
func (e *Exporter) ExportSpans(ctx context.Context, spans []tracesdk.ReadOnlySpan) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.handle == nil {
		return fmt.Errorf("export spans: %w", etwotel.ErrClosed)
	}

	var (
		first  error
		failed int
	)
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.export(span); err != nil {
			failed++
			if first == nil {
				first = err
				continue
			}
			log.G(ctx).WithError(err).Debug("dropped span export error")
		}
	}

	if failed > 1 {
		log.G(ctx).WithFields(logrus.Fields{
			"provider": e.provider,
			"failed":   failed,
			"spans":    len(spans),
		}).Debug("failed to export spans")
	}
	return first
}

// export writes a single span. e.mu must be held.
func (e *Exporter) export(span tracesdk.ReadOnlySpan) error {
	lvl := e.level
	if span.Status().Code == codes.Error {
		lvl = e.errorLevel
	}
	if !e.handle.IsEnabled(lvl, e.keyword) {
		return nil
	}

	ev := otetw.Encode(span, e.resource(span))
	ev.PartA.Version = e.version

	d := otetw.Descriptor{
		Level:   lvl,
		Keyword: e.keyword,
	}
	if e.setActivityID {
		d.ActivityID = otetw.SpanIDToActivityID(span.SpanContext().SpanID())
		d.RelatedActivityID = otetw.SpanIDToActivityID(span.Parent().SpanID())
	}

	if err := e.handle.Write(d, ev); err != nil {
		sc := span.SpanContext()
		return fmt.Errorf("%w: span %s (%s): %w", etwotel.ErrSpanExport,
			span.Name(), spanContextString(sc.TraceID(), sc.SpanID(), span.Parent().SpanID()), err)
	}
	return nil
}

func (e *Exporter) resource(span tracesdk.ReadOnlySpan) otetw.Resource {
	if r := e.rsc.Load(); r != nil {
		return *r
	}

	r := otetw.NewResource(span.Resource())
	if !e.rsc.CompareAndSwap(nil, &r) {
		// another export (or SetResource) got there first
		return *e.rsc.Load()
	}
	return r
}

// SetResource replaces the resource used for Part A of all subsequent events.
func (e *Exporter) SetResource(rsc *resource.Resource) {
	r := otetw.NewResource(rsc)
	e.rsc.Store(&r)
}

// ForceFlush does nothing, since events are written synchronously.
func (e *Exporter) ForceFlush(context.Context) error { return nil }

// Shutdown waits for in-progress exports, and then releases the ETW provider if it was
// registered by the exporter.
//
// Shutdown returns [etwotel.ErrClosed] if the exporter was already shutdown.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return fmt.Errorf("shutdown ETW exporter: %w", etwotel.ErrClosed)
	}
	h := e.handle
	e.handle = nil

	entry := log.G(ctx).WithField("provider", e.provider)
	if !e.owned {
		entry.Debug("shutdown ETW span exporter")
		return nil
	}

	if err := e.registry.Unregister(h); err != nil {
		return fmt.Errorf("shutdown ETW exporter: %w", err)
	}
	entry.Debug("shutdown ETW span exporter and released provider")
	return nil
}

// simple string format for a traceID/spanID/parentSpanID triple for use in error strings
func spanContextString(tID trace.TraceID, sID, psID trace.SpanID) string {
	return tID.String() + "-" + sID.String() + "-" + psID.String()
}
