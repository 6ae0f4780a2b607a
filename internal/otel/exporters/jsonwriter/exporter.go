// This package provides an exporter that writes spans as newline-delimited JSON, using the
// same three part encoding as the ETW exporter.
//
// It is used where ETW is not available, and to inspect the events that would be written
// to ETW.
package jsonwriter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/blang/semver/v4"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

var errNilWriter = errors.New("nil writer")

// Exporter writes one JSON object per span.
//
// Writes are serialized, so the output is never interleaved.
type Exporter struct {
	mu sync.Mutex
	w  io.Writer
	j  *json.Encoder
	c  io.Closer // closed on shutdown, if set

	version string
	rsc     atomic.Pointer[otetw.Resource]
}

var _ etwotel.SpanSink = (*Exporter)(nil)

type Option func(*Exporter) error

// WithSchemaVersion overrides the Part A schema version written with every event.
// The version must be a valid semantic version.
func WithSchemaVersion(v string) Option {
	return func(e *Exporter) error {
		if _, err := semver.Parse(v); err != nil {
			return fmt.Errorf("invalid event schema version %q: %w", v, err)
		}
		e.version = v
		return nil
	}
}

// New returns an exporter that writes to w.
// w is not closed when the exporter is shutdown.
func New(w io.Writer, opts ...Option) (*Exporter, error) {
	if w == nil {
		return nil, errNilWriter
	}
	j := json.NewEncoder(w)
	j.SetEscapeHTML(false)
	j.SetIndent("", "")

	e := &Exporter{
		w:       w,
		j:       j,
		version: otetw.SchemaVersion,
	}
	for _, o := range opts {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewWithCloser is the same as [New], but w is closed when the exporter is shutdown.
func NewWithCloser(w io.WriteCloser, opts ...Option) (*Exporter, error) {
	e, err := New(w, opts...)
	if err != nil {
		return nil, err
	}
	e.c = w
	return e, nil
}

func (e *Exporter) ExportSpans(ctx context.Context, spans []tracesdk.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.j == nil {
		return fmt.Errorf("export spans: %w", etwotel.ErrClosed)
	}

	var first error
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev := otetw.Encode(span, e.resource(span))
		ev.PartA.Version = e.version
		if err := e.j.Encode(ev); err != nil {
			err = fmt.Errorf("%w: span %s: %w", etwotel.ErrSpanExport, span.Name(), err)
			if first == nil {
				first = err
				continue
			}
			log.G(ctx).WithError(err).Debug("dropped span export error")
		}
	}
	return first
}

func (e *Exporter) resource(span tracesdk.ReadOnlySpan) otetw.Resource {
	if r := e.rsc.Load(); r != nil {
		return *r
	}
	r := otetw.NewResource(span.Resource())
	if !e.rsc.CompareAndSwap(nil, &r) {
		return *e.rsc.Load()
	}
	return r
}

func (e *Exporter) SetResource(rsc *resource.Resource) {
	r := otetw.NewResource(rsc)
	e.rsc.Store(&r)
}

// ForceFlush flushes w, if it supports flushing.
func (e *Exporter) ForceFlush(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if f, ok := e.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.j == nil {
		return fmt.Errorf("shutdown JSON exporter: %w", etwotel.ErrClosed)
	}
	e.j = nil

	var err error
	if f, ok := e.w.(interface{ Flush() error }); ok {
		err = f.Flush()
	}
	if e.c != nil {
		if cerr := e.c.Close(); err == nil {
			err = cerr
		}
	}
	log.G(ctx).WithError(err).Debug("shutdown JSON span exporter")
	return err
}
