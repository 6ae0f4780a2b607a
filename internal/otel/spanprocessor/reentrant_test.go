package spanprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"golang.org/x/sync/errgroup"

	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
	etwexporter "github.com/Microsoft/otel-etw-trace/internal/otel/exporters/etw"
)

// testSink records exported spans and runs hooks during exports.
type testSink struct {
	mu        sync.Mutex
	names     []string
	rsc       *resource.Resource
	shutdowns int
	flushes   int

	active    atomic.Int32
	maxActive atomic.Int32

	onExport func(tracesdk.ReadOnlySpan)
	err      error
}

var _ etwotel.SpanSink = &testSink{}

func (s *testSink) ExportSpans(_ context.Context, spans []tracesdk.ReadOnlySpan) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	for _, span := range spans {
		if s.onExport != nil {
			s.onExport(span)
		}
		s.mu.Lock()
		s.names = append(s.names, span.Name())
		s.mu.Unlock()
	}
	return s.err
}

func (s *testSink) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
	return nil
}

func (s *testSink) ForceFlush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *testSink) SetResource(rsc *resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rsc = rsc
}

func (s *testSink) exported() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *testSink) shutdownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

func span(name string) tracesdk.ReadOnlySpan {
	return tracetest.SpanStub{Name: name}.Snapshot()
}

func newTestProcessor(t *testing.T, sink etwotel.SpanSink) *Reentrant {
	t.Helper()
	p, err := NewReentrant(sink)
	if err != nil {
		t.Fatalf("create processor: %v", err)
	}
	return p
}

// setErrorHandler replaces the global OTel error handler for the duration of the test.
func setErrorHandler(t *testing.T, f func(error)) {
	t.Helper()
	old := otel.GetErrorHandler()
	otel.SetErrorHandler(otel.ErrorHandlerFunc(f))
	t.Cleanup(func() { otel.SetErrorHandler(old) })
}

func TestNewReentrantNilSink(t *testing.T) {
	if _, err := NewReentrant(nil); !errors.Is(err, errNilSink) {
		t.Fatalf("got error %v, wanted %v", err, errNilSink)
	}
}

func TestOnEnd(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	for i := 0; i < 3; i++ {
		p.OnEnd(span(fmt.Sprintf("span.%d", i)))
	}

	if got := strings.Join(sink.exported(), ","); got != "span.0,span.1,span.2" {
		t.Fatalf("got spans %q, wanted %q", got, "span.0,span.1,span.2")
	}
	if st := p.Stats(); st != (Stats{Exported: 3}) {
		t.Fatalf("got stats %+v, wanted 3 exported", st)
	}
}

func TestReentrantSpansDropped(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)
	sink.onExport = func(s tracesdk.ReadOnlySpan) {
		if s.Name() == "outer" {
			// the sink creating and ending its own span
			p.OnEnd(span("inner"))
		}
	}

	p.OnEnd(span("outer"))

	if got := strings.Join(sink.exported(), ","); got != "outer" {
		t.Fatalf("got spans %q, wanted %q", got, "outer")
	}
	if st := p.Stats(); st != (Stats{Exported: 1, Reentrant: 1}) {
		t.Fatalf("got stats %+v, wanted 1 exported and 1 reentrant", st)
	}

	// the processor is idle again
	p.OnEnd(span("after"))
	if n := len(sink.exported()); n != 2 {
		t.Fatalf("got %d spans, wanted 2", n)
	}
}

func TestConcurrentOnEnd(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)
	sink.onExport = func(tracesdk.ReadOnlySpan) { time.Sleep(time.Microsecond) }

	const (
		workers = 8
		spans   = 100
	)
	g := errgroup.Group{}
	for i := 0; i < workers; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < spans; j++ {
				p.OnEnd(span(fmt.Sprintf("span.%d.%d", i, j)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if m := sink.maxActive.Load(); m != 1 {
		t.Fatalf("got %d concurrent exports, wanted 1", m)
	}
	st := p.Stats()
	if st.Exported == 0 {
		t.Fatalf("no spans exported")
	}
	if total := st.Exported + st.Reentrant + st.Contention + st.Failed; total != workers*spans {
		t.Fatalf("got %d span outcomes (%+v), wanted %d", total, st, workers*spans)
	}
	if n := uint64(len(sink.exported())); n != st.Exported {
		t.Fatalf("sink got %d spans, wanted %d", n, st.Exported)
	}
}

func TestExportError(t *testing.T) {
	errExport := errors.New("export failed")
	sink := &testSink{err: errExport}
	p := newTestProcessor(t, sink)

	var handled []error
	setErrorHandler(t, func(err error) { handled = append(handled, err) })

	p.OnEnd(span("a"))

	if st := p.Stats(); st != (Stats{Failed: 1}) {
		t.Fatalf("got stats %+v, wanted 1 failed", st)
	}
	if len(handled) != 1 || !errors.Is(handled[0], errExport) {
		t.Fatalf("got handled errors %v, wanted %v", handled, errExport)
	}
}

func TestLockContention(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	p.mu.Lock()
	p.OnEnd(span("a"))
	p.mu.Unlock()

	if st := p.Stats(); st != (Stats{Contention: 1}) {
		t.Fatalf("got stats %+v, wanted 1 contention", st)
	}
	if n := len(sink.exported()); n != 0 {
		t.Fatalf("got %d spans, wanted 0", n)
	}

	p.OnEnd(span("b"))
	if n := len(sink.exported()); n != 1 {
		t.Fatalf("got %d spans, wanted 1", n)
	}
}

func TestForceFlush(t *testing.T) {
	ctx := context.Background()
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	if err := p.ForceFlush(ctx); err != nil {
		t.Fatalf("force flush: %v", err)
	}
	if sink.flushes != 1 {
		t.Fatalf("got %d flushes, wanted 1", sink.flushes)
	}

	sink.onExport = func(tracesdk.ReadOnlySpan) {
		// would deadlock if forwarded
		if err := p.ForceFlush(ctx); err != nil {
			t.Errorf("force flush during export: %v", err)
		}
	}
	p.OnEnd(span("a"))
	if sink.flushes != 1 {
		t.Fatalf("got %d flushes, wanted 1", sink.flushes)
	}
}

func TestSetResourceDuringExport(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	rsc := resource.NewSchemaless(semconv.ServiceName("svc"))
	sink.onExport = func(tracesdk.ReadOnlySpan) {
		p.SetResource(rsc)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.OnEnd(span("a"))
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("set resource during export did not return")
	}

	sink.mu.Lock()
	got := sink.rsc
	sink.mu.Unlock()
	if got != rsc {
		t.Fatalf("got resource %v, wanted %v", got, rsc)
	}

	// the processor is idle again
	sink.onExport = nil
	p.OnEnd(span("b"))
	if got := strings.Join(sink.exported(), ","); got != "a,b" {
		t.Fatalf("got spans %q, wanted %q", got, "a,b")
	}
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	select {
	case <-p.Done():
	default:
		t.Fatalf("processor not done after shutdown")
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if n := sink.shutdownCount(); n != 1 {
		t.Fatalf("sink shutdown %d times, wanted 1", n)
	}

	p.OnEnd(span("late"))
	if n := len(sink.exported()); n != 0 {
		t.Fatalf("got %d spans after shutdown, wanted 0", n)
	}
	if err := p.ForceFlush(ctx); err != nil {
		t.Fatalf("force flush after shutdown: %v", err)
	}
}

func TestShutdownDuringExport(t *testing.T) {
	ctx := context.Background()
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	sink.onExport = func(tracesdk.ReadOnlySpan) {
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("shutdown during export: %v", err)
		}
		if n := sink.shutdownCount(); n != 0 {
			t.Errorf("sink shutdown during export")
		}
	}
	p.OnEnd(span("a"))

	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := sink.shutdownCount(); n != 1 {
		t.Fatalf("sink shutdown %d times, wanted 1", n)
	}
	if got := strings.Join(sink.exported(), ","); got != "a" {
		t.Fatalf("got spans %q, wanted %q", got, "a")
	}
}

func TestShutdownConcurrentExport(t *testing.T) {
	ctx := context.Background()
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	exporting := make(chan struct{})
	release := make(chan struct{})
	sink.onExport = func(tracesdk.ReadOnlySpan) {
		close(exporting)
		<-release
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.OnEnd(span("a"))
	}()
	<-exporting

	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if n := sink.shutdownCount(); n != 0 {
		t.Fatalf("sink shutdown during export")
	}

	close(release)
	<-done
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := sink.shutdownCount(); n != 1 {
		t.Fatalf("sink shutdown %d times, wanted 1", n)
	}
}

func TestSetResource(t *testing.T) {
	sink := &testSink{}
	p := newTestProcessor(t, sink)

	rsc := resource.NewSchemaless(semconv.ServiceName("svc"))
	p.SetResource(rsc)
	if sink.rsc != rsc {
		t.Fatalf("got resource %v, wanted %v", sink.rsc, rsc)
	}
}

// spans created while writing to ETW (eg, by instrumented code in the write path) are dropped
func TestReentrantETWExport(t *testing.T) {
	ctx := context.Background()
	rec := otetw.NewRecorder()
	exp, err := etwexporter.New(
		etwexporter.WithNewETWProvider("Microsoft.OTel.SpanProcessor.Test."+t.Name()),
		etwexporter.WithRegistry(otetw.NewRegistry(rec)),
	)
	if err != nil {
		t.Fatalf("create exporter: %v", err)
	}
	p := newTestProcessor(t, exp)

	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(p))
	tracer := tp.Tracer(t.Name())

	rec.OnWrite(func(ev *otetw.Event) {
		if ev.PartB.Name == "outer" {
			_, s := tracer.Start(ctx, "write")
			s.End()
		}
	})

	_, s := tracer.Start(ctx, "outer")
	s.SetStatus(codes.Error, "failed")
	s.End()

	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	evs := rec.Events()
	if len(evs) != 1 || evs[0].Event.PartB.Name != "outer" {
		t.Fatalf("got %d events, wanted only the outer span", len(evs))
	}
	if evs[0].Descriptor.Level != otetw.LevelError {
		t.Fatalf("got level %v, wanted %v", evs[0].Descriptor.Level, otetw.LevelError)
	}
	if st := p.Stats(); st != (Stats{Exported: 1, Reentrant: 1}) {
		t.Fatalf("got stats %+v, wanted 1 exported and 1 reentrant", st)
	}
	if rec.Active() != 0 {
		t.Fatalf("provider not released after shutdown")
	}
}
