// This package provides span processors that export spans synchronously.
package spanprocessor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	etwmetric "github.com/Microsoft/otel-etw-trace/internal/otel/metric"
	etwsync "github.com/Microsoft/otel-etw-trace/internal/sync"
)

// ErrLockContention is reported when a span ends while the sink is held by a flush or
// shutdown.
// The span is dropped.
var ErrLockContention = errors.New("span sink is busy")

var errNilSink = errors.New("nil span sink")

const (
	stateIdle int32 = iota
	stateExporting
)

const outcomeKey = attribute.Key("outcome")

var (
	outcomeExported   = api.WithAttributeSet(attribute.NewSet(outcomeKey.String("exported")))
	outcomeReentrant  = api.WithAttributeSet(attribute.NewSet(outcomeKey.String("reentrant")))
	outcomeContention = api.WithAttributeSet(attribute.NewSet(outcomeKey.String("contention")))
	outcomeFailed     = api.WithAttributeSet(attribute.NewSet(outcomeKey.String("failed")))
)

// Stats counts the outcomes of spans passed to [Reentrant.OnEnd].
type Stats struct {
	// Exported spans were written to the sink.
	Exported uint64
	// Reentrant spans ended while another span was being exported, and were dropped.
	Reentrant uint64
	// Contention spans were dropped because the sink was held by another call.
	Contention uint64
	// Failed spans were passed to the sink, which returned an error.
	Failed uint64
}

// Reentrant is a [tracesdk.SpanProcessor] that exports each span as it ends, on the calling
// goroutine.
//
// At most one span is exported at a time.
// Spans that end while an export is in progress are dropped, including spans created by the
// sink itself (eg, by instrumented code the sink calls into), which would otherwise recurse
// indefinitely.
type Reentrant struct {
	sink etwotel.SpanSink

	state atomic.Int32
	// mu serializes access to sink
	mu sync.Mutex

	closed  atomic.Bool
	pending atomic.Bool // sink shutdown is waiting for the in-progress export
	done    etwsync.Block

	exported   atomic.Uint64
	reentrant  atomic.Uint64
	contention atomic.Uint64
	failed     atomic.Uint64
	spans      api.Int64Counter
}

var _ tracesdk.SpanProcessor = (*Reentrant)(nil)

// NewReentrant returns a processor that exports spans to sink.
//
// The processor takes ownership of sink, and shuts it down when the processor is shutdown.
func NewReentrant(sink etwotel.SpanSink) (*Reentrant, error) {
	if sink == nil {
		return nil, errNilSink
	}
	return &Reentrant{
		sink: sink,
		done: etwsync.NewErrorBlock(),
		spans: etwmetric.Int64Counter("etwtrace.processor.spans",
			api.WithDescription("Spans handled by the span processor, by outcome"),
			api.WithUnit("{span}")),
	}, nil
}

// OnStart does nothing.
func (*Reentrant) OnStart(context.Context, tracesdk.ReadWriteSpan) {}

// OnEnd exports s, unless another export is in progress.
//
// Export failures are sent to the OTel error handler.
func (p *Reentrant) OnEnd(s tracesdk.ReadOnlySpan) {
	if p.closed.Load() {
		return
	}

	if !p.state.CompareAndSwap(stateIdle, stateExporting) {
		p.reentrant.Add(1)
		p.record(outcomeReentrant)
		return
	}
	defer p.release()

	if !p.mu.TryLock() {
		p.contention.Add(1)
		p.record(outcomeContention)
		log.L.WithError(ErrLockContention).Trace("dropped span")
		return
	}
	defer p.mu.Unlock()

	if err := p.sink.ExportSpans(context.Background(), []tracesdk.ReadOnlySpan{s}); err != nil {
		p.failed.Add(1)
		p.record(outcomeFailed)
		otel.Handle(err)
		return
	}
	p.exported.Add(1)
	p.record(outcomeExported)
}

func (p *Reentrant) record(o api.AddOption) {
	p.spans.Add(context.Background(), 1, o)
}

// release returns the processor to idle and performs any shutdown that was deferred while
// exporting.
func (p *Reentrant) release() {
	p.state.Store(stateIdle)
	p.tryShutdown(context.Background())
}

// tryShutdown shuts down the sink if a shutdown is pending and no export is in progress.
//
// Otherwise, the goroutine that is exporting will call tryShutdown when it is done.
func (p *Reentrant) tryShutdown(ctx context.Context) {
	for p.pending.Load() {
		if !p.state.CompareAndSwap(stateIdle, stateExporting) {
			return
		}
		if p.pending.Swap(false) {
			p.mu.Lock()
			err := p.sink.Shutdown(ctx)
			p.mu.Unlock()

			if err != nil {
				log.G(ctx).WithError(err).Warning("failed to shutdown span sink")
			} else {
				log.G(ctx).Debug("shutdown span sink")
			}
			p.done.Close(err)
		}
		p.state.Store(stateIdle)
	}
}

// ForceFlush flushes the sink.
//
// It returns immediately if a span is being exported, since the sink is in use.
func (p *Reentrant) ForceFlush(ctx context.Context) error {
	if p.state.Load() == stateExporting || p.closed.Load() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink.ForceFlush(ctx)
}

// Shutdown shuts down the sink and stops exporting spans.
//
// If a span is being exported, the sink is shutdown once that export completes, and Shutdown
// returns nil without waiting; [Reentrant.Done] is closed once the sink is shutdown.
// Only the first call has any effect.
func (p *Reentrant) Shutdown(ctx context.Context) error {
	if p.closed.Swap(true) {
		return nil
	}

	p.pending.Store(true)
	p.tryShutdown(ctx)

	if p.done.Closed() {
		return p.done.Err()
	}
	log.G(ctx).Debug("deferring span sink shutdown until export completes")
	return nil
}

// Done returns a channel that is closed once the sink has been shutdown.
func (p *Reentrant) Done() <-chan struct{} {
	return p.done.Done()
}

// Wait waits until the sink has been shutdown, and returns the sink's shutdown error.
func (p *Reentrant) Wait(ctx context.Context) error {
	return p.done.Wait(ctx)
}

// SetResource sets the resource the sink uses for subsequent spans.
//
// It does not take the sink lock, so it may be called while a span is being exported,
// including from within that export.
func (p *Reentrant) SetResource(rsc *resource.Resource) {
	p.sink.SetResource(rsc)
}

// Stats returns the span outcome counts so far.
func (p *Reentrant) Stats() Stats {
	return Stats{
		Exported:   p.exported.Load(),
		Reentrant:  p.reentrant.Load(),
		Contention: p.contention.Load(),
		Failed:     p.failed.Load(),
	}
}
