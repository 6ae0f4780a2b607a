// Package etwtrace attaches an ETW span export pipeline to an OpenTelemetry TracerProvider.
//
// A pipeline is a [spanprocessor.Reentrant] span processor exporting synchronously to either an
// ETW provider ([Attach]) or newline-delimited JSON ([AttachJSON]):
//
//	p, err := etwtrace.Attach("Microsoft.Virtualization.Example")
//	if err != nil {
//		return err
//	}
//	tp := tracesdk.NewTracerProvider(p.Option())
//	defer tp.Shutdown(ctx)
package etwtrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
	etwexporter "github.com/Microsoft/otel-etw-trace/internal/otel/exporters/etw"
	"github.com/Microsoft/otel-etw-trace/internal/otel/exporters/jsonwriter"
	"github.com/Microsoft/otel-etw-trace/internal/otel/spanprocessor"
)

// Pipeline is a span processor and the sink it exports to.
type Pipeline struct {
	processor *spanprocessor.Reentrant
	sink      string
}

// Option returns the [tracesdk.TracerProviderOption] that registers the pipeline's span processor.
func (p *Pipeline) Option() tracesdk.TracerProviderOption {
	return tracesdk.WithSpanProcessor(p.processor)
}

// Processor returns the pipeline's span processor.
func (p *Pipeline) Processor() *spanprocessor.Reentrant { return p.processor }

// Sink describes where spans are exported to (eg, the ETW provider name and GUID).
func (p *Pipeline) Sink() string { return p.sink }

// Stats returns the processor's span outcome counts.
func (p *Pipeline) Stats() spanprocessor.Stats { return p.processor.Stats() }

// Shutdown shuts down the pipeline, and waits until the sink has been released or ctx is done.
//
// Shutting down the TracerProvider the pipeline is attached to also shuts the pipeline down.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	if err := p.processor.Shutdown(ctx); err != nil {
		return err
	}
	return p.processor.Wait(ctx)
}

type Option func(*config) error

type config struct {
	native      otetw.Native
	testMode    bool
	exporter    []etwexporter.Option
	json        []jsonwriter.Option
	rsc         *resource.Resource
	retry       backoff.BackOff
	closeWriter bool
}

// WithExporterOptions passes options through to the ETW exporter.
func WithExporterOptions(opts ...etwexporter.Option) Option {
	return func(c *config) error {
		c.exporter = append(c.exporter, opts...)
		return nil
	}
}

// WithJSONOptions passes options through to the JSON exporter used by [AttachJSON].
func WithJSONOptions(opts ...jsonwriter.Option) Option {
	return func(c *config) error {
		c.json = append(c.json, opts...)
		return nil
	}
}

// WithResource sets the resource used to describe the service in exported events.
//
// Otherwise, the resource of the first exported span is used.
func WithResource(rsc *resource.Resource) Option {
	return func(c *config) error {
		if rsc == nil {
			return errors.New("nil resource")
		}
		c.rsc = rsc
		return nil
	}
}

// WithNative registers the ETW provider with n instead of the platform's ETW implementation.
func WithNative(n otetw.Native) Option {
	return func(c *config) error {
		c.native = n
		return nil
	}
}

// WithTestMode exports spans regardless of whether a trace session is listening.
func WithTestMode() Option {
	return func(c *config) error {
		c.testMode = true
		return nil
	}
}

// WithRegisterRetry retries registering the ETW provider according to b.
//
// Only failures that may be transient are retried, such as the provider name still being held
// by a pipeline that is shutting down.
func WithRegisterRetry(b backoff.BackOff) Option {
	return func(c *config) error {
		c.retry = b
		return nil
	}
}

// WithCloseWriter closes the writer passed to [AttachJSON] when the pipeline is shutdown.
func WithCloseWriter() Option {
	return func(c *config) error {
		c.closeWriter = true
		return nil
	}
}

func newConfig(opts []Option) (*config, error) {
	c := &config{}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Attach registers the ETW provider name and returns a pipeline that exports spans to it.
func Attach(name string, opts ...Option) (*Pipeline, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	var regOpts []otetw.RegistryOption
	if c.testMode {
		regOpts = append(regOpts, otetw.WithTestMode())
	}
	registry := otetw.NewRegistry(c.native, regOpts...)

	newExporter := func() (*etwexporter.Exporter, error) {
		e, err := etwexporter.New(append([]etwexporter.Option{
			etwexporter.WithNewETWProvider(name),
			etwexporter.WithRegistry(registry),
		}, c.exporter...)...)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return e, err
	}

	var exp *etwexporter.Exporter
	if c.retry == nil {
		exp, err = newExporter()
		var perr *backoff.PermanentError
		if errors.As(err, &perr) {
			err = perr.Err
		}
	} else {
		c.retry.Reset()
		exp, err = backoff.RetryNotifyWithData(newExporter, c.retry, func(err error, d time.Duration) {
			log.L.WithFields(logrus.Fields{
				logrus.ErrorKey: err,
				"provider":      name,
				"retry":         d.String(),
			}).Debug("retrying ETW provider registration")
		})
	}
	if err != nil {
		return nil, fmt.Errorf("attach ETW pipeline: %w", err)
	}

	p, err := newPipeline(exp, exp.Provider(), c)
	if err != nil {
		_ = exp.Shutdown(context.Background())
		return nil, err
	}
	return p, nil
}

// AttachJSON returns a pipeline that writes spans to w as newline-delimited JSON.
func AttachJSON(w io.Writer, opts ...Option) (*Pipeline, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	var sink *jsonwriter.Exporter
	if wc, ok := w.(io.WriteCloser); ok && c.closeWriter {
		sink, err = jsonwriter.NewWithCloser(wc, c.json...)
	} else {
		sink, err = jsonwriter.New(w, c.json...)
	}
	if err != nil {
		return nil, fmt.Errorf("attach JSON pipeline: %w", err)
	}
	return newPipeline(sink, "json", c)
}

func newPipeline(sink etwotel.SpanSink, desc string, c *config) (*Pipeline, error) {
	sp, err := spanprocessor.NewReentrant(sink)
	if err != nil {
		return nil, err
	}
	if c.rsc != nil {
		sp.SetResource(c.rsc)
	}

	log.L.WithField("sink", desc).Info("attached span export pipeline")
	return &Pipeline{
		processor: sp,
		sink:      desc,
	}, nil
}

// retryable returns true if registration failed for reasons that may resolve themselves.
func retryable(err error) bool {
	var rerr *otetw.RegistrationError
	if !errors.As(err, &rerr) {
		// configuration errors
		return false
	}
	for _, e := range []error{
		otetw.ErrInvalidProviderName,
		otetw.ErrNotSupported,
		otetw.ErrAlreadyRegistered,
	} {
		if errors.Is(err, e) {
			return false
		}
	}
	return true
}
