package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
	etwexporter "github.com/Microsoft/otel-etw-trace/internal/otel/exporters/etw"
	otellogrus "github.com/Microsoft/otel-etw-trace/internal/otel/handlers/logrus"
	etwmetric "github.com/Microsoft/otel-etw-trace/internal/otel/metric"
	"github.com/Microsoft/otel-etw-trace/pkg/etwtrace"
)

const (
	providerFlagName    = "provider"
	backendFlagName     = "backend"
	spansFlagName       = "spans"
	concurrencyFlagName = "concurrency"
	errorEveryFlagName  = "error-every"
	jsonOutFlagName     = "json-out"
	reentrantFlagName   = "reentrant"
	activityIDFlagName  = "activity-id"
	levelFlagName       = "level"
	errorLevelFlagName  = "error-level"
)

// how long to retry registering the ETW provider for
const registerTimeout = 5 * time.Second

var emitCommand = &cli.Command{
	Name:  "emit",
	Usage: "emit spans through the configured backend",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    providerFlagName,
			Aliases: []string{"p"},
			Usage:   "ETW provider `name`",
		},
		&cli.StringFlag{
			Name:  backendFlagName,
			Usage: "span sink: " + backendETW + ", " + backendJSON + ", or " + backendMemory,
		},
		&cli.IntFlag{
			Name:    spansFlagName,
			Aliases: []string{"n"},
			Usage:   "number of spans to emit",
		},
		&cli.IntFlag{
			Name:    concurrencyFlagName,
			Aliases: []string{"c"},
			Usage:   "number of goroutines emitting spans",
		},
		&cli.IntFlag{
			Name:  errorEveryFlagName,
			Usage: "mark every `nth` span as failed",
		},
		&cli.PathFlag{
			Name:  jsonOutFlagName,
			Usage: "`file` for the " + backendJSON + " backend to write to",
		},
		&cli.BoolFlag{
			Name:  reentrantFlagName,
			Usage: "emit a span from within every export (" + backendMemory + " backend only)",
		},
		&cli.BoolFlag{
			Name:  activityIDFlagName,
			Usage: "set the ETW activity ID to the span ID",
		},
		&cli.StringFlag{
			Name:  levelFlagName,
			Usage: "ETW `level` for spans",
		},
		&cli.StringFlag{
			Name:  errorLevelFlagName,
			Usage: "ETW `level` for spans with an error status",
		},
	},
	Action: emit,
}

func applyEmitFlags(c *cli.Context, cfg *Config) error {
	if c.IsSet(providerFlagName) {
		cfg.Provider = c.String(providerFlagName)
	}
	if c.IsSet(backendFlagName) {
		cfg.Backend = c.String(backendFlagName)
	}
	if c.IsSet(spansFlagName) {
		cfg.Emit.Spans = c.Int(spansFlagName)
	}
	if c.IsSet(concurrencyFlagName) {
		cfg.Emit.Concurrency = c.Int(concurrencyFlagName)
	}
	if c.IsSet(errorEveryFlagName) {
		cfg.Emit.ErrorEvery = c.Int(errorEveryFlagName)
	}
	if c.IsSet(jsonOutFlagName) {
		cfg.JSONOut = c.Path(jsonOutFlagName)
	}
	if c.IsSet(reentrantFlagName) {
		cfg.Emit.Reentrant = c.Bool(reentrantFlagName)
	}
	if c.IsSet(activityIDFlagName) {
		cfg.ActivityID = c.Bool(activityIDFlagName)
	}
	if c.IsSet(levelFlagName) {
		cfg.Level = c.String(levelFlagName)
	}
	if c.IsSet(errorLevelFlagName) {
		cfg.ErrorLevel = c.String(errorLevelFlagName)
	}
	return cfg.validate()
}

func emit(c *cli.Context) error {
	ctx := c.Context
	cfg := state(c).cfg
	if err := applyEmitFlags(c, cfg); err != nil {
		return err
	}

	rsc := serviceResource(cfg)
	otel.SetErrorHandler(otellogrus.New(otellogrus.WithResource(rsc)))

	reader := metric.NewManualReader()
	shutdownMetrics, err := etwmetric.InitializeProvider(metric.WithReader(reader), metric.WithResource(rsc))
	if err != nil {
		return err
	}
	etwmetric.InitializeRuntimeInstruments()
	defer func() {
		if err := shutdownMetrics(ctx); err != nil {
			log.G(ctx).WithError(err).Warning("shutdown meter provider")
		}
	}()

	p, rec, err := newPipeline(ctx, cfg, rsc, c.App.Writer)
	if err != nil {
		return err
	}

	_, shutdown := etwotel.InitializeProvider(
		p.Option(),
		tracesdk.WithResource(rsc),
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
	)

	if rec != nil && cfg.Emit.Reentrant {
		rec.OnWrite(func(ev *otetw.Event) {
			// dropped by the span processor
			_, span := etwotel.StartSpan(ctx, "etwtrace.export::"+ev.PartB.Name)
			span.End()
		})
	}

	ctx, entry := log.S(ctx, logrus.Fields{
		"sink":        p.Sink(),
		"spans":       cfg.Emit.Spans,
		"concurrency": cfg.Emit.Concurrency,
	})
	entry.Info("emitting spans")

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Emit.Concurrency)
	for i := 0; i < cfg.Emit.Spans; i++ {
		i := i
		g.Go(func() error {
			return emitSpan(gctx, i, cfg.Emit.ErrorEvery)
		})
	}
	emitErr := g.Wait()

	if err := shutdown(ctx); err != nil {
		entry.WithError(err).Warning("shutdown tracer provider")
	}
	if err := p.Shutdown(ctx); err != nil {
		entry.WithError(err).Warning("shutdown span pipeline")
	}
	entry.WithField("duration", time.Since(start).String()).Info("emitted spans")
	if emitErr != nil {
		return emitErr
	}

	w := c.App.Writer
	if rec != nil {
		for _, ev := range rec.Events() {
			fmt.Fprintln(w, log.Format(ctx, ev.Event))
		}
	}
	printStats(w, p)
	return printMetrics(ctx, w, reader)
}

func emitSpan(ctx context.Context, i, errorEvery int) (err error) {
	_, span := etwotel.StartSpan(ctx, etwotel.Name("etwtrace", "emit"),
		etwotel.WithClientSpanKind,
		trace.WithAttributes(
			etwotel.Attribute("index", i),
			etwotel.Attribute("time", time.Now()),
		))

	var spanErr error
	if errorEvery > 0 && (i+1)%errorEvery == 0 {
		spanErr = fmt.Errorf("span %d failed", i)
	}
	etwotel.SetSpanStatusAndEnd(span, spanErr)
	return ctx.Err()
}

func serviceResource(cfg *Config) *resource.Resource {
	id := cfg.Service.InstanceID
	if id == "" {
		id = uuid.NewString()
	}

	attrs := []attribute.KeyValue{semconv.ServiceInstanceID(id)}
	if cfg.Service.Namespace != "" {
		attrs = append(attrs, semconv.ServiceNamespace(cfg.Service.Namespace))
	}
	return etwotel.DefaultResource(cfg.Service.Name, cfg.Service.Version, attrs...)
}

// newPipeline creates the span pipeline for the configured backend.
// The recorder is only returned for the memory backend.
func newPipeline(ctx context.Context, cfg *Config, rsc *resource.Resource, stdout io.Writer) (*etwtrace.Pipeline, *otetw.Recorder, error) {
	opts := []etwtrace.Option{etwtrace.WithResource(rsc)}

	if cfg.Backend == backendJSON {
		w := stdout
		if cfg.JSONOut != "" {
			w = &lumberjack.Logger{Filename: cfg.JSONOut}
			opts = append(opts, etwtrace.WithCloseWriter())
		}
		p, err := etwtrace.AttachJSON(w, opts...)
		return p, nil, err
	}

	l, el, err := cfg.levels()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, etwtrace.WithExporterOptions(
		etwexporter.WithSpanETWLevel(l),
		etwexporter.WithErrorSpanETWLevel(el),
		etwexporter.SetActivityID(cfg.ActivityID),
	))

	var rec *otetw.Recorder
	if cfg.Backend == backendMemory {
		rec = otetw.NewRecorder()
		opts = append(opts, etwtrace.WithNative(rec), etwtrace.WithTestMode())
	} else {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = registerTimeout
		opts = append(opts, etwtrace.WithRegisterRetry(backoff.WithContext(b, ctx)))
	}

	p, err := etwtrace.Attach(cfg.Provider, opts...)
	return p, rec, err
}

func printStats(w io.Writer, p *etwtrace.Pipeline) {
	st := p.Stats()
	fmt.Fprintf(w, "sink:       %s\n", p.Sink())
	fmt.Fprintf(w, "exported:   %d\n", st.Exported)
	fmt.Fprintf(w, "reentrant:  %d\n", st.Reentrant)
	fmt.Fprintf(w, "contention: %d\n", st.Contention)
	fmt.Fprintf(w, "failed:     %d\n", st.Failed)
}

// printMetrics prints the int64 sums and gauges collected by reader.
func printMetrics(ctx context.Context, w io.Writer, reader metric.Reader) error {
	rm := metricdata.ResourceMetrics{}
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	lines := []string{}
	add := func(name string, dps []metricdata.DataPoint[int64]) {
		for _, dp := range dps {
			attrs := dp.Attributes.Encoded(attribute.DefaultEncoder())
			lines = append(lines, fmt.Sprintf("%s{%s} %d", name, attrs, dp.Value))
		}
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch d := m.Data.(type) {
			case metricdata.Sum[int64]:
				add(m.Name, d.DataPoints)
			case metricdata.Gauge[int64]:
				add(m.Name, d.DataPoints)
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	return nil
}
