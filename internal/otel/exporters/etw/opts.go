package etw

import (
	"fmt"

	"github.com/blang/semver/v4"
	"go.opentelemetry.io/otel/sdk/resource"

	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

type Option func(*Exporter) error

// WithNewETWProvider registers a new ETW provider for the exporter to use.
// The provider will be released when the exporter is shutdown.
//
// The provider is registered with the [otetw.Registry] set via [WithRegistry], or a registry
// using the platform's ETW implementation.
func WithNewETWProvider(n string) Option {
	return func(e *Exporter) error {
		e.registerNew = true
		e.newProvider = n
		return nil
	}
}

// WithRegistry sets the registry used by [WithNewETWProvider].
func WithRegistry(r *otetw.Registry) Option {
	return func(e *Exporter) error {
		e.registry = r
		return nil
	}
}

// WithExistingETWProvider configures the exporter to use an existing ETW provider.
// The provider will not be released when the exporter is shutdown.
func WithExistingETWProvider(h *otetw.Handle) Option {
	return func(e *Exporter) error {
		if h == nil {
			return fmt.Errorf("existing ETW provider: %w", otetw.ErrClosed)
		}
		e.handle = h
		e.owned = false
		return nil
	}
}

// SetActivityID specifies if the ETW events should have their (related) activity ID
// set to the (parent) span ID.
//
// This is useful for correlating spans with other ETW events.
func SetActivityID(b bool) Option {
	return func(e *Exporter) error {
		e.setActivityID = b
		return nil
	}
}

// WithSpanETWLevel specifies the [otetw.Level] to use when exporting spans to ETW events.
//
// The default is [otetw.LevelInfo].
func WithSpanETWLevel(l otetw.Level) Option {
	return func(e *Exporter) error {
		e.level = l
		return nil
	}
}

// WithErrorSpanETWLevel specifies the [otetw.Level] to use when exporting spans whose status code
// is [go.opentelemetry.io/otel/codes.Error].
// It must be at least as severe as the level set by [WithSpanETWLevel].
//
// The default is [otetw.LevelError].
func WithErrorSpanETWLevel(l otetw.Level) Option {
	return func(e *Exporter) error {
		e.errorLevel = l
		return nil
	}
}

// WithKeyword sets the ETW keyword for span events.
//
// The default is [otetw.KeywordSpan].
func WithKeyword(k uint64) Option {
	return func(e *Exporter) error {
		e.keyword = k
		return nil
	}
}

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

// WithResource sets the resource used for Part A, instead of capturing it from the first
// exported span.
func WithResource(rsc *resource.Resource) Option {
	return func(e *Exporter) error {
		r := otetw.NewResource(rsc)
		e.rsc.Store(&r)
		return nil
	}
}
