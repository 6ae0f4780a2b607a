// This package provides and [OTel error handler] that outputs via logrus.
//
// [OTel error handler]: https://pkg.go.dev/go.opentelemetry.io/otel#ErrorHandler
package logrus

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/Microsoft/otel-etw-trace/internal/log"
	etwotel "github.com/Microsoft/otel-etw-trace/internal/otel"
	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

// New creates a new [otel.ErrorHandler] to log errors raised during OTel instrument creation/processing/export.
//
// Errors from writing to an ETW provider include the provider and status code.
// Errors from using a closed provider are logged no more severely than [logrus.WarnLevel].
func New(opts ...Option) otel.ErrorHandler {
	c := newConfig()
	for _, o := range opts {
		o(&c)
	}

	return otel.ErrorHandlerFunc(func(err error) {
		// [WithFields] will create a copy of c.extra, so we don't need to worry about
		// copying it per call to prevent inadvertent modification
		entry := c.entry.WithFields(c.extra).WithError(err)

		var werr *otetw.WriteError
		if errors.As(err, &werr) {
			entry = entry.WithFields(logrus.Fields{
				"provider": werr.Provider,
				"status":   fmt.Sprintf("0x%x", werr.Status),
			})
		}

		lvl := c.level
		if errors.Is(err, etwotel.ErrClosed) && lvl < logrus.WarnLevel {
			// expected during shutdown
			lvl = logrus.WarnLevel
		}
		entry.Log(lvl, "OpenTelemetry error")
	})
}

type Option func(*config)

type config struct {
	entry *logrus.Entry
	level logrus.Level
	extra logrus.Fields
}

func newConfig() config {
	return config{
		entry: log.L,
		level: logrus.ErrorLevel,
		extra: make(logrus.Fields),
	}
}

// WithResource adds the service identity from an OTel [resource.Resource] to the error message.
func WithResource(rsc *resource.Resource) Option {
	r := otetw.NewResource(rsc)
	return func(c *config) {
		c.extra["service.name"] = r.ServiceName
		if r.ServiceVersion != "" {
			c.extra["service.version"] = r.ServiceVersion
		}
		if r.ServiceInstanceID != "" {
			c.extra["service.instance.id"] = r.ServiceInstanceID
		}
	}
}

// WithExtra specifies additional [logrus.Fields] to append to the error message.
func WithExtra(fields logrus.Fields) Option {
	return func(c *config) {
		for k, v := range fields {
			c.extra[k] = v
		}
	}
}

// WithLevel specifies the [logrus.Level] to use when writing errors.
//
// The default is [logrus.ErrorLevel].
func WithLevel(l logrus.Level) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithEntry specifies the [logrus.Entry] to log with.
//
// The default is [log.L].
func WithEntry(e *logrus.Entry) Option {
	return func(c *config) {
		c.entry = e
	}
}
