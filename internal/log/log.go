// This package provides context-scoped logrus entries.
package log

import (
	"context"

	"github.com/sirupsen/logrus"
)

type entryContextKeyType int

const _entryContextKey entryContextKeyType = iota

// L is the default, blank logging entry. WithField and co. all return a copy
// of the original entry, so this will not leak fields between calls.
//
// Do NOT modify fields directly, as that will corrupt state for all users.
var L = logrus.NewEntry(logrus.StandardLogger())

// G returns a [logrus.Entry] stored in the context, if one exists.
// Otherwise, it returns a default entry that points to the current context.
func G(ctx context.Context) *logrus.Entry {
	e := fromContext(ctx)
	if e == nil {
		e = L.WithContext(ctx)
	}
	return e
}

// S adds fields to the logging entry in the context, and returns the updated context
// and entry.
func S(ctx context.Context, fields logrus.Fields) (context.Context, *logrus.Entry) {
	e := G(ctx).WithFields(fields)
	return WithContext(ctx, e), e
}

// WithContext returns a context that contains the provided log entry.
// The entry can be extracted with [G].
//
// The entry in the context is a copy of e (generated by [logrus.Entry.WithContext]).
func WithContext(ctx context.Context, e *logrus.Entry) context.Context {
	if e.Context != ctx {
		e = e.WithContext(ctx)
	}
	return context.WithValue(ctx, _entryContextKey, e)
}

func fromContext(ctx context.Context) *logrus.Entry {
	e, _ := ctx.Value(_entryContextKey).(*logrus.Entry)
	return e
}
