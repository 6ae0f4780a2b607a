package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimeFormat is [time.RFC3339Nano] with nanoseconds padded using
// zeros to ensure the formatted time is always the same number of
// characters.
// Based on RFC3339NanoFixed from github.com/containerd/log.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime formats t in UTC with [TimeFormat].
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// Format formats an object into a JSON string, without any indentation or
// HTML escapes.
// Context is used to output a log warning if the conversion fails.
//
// This is intended primarily for attribute and log field values.
func Format(ctx context.Context, v interface{}) string {
	b, err := encode(v)
	if err != nil {
		G(ctx).WithError(err).Warning("could not format value")
		return ""
	}

	return string(b)
}

func encode(v interface{}) (_ []byte, err error) {
	if m, ok := v.(json.Marshaler); ok {
		// additional effort to ensure output is compact
		var b []byte
		if b, err = m.MarshalJSON(); err == nil {
			buf := &bytes.Buffer{}
			if err = json.Compact(buf, b); err == nil {
				return buf.Bytes(), nil
			}
		}
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "")

	if err := enc.Encode(v); err != nil {
		err = fmt.Errorf("could not marshall %T to JSON for logging: %w", v, err)
		return nil, err
	}

	// encoder.Encode appends a newline to the end
	return bytes.TrimSpace(buf.Bytes()), nil
}
