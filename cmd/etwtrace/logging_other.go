//go:build !windows

package main

import (
	"io"

	"github.com/Microsoft/otel-etw-trace/internal/log"
)

func setupETWLogging(name string) (io.Closer, error) {
	if name != "" {
		log.L.WithField("provider", name).Debug("ETW log forwarding is only supported on Windows")
	}
	return nil, nil
}
