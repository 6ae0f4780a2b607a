//go:build windows

package main

import (
	"io"

	"github.com/Microsoft/go-winio/pkg/etwlogrus"
	"github.com/sirupsen/logrus"
)

// setupETWLogging forwards logrus entries to the ETW provider name.
func setupETWLogging(name string) (io.Closer, error) {
	if name == "" {
		return nil, nil
	}

	hook, err := etwlogrus.NewHook(name)
	if err != nil {
		return nil, err
	}
	logrus.AddHook(hook)
	return hook, nil
}
