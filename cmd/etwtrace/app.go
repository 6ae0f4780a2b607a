package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Microsoft/otel-etw-trace/internal/log"
)

const (
	configFlagName   = "config"
	logLevelFlagName = "log-level"
	logFileFlagName  = "log-file"
)

var appCommands = []*cli.Command{
	emitCommand,
	guidCommand,
	configCommand,
}

func app() *cli.App {
	app := &cli.App{
		Name:           "etwtrace",
		Usage:          "Export OpenTelemetry spans to Event Tracing for Windows",
		Commands:       appCommands,
		ExitErrHandler: errHandler,
		Before:         before,
		After:          after,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:    configFlagName,
				Usage:   "TOML configuration `file`",
				EnvVars: []string{"ETWTRACE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    logLevelFlagName,
				Usage:   "logrus log level",
				EnvVars: []string{"ETWTRACE_LOG_LEVEL"},
			},
			&cli.PathFlag{
				Name:  logFileFlagName,
				Usage: "write logs to `file`, rotating it as it grows",
			},
		},
	}
	return app
}

type appState struct {
	cfg     *Config
	closers []io.Closer
}

// state returns the configuration loaded by [before].
func state(c *cli.Context) *appState {
	s, _ := c.App.Metadata["state"].(*appState)
	if s == nil {
		s = &appState{cfg: defaultConfig()}
	}
	return s
}

func before(c *cli.Context) error {
	cfg, err := loadConfig(c.Path(configFlagName))
	if err != nil {
		return err
	}
	if c.IsSet(logLevelFlagName) {
		cfg.Log.Level = c.String(logLevelFlagName)
	}
	if c.IsSet(logFileFlagName) {
		cfg.Log.File = c.Path(logFileFlagName)
	}

	s := &appState{cfg: cfg}
	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]interface{})
	}
	c.App.Metadata["state"] = s

	lvl, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: log.TimeFormat,
		FullTimestamp:   true,
	})
	logrus.SetOutput(c.App.ErrWriter)

	if cfg.Log.File != "" {
		l := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		logrus.SetOutput(l)
		s.closers = append(s.closers, l)
	}

	if cl, err := setupETWLogging(cfg.Log.ETWProvider); err != nil {
		log.L.WithError(err).Warning("could not forward logs to ETW")
	} else if cl != nil {
		s.closers = append(s.closers, cl)
	}
	return nil
}

func after(c *cli.Context) error {
	for _, cl := range state(c).closers {
		if err := cl.Close(); err != nil {
			log.L.WithError(err).Debug("close log output")
		}
	}
	return nil
}

func errHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	s := c.App.Name
	if c.Command != nil && c.Command.Name != "" {
		s += " " + c.Command.Name
	}
	cli.HandleExitCoder(cli.Exit(fmt.Errorf("%s: %w", s, err), 1))
}
