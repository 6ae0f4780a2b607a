package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml"

	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

const (
	backendETW    = "etw"
	backendJSON   = "json"
	backendMemory = "memory"
)

// Config is the etwtrace configuration file.
//
// Command line flags take precedence over values in the file.
type Config struct {
	Provider string `toml:"provider" comment:"ETW provider name spans are written to"`
	Backend  string `toml:"backend" comment:"span sink: etw, json, or memory"`
	// JSONOut is the file the json backend writes to; stdout if empty
	JSONOut string `toml:"json_out"`

	Level      string `toml:"level" comment:"ETW level for spans"`
	ErrorLevel string `toml:"error_level" comment:"ETW level for spans with an error status"`
	ActivityID bool   `toml:"activity_id" comment:"set the ETW activity ID to the span ID"`

	Service ServiceConfig `toml:"service"`
	Emit    EmitConfig    `toml:"emit"`
	Log     LogConfig     `toml:"log"`
}

type ServiceConfig struct {
	Name      string `toml:"name"`
	Namespace string `toml:"namespace"`
	Version   string `toml:"version"`
	// InstanceID defaults to a random UUID
	InstanceID string `toml:"instance_id"`
}

type EmitConfig struct {
	Spans       int  `toml:"spans"`
	Concurrency int  `toml:"concurrency"`
	ErrorEvery  int  `toml:"error_every" comment:"mark every nth span as failed; 0 to disable"`
	Reentrant   bool `toml:"reentrant" comment:"emit a span from within every export (memory backend only)"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	// ETWProvider forwards logs to an ETW provider of that name (Windows only)
	ETWProvider string `toml:"etw_provider"`
}

func defaultConfig() *Config {
	return &Config{
		Provider:   "Microsoft.OTel.ETWTrace",
		Backend:    backendETW,
		Level:      otetw.LevelInfo.String(),
		ErrorLevel: otetw.LevelError.String(),
		Service: ServiceConfig{
			Name: "etwtrace",
		},
		Emit: EmitConfig{
			Spans:       10,
			Concurrency: 1,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// loadConfig reads the configuration file at path over the defaults.
// An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, cfg.validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (cfg *Config) validate() error {
	switch cfg.Backend {
	case backendETW, backendJSON, backendMemory:
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if cfg.Backend != backendJSON && cfg.Provider == "" {
		return errors.New("no ETW provider name")
	}
	if _, err := otetw.ParseLevel(cfg.Level); err != nil {
		return err
	}
	if _, err := otetw.ParseLevel(cfg.ErrorLevel); err != nil {
		return err
	}
	if cfg.Emit.Spans < 0 {
		return fmt.Errorf("invalid span count %d", cfg.Emit.Spans)
	}
	if cfg.Emit.Concurrency < 1 {
		return fmt.Errorf("invalid concurrency %d", cfg.Emit.Concurrency)
	}
	if cfg.Emit.ErrorEvery < 0 {
		return fmt.Errorf("invalid error interval %d", cfg.Emit.ErrorEvery)
	}
	return nil
}

// levels returns the parsed span and error span levels.
func (cfg *Config) levels() (otetw.Level, otetw.Level, error) {
	l, err := otetw.ParseLevel(cfg.Level)
	if err != nil {
		return 0, 0, err
	}
	el, err := otetw.ParseLevel(cfg.ErrorLevel)
	if err != nil {
		return 0, 0, err
	}
	return l, el, nil
}

func (cfg *Config) TOML() ([]byte, error) {
	return toml.Marshal(cfg)
}
