package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	otetw "github.com/Microsoft/otel-etw-trace/internal/otel/etw"
)

var guidCommand = &cli.Command{
	Name:      "guid",
	Usage:     "print the GUIDs ETW assigns to provider names",
	ArgsUsage: "[NAME...]",
	Description: `Trace sessions can enable a TraceLogging provider either by name (prefixed with '*') or by GUID.
If no names are given, the configured provider is used.`,
	Action: func(c *cli.Context) error {
		names := c.Args().Slice()
		if len(names) == 0 {
			names = []string{state(c).cfg.Provider}
		}
		for _, n := range names {
			if n == "" {
				return otetw.ErrInvalidProviderName
			}
			fmt.Fprintf(c.App.Writer, "%s\t%s\n", otetw.ProviderID(n), n)
		}
		return nil
	},
}

var configCommand = &cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		b, err := state(c).cfg.TOML()
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(b)
		return err
	},
}
