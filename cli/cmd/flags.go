// Package cmd provides the commands of the tlist binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/tlist/log"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables the interactive viewer (inspect, stats only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}
)

// ConfigFlag points at a tlist.yaml file.
func ConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a tlist.yaml config file",
		EnvVars: []string{"TLIST_CONFIG"},
	}
}

// VerbosityFlag selects the log level, 0 (errors) to 3 (per-buffer debug).
func VerbosityFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "verbosity",
		Aliases: []string{"v"},
		Usage:   "Log verbosity: 0 errors, 1 warnings, 2 info, 3 debug",
		Value:   log.VerbosityMedium,
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// --tui is included everywhere so commands without a viewer can reject
// it explicitly instead of failing on an undefined flag.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}
