// Package cmd provides CLI commands for the otacore binary.
package cmd

import "github.com/urfave/cli/v2"

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

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}

	// ConfigFlag points at an otacore.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to otacore.yaml (default: /etc/otacore/otacore.yaml if present)",
		EnvVars: []string{"OTACORE_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// JournalFlags returns the flags that select a journal dataset for reading.
// Unset flags fall back to the config file.
func JournalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{Name: "journal-dataset", Usage: "Journal dataset ID (default: \"otacore\")"},
		&cli.StringFlag{Name: "journal-backend", Usage: "Journal backend: fs or s3"},
		&cli.StringFlag{Name: "journal-path", Usage: "Journal path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "journal-region", Usage: "AWS region for the s3 backend"},
		&cli.StringFlag{Name: "journal-endpoint", Usage: "Custom S3 endpoint for S3-compatible stores"},
	}
}
