package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List journal entries (scripts)",
		Subcommands: []*cli.Command{
			listScriptsCommand(),
		},
	}
}

func listScriptsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), JournalFlags()...)
	flags = append(flags, filterFlags()...)
	flags = append(flags, &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of scripts to return (0 = no limit)",
		Value: 0,
	})
	return &cli.Command{
		Name:   "scripts",
		Usage:  "List recorded state script executions, newest first",
		Flags:  flags,
		Action: listScriptsAction,
	}
}

func listScriptsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	jr, err := openJournalReader(ctx, c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	limit := c.Int("limit")
	results, err := jr.ListScripts(ctx, filterFromFlags(c), limit)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list scripts: %v", err), 1)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
