package cmd

import (
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/reader"
	"github.com/justapithecus/otacore/cli/render"
	"github.com/justapithecus/otacore/iox"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools and never mutate state.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (ipc)",
		Subcommands: []*cli.Command{
			debugIPCCommand(),
		},
	}
}

func debugIPCCommand() *cli.Command {
	return &cli.Command{
		Name:      "ipc",
		Usage:     "Decode a captured IPC frame stream (from run --ipc)",
		ArgsUsage: "<file|->",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Include per-frame details",
			},
		),
		Action: debugIPCAction,
	}
}

func debugIPCAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer iox.DiscardClose(f)
		in = f
	}

	return r.Render(reader.DebugIPC(in, c.Bool("verbose")))
}
