package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/reader"
	"github.com/justapithecus/otacore/cli/render"
	"github.com/justapithecus/otacore/cli/tui"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single entity.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entity (artifact)",
		Subcommands: []*cli.Command{
			inspectArtifactCommand(),
		},
	}
}

func inspectArtifactCommand() *cli.Command {
	return &cli.Command{
		Name:      "artifact",
		Usage:     "Inspect an artifact file without installing it",
		ArgsUsage: "<file>",
		Flags: append(TUIReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "read-payloads",
				Usage: "Read every payload file to verify decompression and sizes",
			},
		),
		Action: inspectArtifactAction,
	}
}

func inspectArtifactAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("artifact file required", 1)
	}
	path := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	resp, err := reader.InspectArtifactFile(path, reader.InspectOptions{
		ReadPayloads: c.Bool("read-payloads"),
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to inspect %s: %v", path, err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectArtifact, resp)
	}

	return r.Render(resp)
}
