package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/render"
	"github.com/justapithecus/otacore/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	ContractVersion string `json:"contract_version"`
	ArtifactFormat  int    `json:"artifact_format"`
}

// VersionCommand returns the version command.
// It reports the canonical project version and touches nothing else.
func VersionCommand(_, commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:         types.Version,
			Commit:          commit,
			ContractVersion: types.ContractVersion,
			ArtifactFormat:  types.ArtifactFormatVersion,
		}

		return r.Render(resp)
	}
}
