package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/artifact"
	"github.com/justapithecus/otacore/cli/config"
	"github.com/justapithecus/otacore/iox"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/scripts"
	"github.com/justapithecus/otacore/types"
)

// InstallScriptsCommand returns the install-scripts command. It replaces
// the artifact script directory with the scripts embedded in an artifact.
func InstallScriptsCommand() *cli.Command {
	return &cli.Command{
		Name:      "install-scripts",
		Usage:     "Install the state scripts embedded in an artifact header",
		ArgsUsage: "<artifact>",
		Flags: []cli.Flag{
			ConfigFlag,
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Target directory (default: configured artifact script path)",
			},
		},
		Action: installScriptsAction,
	}
}

func installScriptsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("artifact file required", 1)
	}
	path := c.Args().First()

	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	dir := cfg.WithDefaults().ArtifactScriptPath
	if v := c.String("dir"); v != "" {
		dir = v
	}

	meta := types.NewInvocationMeta("artifact")
	logger := log.NewLogger(meta).WithOutput(c.App.ErrWriter)

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open artifact: %v", err), 1)
	}
	defer iox.DiscardClose(f)

	// Only the header is needed; payloads are never read.
	a, err := artifact.Parse(f, artifact.WithLogger(logger))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to parse %s: %v", path, err), 1)
	}
	var embedded []artifact.Script
	if a.Header != nil {
		embedded = a.Header.Scripts
	}

	if err := scripts.Install(dir, embedded); err != nil {
		return cli.Exit(fmt.Sprintf("failed to install scripts: %v", err), 1)
	}
	logger.Info("installed artifact scripts", map[string]any{
		"artifact": a.Name(),
		"dir":      dir,
		"scripts":  len(embedded),
	})

	fmt.Fprintf(c.App.Writer, "installed %d scripts from %s into %s\n", len(embedded), a.Name(), dir)
	return nil
}
