package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/config"
	"github.com/justapithecus/otacore/cli/reader"
	"github.com/justapithecus/otacore/cli/render"
	"github.com/justapithecus/otacore/cli/tui"
	"github.com/justapithecus/otacore/journal"
)

// readTimeout bounds journal reads for read-only commands.
const readTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts read from the journal.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (scripts)",
		Subcommands: []*cli.Command{
			statsScriptsCommand(),
		},
	}
}

func statsScriptsCommand() *cli.Command {
	flags := append(TUIReadOnlyFlags(), JournalFlags()...)
	flags = append(flags, filterFlags()...)
	return &cli.Command{
		Name:   "scripts",
		Usage:  "Show state script counters of the latest matching run",
		Flags:  flags,
		Action: statsScriptsAction,
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "state", Usage: "Filter by state (e.g. ArtifactInstall)"},
		&cli.StringFlag{Name: "action", Usage: "Filter by action: Enter, Leave, Error"},
		&cli.StringFlag{Name: "invocation-id", Usage: "Filter by invocation ID"},
	}
}

func filterFromFlags(c *cli.Context) journal.Filter {
	return journal.Filter{
		State:        c.String("state"),
		Action:       c.String("action"),
		InvocationID: c.String("invocation-id"),
	}
}

// openJournalReader resolves the journal location and opens it for reading.
func openJournalReader(ctx context.Context, c *cli.Context) (reader.Reader, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, err
	}
	ds, err := buildReadDataset(ctx, resolveJournal(c, cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal reader: %w", err)
	}
	return reader.NewJournalReader(ds), nil
}

func statsScriptsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	jr, err := openJournalReader(ctx, c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	stats, err := jr.StatsScripts(ctx, filterFromFlags(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read script metrics: %v", err), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsScripts, stats)
	}

	return r.Render(stats)
}
