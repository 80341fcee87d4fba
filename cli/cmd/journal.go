package cmd

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/cli/config"
	"github.com/justapithecus/otacore/journal"
)

// journalChoice is the journal location after merging flags over config.
type journalChoice struct {
	dataset   string
	backend   string
	path      string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveJournal merges journal flags over the config file. Flags win.
func resolveJournal(c *cli.Context, cfg *config.Config) journalChoice {
	j := cfg.Journal
	choice := journalChoice{
		dataset:   j.Dataset,
		backend:   j.Backend,
		path:      j.Path,
		region:    j.Region,
		endpoint:  j.Endpoint,
		pathStyle: j.S3PathStyle,
	}
	if v := c.String("journal-dataset"); v != "" {
		choice.dataset = v
	}
	if v := c.String("journal-backend"); v != "" {
		choice.backend = v
	}
	if v := c.String("journal-path"); v != "" {
		choice.path = v
	}
	if v := c.String("journal-region"); v != "" {
		choice.region = v
	}
	if v := c.String("journal-endpoint"); v != "" {
		choice.endpoint = v
	}
	if choice.dataset == "" {
		choice.dataset = journal.DefaultDataset
	}
	if choice.backend == "fs" && choice.path == "" {
		choice.path = config.DefaultJournalPath
	}
	return choice
}

func (j journalChoice) s3Config() journal.S3Config {
	bucket, prefix := journal.ParseS3Path(j.path)
	return journal.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       j.region,
		Endpoint:     j.endpoint,
		UsePathStyle: j.pathStyle,
	}
}

// storagePath renders the location for logs and published events.
func (j journalChoice) storagePath() string {
	switch j.backend {
	case "s3":
		return "s3://" + j.path
	case "fs":
		return "file://" + j.path
	default:
		return ""
	}
}

// buildReadDataset opens the journal for reading.
func buildReadDataset(ctx context.Context, j journalChoice) (lode.Dataset, error) {
	switch j.backend {
	case "fs":
		return journal.NewReadDatasetFS(j.dataset, j.path)
	case "s3":
		return journal.NewReadDatasetS3(ctx, j.dataset, j.s3Config())
	case "":
		return nil, fmt.Errorf("no journal configured (set --journal-backend or journal.backend)")
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s (must be fs or s3)", j.backend)
	}
}

// buildWriter opens the journal for a run. A zero choice yields a nil writer.
func buildWriter(ctx context.Context, j journalChoice, cfg journal.Config) (journal.Writer, error) {
	cfg.Dataset = j.dataset
	switch j.backend {
	case "":
		return nil, nil
	case "fs", "s3":
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s (must be fs or s3)", j.backend)
	}

	var (
		client *journal.Client
		err    error
	)
	if j.backend == "s3" {
		client, err = journal.NewS3Client(ctx, cfg, j.s3Config())
	} else {
		client, err = journal.NewClient(cfg, j.path)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
