package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/otacore/adapter"
	"github.com/justapithecus/otacore/adapter/redis"
	"github.com/justapithecus/otacore/adapter/webhook"
	"github.com/justapithecus/otacore/cli/config"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
	"github.com/justapithecus/otacore/types"
)

// AdapterFlags returns the flags selecting the completion event adapter.
// Unset flags fall back to the config file.
func AdapterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "adapter", Usage: "Completion event adapter: webhook or redis"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Webhook endpoint or redis:// URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
		&cli.StringFlag{Name: "adapter-stream", Usage: "Redis stream to also append events to"},
		&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt publish timeout"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Publish retry attempts (default 3)"},
	}
}

// resolveAdapter merges adapter flags over the config file. Flags win.
func resolveAdapter(c *cli.Context, ac config.AdapterConfig) config.AdapterConfig {
	if v := c.String("adapter"); v != "" {
		ac.Type = v
	}
	if v := c.String("adapter-url"); v != "" {
		ac.URL = v
	}
	if v := c.String("adapter-channel"); v != "" {
		ac.Channel = v
	}
	if v := c.String("adapter-stream"); v != "" {
		ac.Stream = v
	}
	if v := c.Duration("adapter-timeout"); v > 0 {
		ac.Timeout = config.Duration{Duration: v}
	}
	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		ac.Retries = &n
	}
	return ac
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(c *cli.Context, ac config.AdapterConfig) (adapter.Adapter, error) {
	ac = resolveAdapter(c, ac)
	if ac.Type == "" {
		return nil, nil
	}
	cfg := config.Config{Adapter: ac}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch ac.Type {
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Stream:  ac.Stream,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s", ac.Type)
	}
}

// publish sends the completion event. Failures are logged and never change
// the run outcome.
func publish(
	ctx context.Context,
	pub adapter.Adapter,
	meta *types.InvocationMeta,
	outcome types.RunResultOutcome,
	snap metrics.Snapshot,
	storagePath string,
	completedAt time.Time,
	logger *log.Logger,
) {
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("failed to close adapter", map[string]any{"error": err.Error()})
		}
	}()

	event := adapter.NewScriptsCompletedEvent(meta, outcome, snap, storagePath, completedAt)
	if err := pub.Publish(ctx, event); err != nil {
		logger.Error("failed to publish completion event", map[string]any{"error": err.Error()})
		return
	}
	logger.Debug("published completion event", map[string]any{"outcome": event.Outcome})
}
