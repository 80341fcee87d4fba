// Package redis implements a Redis adapter.
//
// Events are published as JSON on a pub/sub channel. When a stream is
// configured they are also appended to a capped Redis stream, so a fleet
// agent that was not subscribed at the time still sees them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/otacore/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "otacore:scripts_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// DefaultStreamMaxLen caps the stream length when a stream is configured.
const DefaultStreamMaxLen = 1000

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: otacore:scripts_completed).
	Channel string
	// Stream, if set, is a stream key events are also appended to.
	Stream string
	// StreamMaxLen approximately caps the stream (default 1000).
	StreamMaxLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
}

// Adapter publishes events via Redis PUBLISH and, optionally, XADD.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = DefaultStreamMaxLen
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event. The stream append happens first so a retry
// after a failed PUBLISH may append a duplicate entry; consumers dedupe on
// invocation_id.
func (a *Adapter) Publish(ctx context.Context, event *adapter.ScriptsCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		if a.config.Stream != "" {
			err := a.client.XAdd(publishCtx, &goredis.XAddArgs{
				Stream: a.config.Stream,
				MaxLen: a.config.StreamMaxLen,
				Approx: true,
				Values: map[string]any{
					"invocation_id": event.InvocationID,
					"outcome":       event.Outcome,
					"event":         string(body),
				},
			}).Err()
			if err != nil {
				return fmt.Errorf("xadd %s: %w", a.config.Stream, err)
			}
		}
		return a.client.Publish(publishCtx, a.config.Channel, body).Err()
	}, nil)
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
