// Package journal persists state script executions and invocation metrics
// to a Lode dataset.
//
// Records are partitioned with Lode's HiveLayout by state, action, day and
// record_kind, and encoded as JSONL. The filesystem backend is the default
// on devices; S3 (or any S3-compatible store) is used for fleet collection.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/otacore/metrics"
)

// DefaultDataset is the Lode dataset ID used when none is configured.
const DefaultDataset = "otacore"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"state", "action", "day", "record_kind"}

// DeriveDay computes the partition day from a start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Config holds journal configuration for one invocation.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Day is the partition day (YYYY-MM-DD UTC).
	Day string
	// InvocationID is stamped on every record.
	InvocationID string
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Dataset == "" {
		return errors.New("journal dataset is required")
	}
	if c.Day == "" {
		return errors.New("journal day is required")
	}
	return nil
}

// Writer abstracts journal storage.
// Implementations must preserve record order within a batch.
type Writer interface {
	// WriteScripts writes a batch of script execution records.
	WriteScripts(ctx context.Context, records []ScriptRecord) error
	// WriteMetrics writes the end-of-invocation metrics snapshot.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
	// Close releases resources.
	Close() error
}

// Client is a Lode-backed Writer.
type Client struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex // serializes dataset writes
}

// NewClient creates a client with filesystem storage rooted at root.
func NewClient(cfg Config, root string) (*Client, error) {
	return NewClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewClientWithFactory creates a client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(cfg Config, factory lode.StoreFactory) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &Client{dataset: ds, config: cfg}, nil
}

// NewS3Client creates a client with an S3 storage backend.
// Uses the AWS SDK default credential chain (env vars, shared config, IAM role).
func NewS3Client(ctx context.Context, cfg Config, s3cfg S3Config) (*Client, error) {
	factory, err := newS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithFactory(cfg, factory)
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteScripts writes script records in order as one snapshot.
func (c *Client) WriteScripts(ctx context.Context, records []ScriptRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := make([]any, 0, len(records))
	for _, r := range records {
		batch = append(batch, toScriptRecordMap(r, c.config))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.dataset.Write(ctx, batch, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// WriteMetrics writes a metrics record for the invocation.
func (c *Client) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, c.config, completedAt)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

var _ Writer = (*Client)(nil)

// StubWriter records writes without persisting. Use in tests.
type StubWriter struct {
	mu      sync.Mutex
	Scripts []ScriptRecord
	Metrics []metrics.Snapshot
	Closed  bool
	// Err, when set, is returned by every write.
	Err error
}

// WriteScripts implements Writer.
func (w *StubWriter) WriteScripts(_ context.Context, records []ScriptRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Scripts = append(w.Scripts, records...)
	return nil
}

// WriteMetrics implements Writer.
func (w *StubWriter) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Metrics = append(w.Metrics, snap)
	return nil
}

// Close implements Writer.
func (w *StubWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Closed = true
	return nil
}

var _ Writer = (*StubWriter)(nil)
