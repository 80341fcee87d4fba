package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/otacore/scripts"
)

// Default values applied by WithDefaults.
const (
	DefaultJournalDataset = "otacore"
	DefaultJournalBackend = "fs"
	DefaultJournalPath    = "/var/lib/otacore/journal"
)

// Config represents an otacore.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	ArtifactScriptPath string        `yaml:"artifact_script_path"`
	RootfsScriptPath   string        `yaml:"rootfs_script_path"`
	StateScriptTimeout Duration      `yaml:"state_script_timeout"`
	Journal            JournalConfig `yaml:"journal"`
	Adapter            AdapterConfig `yaml:"adapter"`
}

// JournalConfig selects where script runs and metrics are recorded.
// An empty Backend disables the journal.
type JournalConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"` // fs or s3
	Path        string `yaml:"path"`    // directory (fs) or bucket/prefix (s3)
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// Enabled reports whether a journal backend is configured.
func (j JournalConfig) Enabled() bool {
	return j.Backend != ""
}

// AdapterConfig holds notification adapter defaults.
// An empty Type disables notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // webhook or redis
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Stream  string            `yaml:"stream,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// WithDefaults returns a copy with unset values filled in.
func (c Config) WithDefaults() Config {
	if c.ArtifactScriptPath == "" {
		c.ArtifactScriptPath = scripts.DefaultArtifactScriptPath
	}
	if c.RootfsScriptPath == "" {
		c.RootfsScriptPath = scripts.DefaultRootfsScriptPath
	}
	if c.StateScriptTimeout.Duration <= 0 {
		c.StateScriptTimeout.Duration = scripts.DefaultTimeout
	}
	if c.Journal.Enabled() {
		if c.Journal.Dataset == "" {
			c.Journal.Dataset = DefaultJournalDataset
		}
		if c.Journal.Backend == "fs" && c.Journal.Path == "" {
			c.Journal.Path = DefaultJournalPath
		}
	}
	return c
}

// Validate checks enumerated values and required pairs.
func (c *Config) Validate() error {
	switch c.Journal.Backend {
	case "", "fs":
	case "s3":
		if c.Journal.Path == "" {
			return errors.New("journal.path (bucket[/prefix]) is required for the s3 backend")
		}
	default:
		return fmt.Errorf("journal.backend must be fs or s3, got %q", c.Journal.Backend)
	}

	switch c.Adapter.Type {
	case "":
	case "webhook", "redis":
		if c.Adapter.URL == "" {
			return fmt.Errorf("adapter.url is required for the %s adapter", c.Adapter.Type)
		}
	default:
		return fmt.Errorf("adapter.type must be webhook or redis, got %q", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	return nil
}
