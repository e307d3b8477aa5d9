// Package config loads lattice.yaml run configuration.
//
// Every value is optional in the file; command-line flags override file
// values, and the phase controller applies its own defaults and reports
// missing required keys.
package config

import (
	"fmt"
	"time"
)

// Config is a lattice.yaml document.
type Config struct {
	Schema string `yaml:"schema"`
	Mode   string `yaml:"mode"`
	RunID  string `yaml:"run_id"`
	Seed   uint64 `yaml:"seed"`

	Scale          int64 `yaml:"scale"`
	Workers        int   `yaml:"workers"`
	ChunkSize      int   `yaml:"chunk_size"`
	IDBatch        int   `yaml:"id_batch"`
	MemoryCapacity int   `yaml:"memory_capacity"`

	IDs     IDsConfig     `yaml:"ids"`
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Adapter AdapterConfig `yaml:"adapter"`

	DropStorage bool `yaml:"drop_storage"`
	// Metrics writes the run metrics record when the output is lode.
	Metrics *bool `yaml:"metrics,omitempty"`
}

// IDsConfig bounds minted identifiers.
type IDsConfig struct {
	Bottom int64 `yaml:"bottom"`
	Top    int64 `yaml:"top"`
}

// SourceConfig selects the input of source mode.
type SourceConfig struct {
	// Kind is jsonl or dataset.
	Kind string `yaml:"kind"`
	// Path is the JSONL file, or the dataset root ("bucket/prefix" for s3).
	Path        string `yaml:"path"`
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	// RunID and Label narrow a dataset source.
	RunID string `yaml:"run_id"`
	Label string `yaml:"label"`
	// MaxID skips the max-id scan of the source.
	MaxID *int64 `yaml:"max_id,omitempty"`
}

// OutputConfig selects and tunes the output.
type OutputConfig struct {
	Name        string `yaml:"name"`
	Encoder     string `yaml:"encoder"`
	Path        string `yaml:"path"`
	Backend     string `yaml:"backend"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Dataset     string `yaml:"dataset"`
	DSN         string `yaml:"dsn"`

	Policy        string  `yaml:"policy"`
	BufferRecords int     `yaml:"buffer_records"`
	BufferBytes   int64   `yaml:"buffer_bytes"`
	RateLimit     float64 `yaml:"rate_limit"`
}

// AdapterConfig configures phase completion notifications.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Backoff Duration          `yaml:"backoff,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration parses "10s"-style strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// MetricsEnabled reports whether the metrics record should be written.
// Default true.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics == nil || *c.Metrics
}
