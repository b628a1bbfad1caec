// Package config defines the storage engine's YAML-driven configuration:
// log, snapshot, entry, prune, and metrics sections.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete on-disk configuration structure.
type Config struct {
	Log struct {
		Dir string `yaml:"dir"`
	} `yaml:"log"`

	Snapshot struct {
		Dir      string        `yaml:"dir"`
		Interval time.Duration `yaml:"interval"`
	} `yaml:"snapshot"`

	Entry struct {
		MaxEntrySize         int  `yaml:"max_entry_size"`
		DeflateSnapshots     bool `yaml:"deflate_snapshots"`
		DeduplicateSnapshots bool `yaml:"deduplicate_snapshots"`
	} `yaml:"entry"`

	Prune struct {
		Interval     time.Duration `yaml:"interval"`
		PerJobRetain int           `yaml:"per_job_retain"`
		ThresholdMs  int64         `yaml:"threshold_ms"`
	} `yaml:"prune"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

// Default matches the defaults the engine and stream manager already fall
// back to when a caller constructs them directly, so a config file is
// optional rather than required.
func Default() Config {
	var c Config
	c.Log.Dir = "./data/log"
	c.Snapshot.Dir = "./data/snapshot"
	c.Snapshot.Interval = 5 * time.Minute
	c.Entry.MaxEntrySize = 1 << 30
	c.Entry.DeflateSnapshots = false
	c.Entry.DeduplicateSnapshots = true
	c.Prune.PerJobRetain = 5
	c.Metrics.Enabled = false
	c.Metrics.Port = 9090
	return c
}

// Load reads and parses a YAML config file at path, starting from Default
// and overlaying whatever the file sets.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
