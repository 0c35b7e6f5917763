// =============================================================================
// FETCHQ CONFIGURATION - CONFIG FILE LOADING
// =============================================================================
//
// CONFIG FILE FORMAT (fetchq.yaml):
//
//   api:
//     addr: ":8080"
//     read_timeout: 30s
//     write_timeout: 30s
//   fetcher:
//     max_partitions_per_request: 0     # 0 = no limit
//   metrics:
//     enabled: true
//     namespace: fetchq
//   assignment:
//     - topic: orders
//       partitions: [0, 1, 2]
//       offset: 0
//     - topic: payments
//       partitions: [0]
//
// PRECEDENCE (highest to lowest):
//   1. Command-line flags (--addr, --max-partitions)
//   2. Config file
//   3. Default values
//
// A missing file is not an error: Load returns the defaults.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fetchq/internal/metrics"
	"fetchq/pkg/fetchorder"
)

// File is the on-disk configuration of a fetchq process.
type File struct {
	API        APIConfig         `yaml:"api"`
	Fetcher    FetcherConfig     `yaml:"fetcher"`
	Metrics    metrics.Config    `yaml:"metrics"`
	Assignment []TopicAssignment `yaml:"assignment,omitempty"`
}

// APIConfig configures the HTTP admin API.
type APIConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// FetcherConfig configures fetch planning.
type FetcherConfig struct {
	// MaxPartitionsPerRequest caps a planned fetch. 0 means no cap.
	MaxPartitionsPerRequest int `yaml:"max_partitions_per_request"`
}

// TopicAssignment assigns partitions of one topic, all starting at Offset.
type TopicAssignment struct {
	Topic      string  `yaml:"topic"`
	Partitions []int32 `yaml:"partitions"`
	Offset     int64   `yaml:"offset,omitempty"`
}

// Default returns the built-in configuration.
func Default() *File {
	return &File{
		API: APIConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Metrics: metrics.DefaultConfig(),
	}
}

// Load reads the configuration at path on top of the defaults. An empty
// path or a missing file yields the defaults.
func Load(path string) (*File, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile is Load for callers that need the file to exist.
func LoadFile(path string) (*File, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAssignment reads a standalone assignment file: a YAML list of
// TopicAssignment entries.
func LoadAssignment(path string) ([]TopicAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assignment file: %w", err)
	}

	var assignment []TopicAssignment
	if err := yaml.Unmarshal(data, &assignment); err != nil {
		return nil, fmt.Errorf("failed to parse assignment file %s: %w", path, err)
	}
	if errs := validateAssignment(assignment); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return assignment, nil
}

// PartitionAssignment returns the configured partitions with their starting
// offsets, in file order.
func (f *File) PartitionAssignment() *fetchorder.Assignment[int64] {
	return BuildAssignment(f.Assignment)
}

// BuildAssignment flattens topic entries into an ordered assignment.
func BuildAssignment(entries []TopicAssignment) *fetchorder.Assignment[int64] {
	a := fetchorder.NewAssignment[int64]()
	for _, ta := range entries {
		for _, p := range ta.Partitions {
			a.Put(fetchorder.TopicPartition{Topic: ta.Topic, Partition: p}, ta.Offset)
		}
	}
	return a
}
