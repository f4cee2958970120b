//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

// Package config loads and validates the snapshot store configuration
// from an optional JSON or YAML file, environment overrides applied on
// top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	entcfg "github.com/edstats/edstats/entities/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default file when no config file is provided
const DefaultConfigFile string = "./edstats.conf.json"

const (
	DefaultSnapshotsPath      = "/var/lib/edstats/snapshots"
	DefaultCacheTTL           = 5 * time.Minute
	DefaultListCacheTTL       = time.Minute
	DefaultMaxConcurrentReads = 8
	DefaultMonitoringPort     = 2112
)

// Versions names the producer-side version tags stamped into every new
// snapshot and checked on read.
type Versions struct {
	Schema      string `json:"schema" yaml:"schema"`
	Calculation string `json:"calculation" yaml:"calculation"`
	Ranking     string `json:"ranking" yaml:"ranking"`
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// Config is the root configuration of the snapshot store. Duration fields
// are nanosecond counts in config files; the environment overrides accept
// human-readable forms like "5m".
type Config struct {
	SnapshotsPath      string        `json:"snapshots_path" yaml:"snapshots_path"`
	CacheTTL           time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	ListCacheTTL       time.Duration `json:"list_cache_ttl" yaml:"list_cache_ttl"`
	MaxConcurrentReads int           `json:"max_concurrent_reads" yaml:"max_concurrent_reads"`
	Versions           Versions      `json:"versions" yaml:"versions"`
	DataSource         string        `json:"data_source" yaml:"data_source"`
	Monitoring         Monitoring    `json:"monitoring" yaml:"monitoring"`
}

func DefaultConfig() Config {
	return Config{
		SnapshotsPath:      DefaultSnapshotsPath,
		CacheTTL:           DefaultCacheTTL,
		ListCacheTTL:       DefaultListCacheTTL,
		MaxConcurrentReads: DefaultMaxConcurrentReads,
		Versions: Versions{
			Schema: "1.0",
		},
		Monitoring: Monitoring{
			Port: DefaultMonitoringPort,
		},
	}
}

func (c Config) Validate() error {
	if c.SnapshotsPath == "" {
		return fmt.Errorf("invalid config: snapshots_path must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("invalid config: cache_ttl must not be negative, got %s", c.CacheTTL)
	}
	if c.ListCacheTTL < 0 {
		return fmt.Errorf("invalid config: list_cache_ttl must not be negative, got %s", c.ListCacheTTL)
	}
	if c.MaxConcurrentReads < 1 {
		return fmt.Errorf("invalid config: max_concurrent_reads must be at least 1, got %d",
			c.MaxConcurrentReads)
	}
	if c.Versions.Schema == "" {
		return fmt.Errorf("invalid config: versions.schema must not be empty")
	}
	if c.Monitoring.Enabled && (c.Monitoring.Port < 1 || c.Monitoring.Port > 65535) {
		return fmt.Errorf("invalid config: monitoring.port %d out of range", c.Monitoring.Port)
	}
	return nil
}

// Load reads the config file at path, or the default file when path is
// empty. A missing default file is not an error; defaults plus environment
// overrides apply. A missing explicit file is.
func Load(path string, logger logrus.FieldLogger) (Config, error) {
	config := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		logger.WithField("action", "config_load").WithField("config_file_path", path).
			Info("Usage of the config file")
		config, err = parseConfigFile(file, path)
		if err != nil {
			return config, err
		}
	case os.IsNotExist(err) && !explicit:
		logger.WithField("action", "config_load").
			Info("No config file found, using defaults")
	default:
		return config, fmt.Errorf("read config file %q: %w", path, err)
	}

	config.fromEnv()

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func parseConfigFile(file []byte, name string) (Config, error) {
	config := DefaultConfig()

	m := regexp.MustCompile(`.*\.(\w+)$`).FindStringSubmatch(name)
	if len(m) < 2 {
		return config, fmt.Errorf("config file does not have a file ending, got '%s'", name)
	}

	switch m[1] {
	case "json":
		err := json.Unmarshal(file, &config)
		if err != nil {
			return config, fmt.Errorf("error unmarshalling the json config file: %w", err)
		}
	case "yaml", "yml":
		err := yaml.Unmarshal(file, &config)
		if err != nil {
			return config, fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	default:
		return config, fmt.Errorf("unsupported config file extension '%s', use .yaml or .json", m[1])
	}

	return config, nil
}

func (c *Config) fromEnv() {
	if v := os.Getenv("EDSTATS_SNAPSHOTS_PATH"); v != "" {
		c.SnapshotsPath = v
	}
	c.CacheTTL = entcfg.DurationFromEnv("EDSTATS_CACHE_TTL", c.CacheTTL)
	c.ListCacheTTL = entcfg.DurationFromEnv("EDSTATS_LIST_CACHE_TTL", c.ListCacheTTL)
	c.MaxConcurrentReads = entcfg.IntFromEnv("EDSTATS_MAX_CONCURRENT_READS", c.MaxConcurrentReads)

	if v := os.Getenv("EDSTATS_SCHEMA_VERSION"); v != "" {
		c.Versions.Schema = v
	}
	if v := os.Getenv("EDSTATS_CALCULATION_VERSION"); v != "" {
		c.Versions.Calculation = v
	}
	if v := os.Getenv("EDSTATS_RANKING_VERSION"); v != "" {
		c.Versions.Ranking = v
	}
	if v := os.Getenv("EDSTATS_DATA_SOURCE"); v != "" {
		c.DataSource = v
	}
	if v := os.Getenv("EDSTATS_MONITORING_ENABLED"); v != "" {
		c.Monitoring.Enabled = entcfg.Enabled(v)
	}
	c.Monitoring.Port = entcfg.IntFromEnv("EDSTATS_MONITORING_PORT", c.Monitoring.Port)
}
