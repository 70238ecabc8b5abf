// Package config provides YAML-backed configuration for the cdbms engine:
// storage paths, per-cache-class sizing, worker pool sizing, and retry
// policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete engine configuration.
type Configuration struct {
	Global      GlobalConfig      `yaml:"global"`
	Storage     StorageConfig     `yaml:"storage"`
	Cache       CacheConfig       `yaml:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Retry       RetryConfig       `yaml:"retry"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Features    FeatureConfig     `yaml:"features"`
}

// GlobalConfig represents global engine settings.
type GlobalConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
	MetricsPort int    `yaml:"metrics_port"`
}

// StorageConfig locates container files on disk.
type StorageConfig struct {
	// BasePath is the root directory under which database/table/directory/
	// page container files are created.
	BasePath string `yaml:"base_path"`

	// DatabaseExt/TableExt/DirectoryExt/PageExt are read from configuration
	// but not used by the engine: internal/container appends its own fixed
	// extensions (db, tbl, dir, pag) to each container's short name.
	DatabaseExt  string `yaml:"database_ext"`
	TableExt     string `yaml:"table_ext"`
	DirectoryExt string `yaml:"directory_ext"`
	PageExt      string `yaml:"page_ext"`
}

// CacheConfig configures the per-cache-class global container cache.
type CacheConfig struct {
	EvictionPolicy string             `yaml:"eviction_policy"`
	Database       CacheClassConfig   `yaml:"database"`
	Table          CacheClassConfig   `yaml:"table"`
	Directory      CacheClassConfig   `yaml:"directory"`
	Page           CacheClassConfig   `yaml:"page"`
}

// CacheClassConfig sizes a single cache class (e.g. all loaded pages).
type CacheClassConfig struct {
	MaxEntries int           `yaml:"max_entries"`
	MaxSize    string        `yaml:"max_size"`
	TTL        time.Duration `yaml:"ttl"`
}

// ConcurrencyConfig holds worker-pool and parallel-delete limits. Validate
// checks them, but the kernel and container layers do not read them.
type ConcurrencyConfig struct {
	WorkerPoolSize     int `yaml:"worker_pool_size"`
	MaxParallelDeletes int `yaml:"max_parallel_deletes"`
}

// RetryConfig configures internal/blockfs's retry wrapper around
// transient I/O failures.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// MonitoringConfig represents monitoring settings.
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// MetricsConfig represents metrics settings.
type MetricsConfig struct {
	Enabled    bool `yaml:"enabled"`
	Prometheus bool `yaml:"prometheus"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Structured bool   `yaml:"structured"`
	Format     string `yaml:"format"`
}

// FeatureConfig represents feature flags.
type FeatureConfig struct {
	// DirectorySaveOptimization is not read by the engine: every container's
	// Save skips re-writing its file when the checksum has not changed since
	// the last save, whatever this flag says.
	DirectorySaveOptimization bool `yaml:"directory_save_optimization"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:    "INFO",
			LogFile:     "",
			MetricsPort: 9090,
		},
		Storage: StorageConfig{
			BasePath:     "./data",
			DatabaseExt:  "db",
			TableExt:     "tbl",
			DirectoryExt: "dir",
			PageExt:      "pg",
		},
		Cache: CacheConfig{
			EvictionPolicy: "lru",
			Database:       CacheClassConfig{MaxEntries: 16, TTL: 0},
			Table:          CacheClassConfig{MaxEntries: 256, TTL: 0},
			Directory:      CacheClassConfig{MaxEntries: 1024, TTL: 0},
			Page:           CacheClassConfig{MaxEntries: 4096, TTL: 0},
		},
		Concurrency: ConcurrencyConfig{
			WorkerPoolSize:     8,
			MaxParallelDeletes: 8,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:    true,
				Prometheus: true,
			},
			Logging: LoggingConfig{
				Structured: true,
				Format:     "text",
			},
		},
		Features: FeatureConfig{
			DirectorySaveOptimization: true,
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration overrides from environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("CDBMS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("CDBMS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("CDBMS_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Global.MetricsPort = port
		}
	}

	if val := os.Getenv("CDBMS_BASE_PATH"); val != "" {
		c.Storage.BasePath = val
	}

	if val := os.Getenv("CDBMS_WORKER_POOL_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			c.Concurrency.WorkerPoolSize = size
		}
	}

	if val := os.Getenv("CDBMS_DIRECTORY_SAVE_OPTIMIZATION"); val != "" {
		c.Features.DirectorySaveOptimization = strings.ToLower(val) == "true"
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("storage.base_path must not be empty")
	}

	if c.Concurrency.WorkerPoolSize <= 0 {
		return fmt.Errorf("concurrency.worker_pool_size must be greater than 0")
	}

	if c.Concurrency.MaxParallelDeletes <= 0 {
		return fmt.Errorf("concurrency.max_parallel_deletes must be greater than 0")
	}

	validLogLevels := []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if c.Global.LogLevel == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}
