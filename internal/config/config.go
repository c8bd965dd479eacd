package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection for progress tracking and locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WatcherConfig holds S3 export-bucket watcher settings.
type WatcherConfig struct {
	Enabled         bool   `yaml:"enabled"`
	S3Bucket        string `yaml:"s3_bucket"`
	S3Region        string `yaml:"s3_region"`
	AWSProfile      string `yaml:"aws_profile"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	MaxConcurrent   int    `yaml:"max_concurrent"`
}

// Interval returns the poll interval as a duration.
func (c WatcherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// PipelineConfig holds the per-invocation transformation options. The struct
// is passed by value into each run; a long-lived pipeline never mutates it.
type PipelineConfig struct {
	BatchSize            int     `yaml:"batch_size"`
	MaxErrors            int     `yaml:"max_errors"`
	SkipValidation       bool    `yaml:"skip_validation"`
	DeduplicationEnabled bool    `yaml:"deduplication_enabled"`
	GapDetectionEnabled  bool    `yaml:"gap_detection_enabled"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	ConflictResolution   string  `yaml:"conflict_resolution"`
	Timezone             string  `yaml:"timezone"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if cfg.Pipeline.SimilarityThreshold < 0 || cfg.Pipeline.SimilarityThreshold > 1 {
		return nil, fmt.Errorf("pipeline.similarity_threshold must be in [0,1], got %v", cfg.Pipeline.SimilarityThreshold)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Watcher.IntervalMinutes == 0 {
		cfg.Watcher.IntervalMinutes = 5
	}
	if cfg.Watcher.MaxConcurrent == 0 {
		cfg.Watcher.MaxConcurrent = 4
	}
	if cfg.Watcher.S3Region == "" {
		cfg.Watcher.S3Region = "us-west-2"
	}
	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 1000
	}
	if cfg.Pipeline.MaxErrors == 0 {
		cfg.Pipeline.MaxErrors = 100
	}
	if cfg.Pipeline.SimilarityThreshold == 0 {
		cfg.Pipeline.SimilarityThreshold = 0.7
	}
	if cfg.Pipeline.ConflictResolution == "" {
		cfg.Pipeline.ConflictResolution = "keep_first"
	}
	if cfg.Pipeline.Timezone == "" {
		cfg.Pipeline.Timezone = "UTC"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads config with .env support and environment overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if bucket := os.Getenv("EXPORT_S3_BUCKET"); bucket != "" {
		cfg.Watcher.S3Bucket = bucket
	}
	if region := os.Getenv("EXPORT_S3_REGION"); region != "" {
		cfg.Watcher.S3Region = region
	}
	if tz := os.Getenv("PIPELINE_TIMEZONE"); tz != "" {
		cfg.Pipeline.Timezone = tz
	}

	return cfg, nil
}
