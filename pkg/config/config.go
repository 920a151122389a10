// Package config loads runtime configuration from environment variables,
// with an optional YAML file overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the subsystem's configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KeyPrefix       string
	MaxEventsPerKey int64
	EventTTL        time.Duration
	MaxReplayEvents int64
	CleanupScanRate float64

	ArchivePath string
	LogLevel    string

	OTLPEndpoint     string
	TelemetryEnabled bool
}

// Load loads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	cfg := &Config{
		RedisAddr:        getEnv("SIMTRACE_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("SIMTRACE_REDIS_PASSWORD"),
		RedisDB:          getEnvInt("SIMTRACE_REDIS_DB", 0),
		KeyPrefix:        getEnv("SIMTRACE_KEY_PREFIX", "simtrace:events:"),
		MaxEventsPerKey:  int64(getEnvInt("SIMTRACE_MAX_EVENTS_PER_KEY", 1000)),
		EventTTL:         getEnvDuration("SIMTRACE_EVENT_TTL", 30*24*time.Hour),
		MaxReplayEvents:  int64(getEnvInt("SIMTRACE_MAX_REPLAY_EVENTS", 1000)),
		CleanupScanRate:  getEnvFloat("SIMTRACE_CLEANUP_SCAN_RATE", 0),
		ArchivePath:      getEnv("SIMTRACE_ARCHIVE_PATH", "simtrace-archive.db"),
		LogLevel:         getEnv("SIMTRACE_LOG_LEVEL", "INFO"),
		OTLPEndpoint:     getEnv("SIMTRACE_OTLP_ENDPOINT", "localhost:4317"),
		TelemetryEnabled: os.Getenv("SIMTRACE_TELEMETRY") == "true",
	}
	return cfg
}

// fileConfig mirrors Config with YAML tags; durations are strings in
// Go duration syntax ("720h"). Pointer fields distinguish "unset" from
// zero so the file only overrides what it names.
type fileConfig struct {
	RedisAddr        *string  `yaml:"redis_addr"`
	RedisPassword    *string  `yaml:"redis_password"`
	RedisDB          *int     `yaml:"redis_db"`
	KeyPrefix        *string  `yaml:"key_prefix"`
	MaxEventsPerKey  *int64   `yaml:"max_events_per_key"`
	EventTTL         *string  `yaml:"event_ttl"`
	MaxReplayEvents  *int64   `yaml:"max_replay_events"`
	CleanupScanRate  *float64 `yaml:"cleanup_scan_rate"`
	ArchivePath      *string  `yaml:"archive_path"`
	LogLevel         *string  `yaml:"log_level"`
	OTLPEndpoint     *string  `yaml:"otlp_endpoint"`
	TelemetryEnabled *bool    `yaml:"telemetry_enabled"`
}

// LoadFile loads environment configuration, then overlays the YAML file
// at path on top of it.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	if fc.RedisAddr != nil {
		cfg.RedisAddr = *fc.RedisAddr
	}
	if fc.RedisPassword != nil {
		cfg.RedisPassword = *fc.RedisPassword
	}
	if fc.RedisDB != nil {
		cfg.RedisDB = *fc.RedisDB
	}
	if fc.KeyPrefix != nil {
		cfg.KeyPrefix = *fc.KeyPrefix
	}
	if fc.MaxEventsPerKey != nil {
		cfg.MaxEventsPerKey = *fc.MaxEventsPerKey
	}
	if fc.EventTTL != nil {
		d, err := time.ParseDuration(*fc.EventTTL)
		if err != nil {
			return nil, fmt.Errorf("parse event_ttl %q: %w", *fc.EventTTL, err)
		}
		cfg.EventTTL = d
	}
	if fc.MaxReplayEvents != nil {
		cfg.MaxReplayEvents = *fc.MaxReplayEvents
	}
	if fc.CleanupScanRate != nil {
		cfg.CleanupScanRate = *fc.CleanupScanRate
	}
	if fc.ArchivePath != nil {
		cfg.ArchivePath = *fc.ArchivePath
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *fc.OTLPEndpoint
	}
	if fc.TelemetryEnabled != nil {
		cfg.TelemetryEnabled = *fc.TelemetryEnabled
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
