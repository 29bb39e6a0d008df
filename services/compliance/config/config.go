// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the compliance service configuration.
//
// # Description
//
// Configuration comes from an optional YAML file, then environment
// variables, then defaults for anything still unset. The JWT secret is
// never read from the YAML file; it comes from VROOMX_JWT_SECRET or the
// file named by VROOMX_JWT_SECRET_FILE (or auth.jwt_secret_file).
//
// # Environment Variables
//
//   - VROOMX_PORT, GIN_MODE
//   - VROOMX_DATA_DIR, VROOMX_IN_MEMORY
//   - VROOMX_JWT_SECRET, VROOMX_JWT_SECRET_FILE, VROOMX_JWT_TTL
//   - VROOMX_TRACING_ENABLED, OTEL_TRACES_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT
//   - VROOMX_METRICS_ENABLED
//   - VROOMX_UPLOAD_DIR, VROOMX_GCS_BUCKET, GOOGLE_APPLICATION_CREDENTIALS
//   - INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET
//   - OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL
//   - VROOMX_AUDIT_LOG
//   - VROOMX_JOBS_ENABLED, VROOMX_TASK_HOUR, VROOMX_SCORE_INTERVAL
//   - VROOMX_MAINTENANCE_FILE
//   - VROOMX_LOG_LEVEL, VROOMX_LOG_DIR, VROOMX_LOG_JSON
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength matches the token issuer's minimum.
const MinJWTSecretLength = 32

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Auth        AuthConfig        `yaml:"auth"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Blobs       BlobConfig        `yaml:"blobs"`
	Influx      InfluxConfig      `yaml:"influx"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Audit       AuditConfig       `yaml:"audit"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	InMemory bool   `yaml:"in_memory"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"-"`
	JWTSecretFile string        `yaml:"jwt_secret_file"`
	JWTTTL        time.Duration `yaml:"jwt_ttl"`
}

// TracingConfig selects the span exporter: "otlp" sends to Endpoint over
// gRPC, "stdout" pretty-prints spans for local debugging.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// BlobConfig selects the document store. A GCS bucket takes precedence
// over the local directory.
type BlobConfig struct {
	LocalDir           string `yaml:"local_dir"`
	GCSBucket          string `yaml:"gcs_bucket"`
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// InfluxConfig enables the score history sink when URL is set.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// OpenAIConfig enables drafted DataQ letters when APIKey is set.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type AuditConfig struct {
	LogPath string `yaml:"log_path"`
}

type JobsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TaskHour      int           `yaml:"task_hour"`
	ScoreInterval time.Duration `yaml:"score_interval"`
	RetentionHour int           `yaml:"retention_hour"`
}

type MaintenanceConfig struct {
	File string `yaml:"file"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 8080, GinMode: "release"},
		Storage: StorageConfig{DataDir: "./data/badger"},
		Auth:    AuthConfig{JWTTTL: 7 * 24 * time.Hour},
		Tracing: TracingConfig{Exporter: "otlp", Endpoint: "otel-collector:4317"},
		Metrics: MetricsConfig{Enabled: true},
		Blobs:   BlobConfig{LocalDir: "./data/uploads"},
		OpenAI:  OpenAIConfig{Model: "gpt-4o-mini"},
		Audit:   AuditConfig{LogPath: "./logs/audit.log"},
		Jobs:    JobsConfig{Enabled: true, TaskHour: 6, ScoreInterval: 6 * time.Hour, RetentionHour: 3},
		Logging: LoggingConfig{Level: "info", JSON: true},
	}
}

// Load reads path (optional), applies environment overrides and fills
// defaults.
//
// Outputs:
//
//	Config - The merged configuration. Call Validate before use.
//	error - Non-nil if path or the secret file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWTSecretFile != "" {
		data, err := os.ReadFile(cfg.Auth.JWTSecretFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read JWT secret file: %w", err)
		}
		cfg.Auth.JWTSecret = strings.TrimSpace(string(data))
	}
	return ApplyDefaults(cfg), nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("VROOMX_PORT", cfg.Server.Port)
	cfg.Server.GinMode = getEnvString("GIN_MODE", cfg.Server.GinMode)

	cfg.Storage.DataDir = getEnvString("VROOMX_DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.InMemory = getEnvBool("VROOMX_IN_MEMORY", cfg.Storage.InMemory)

	cfg.Auth.JWTSecret = getEnvString("VROOMX_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTSecretFile = getEnvString("VROOMX_JWT_SECRET_FILE", cfg.Auth.JWTSecretFile)
	cfg.Auth.JWTTTL = getEnvDuration("VROOMX_JWT_TTL", cfg.Auth.JWTTTL)

	cfg.Tracing.Enabled = getEnvBool("VROOMX_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnvString("OTEL_TRACES_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Metrics.Enabled = getEnvBool("VROOMX_METRICS_ENABLED", cfg.Metrics.Enabled)

	cfg.Blobs.LocalDir = getEnvString("VROOMX_UPLOAD_DIR", cfg.Blobs.LocalDir)
	cfg.Blobs.GCSBucket = getEnvString("VROOMX_GCS_BUCKET", cfg.Blobs.GCSBucket)
	cfg.Blobs.GCSCredentialsFile = getEnvString("GOOGLE_APPLICATION_CREDENTIALS", cfg.Blobs.GCSCredentialsFile)

	cfg.Influx.URL = getEnvString("INFLUXDB_URL", cfg.Influx.URL)
	cfg.Influx.Token = getEnvString("INFLUXDB_TOKEN", cfg.Influx.Token)
	cfg.Influx.Org = getEnvString("INFLUXDB_ORG", cfg.Influx.Org)
	cfg.Influx.Bucket = getEnvString("INFLUXDB_BUCKET", cfg.Influx.Bucket)

	cfg.OpenAI.APIKey = getEnvString("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.Model = getEnvString("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.BaseURL = getEnvString("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)

	cfg.Audit.LogPath = getEnvString("VROOMX_AUDIT_LOG", cfg.Audit.LogPath)

	cfg.Jobs.Enabled = getEnvBool("VROOMX_JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.TaskHour = getEnvInt("VROOMX_TASK_HOUR", cfg.Jobs.TaskHour)
	cfg.Jobs.ScoreInterval = getEnvDuration("VROOMX_SCORE_INTERVAL", cfg.Jobs.ScoreInterval)

	cfg.Maintenance.File = getEnvString("VROOMX_MAINTENANCE_FILE", cfg.Maintenance.File)

	cfg.Logging.Level = getEnvString("VROOMX_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Dir = getEnvString("VROOMX_LOG_DIR", cfg.Logging.Dir)
	cfg.Logging.JSON = getEnvBool("VROOMX_LOG_JSON", cfg.Logging.JSON)
}

// ApplyDefaults fills zero values a file or environment may have cleared.
func ApplyDefaults(cfg Config) Config {
	def := Default()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.GinMode == "" {
		cfg.Server.GinMode = def.Server.GinMode
	}
	if cfg.Storage.DataDir == "" && !cfg.Storage.InMemory {
		cfg.Storage.DataDir = def.Storage.DataDir
	}
	if cfg.Auth.JWTTTL <= 0 {
		cfg.Auth.JWTTTL = def.Auth.JWTTTL
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = def.Tracing.Exporter
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = def.Tracing.Endpoint
	}
	if cfg.Blobs.LocalDir == "" && cfg.Blobs.GCSBucket == "" {
		cfg.Blobs.LocalDir = def.Blobs.LocalDir
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = def.OpenAI.Model
	}
	if cfg.Jobs.ScoreInterval <= 0 {
		cfg.Jobs.ScoreInterval = def.Jobs.ScoreInterval
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	return cfg
}

// Validate reports settings the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("server.gin_mode must be debug, release or test, got %q", c.Server.GinMode))
	}
	switch c.Tracing.Exporter {
	case "otlp", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter must be otlp or stdout, got %q", c.Tracing.Exporter))
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT secret must be at least %d characters (set VROOMX_JWT_SECRET)", MinJWTSecretLength))
	}
	if c.Jobs.TaskHour < 0 || c.Jobs.TaskHour > 23 {
		errs = append(errs, fmt.Errorf("jobs.task_hour %d out of range", c.Jobs.TaskHour))
	}
	if c.Jobs.RetentionHour < 0 || c.Jobs.RetentionHour > 23 {
		errs = append(errs, fmt.Errorf("jobs.retention_hour %d out of range", c.Jobs.RetentionHour))
	}
	if c.Influx.URL != "" && (c.Influx.Org == "" || c.Influx.Bucket == "") {
		errs = append(errs, errors.New("influx.org and influx.bucket are required when influx.url is set"))
	}
	return errors.Join(errs...)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
