package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Export    ExportConfig    `yaml:"export"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (c ServerConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL                string `yaml:"url"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMin int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pool connection lifetime.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMin) * time.Minute
}

// RedisConfig holds Redis settings. An empty URL disables Redis and locks
// fall back to PostgreSQL advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SchedulerConfig holds the recurrence sweeper settings.
type SchedulerConfig struct {
	Enabled              bool   `yaml:"enabled"`
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
	MisfireWindowMinutes int    `yaml:"misfire_window_minutes"`
	LockTTLSeconds       int    `yaml:"lock_ttl_seconds"`
	DefaultTimezone      string `yaml:"default_timezone"`
}

func (c SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c SchedulerConfig) MisfireWindow() time.Duration {
	return time.Duration(c.MisfireWindowMinutes) * time.Minute
}

func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// IngestConfig routes webhook events through SQS when QueueURL is set.
// Otherwise the API writes events straight to Postgres.
type IngestConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

// Queued reports whether ingestion goes through SQS.
func (c IngestConfig) Queued() bool { return c.QueueURL != "" }

// DispatchConfig configures where the worker announces due fires. With no
// WebhookURL the worker records fires in the schedule_fires table only.
type DispatchConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExportConfig holds the S3 report destination and the optional DynamoDB
// table that keeps summary snapshots.
type ExportConfig struct {
	S3Bucket      string `yaml:"s3_bucket"`
	SnapshotTable string `yaml:"snapshot_table"`
	S3Region      string `yaml:"s3_region"`
	S3Prefix      string `yaml:"s3_prefix"`
	AWSProfile    string `yaml:"aws_profile"`
}

// TrackingConfig holds open/click link settings. An empty SigningKey
// accepts unsigned links.
type TrackingConfig struct {
	BaseURL    string `yaml:"base_url"`
	SigningKey string `yaml:"signing_key"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for commands
// run without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMin == 0 {
		cfg.Database.ConnMaxLifetimeMin = 30
	}
	if cfg.Scheduler.SweepIntervalSeconds == 0 {
		cfg.Scheduler.SweepIntervalSeconds = 60
	}
	if cfg.Scheduler.MisfireWindowMinutes == 0 {
		cfg.Scheduler.MisfireWindowMinutes = 15
	}
	if cfg.Scheduler.LockTTLSeconds == 0 {
		cfg.Scheduler.LockTTLSeconds = 120
	}
	if cfg.Scheduler.DefaultTimezone == "" {
		cfg.Scheduler.DefaultTimezone = "UTC"
	}
	if cfg.Ingest.Region == "" {
		cfg.Ingest.Region = "us-west-2"
	}
	if cfg.Dispatch.TimeoutSeconds == 0 {
		cfg.Dispatch.TimeoutSeconds = 10
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Export.S3Region == "" {
		cfg.Export.S3Region = "us-west-2"
	}
	if cfg.Export.S3Prefix == "" {
		cfg.Export.S3Prefix = "reports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. An empty
// path skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWEEP_INTERVAL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("SWEEP_INTERVAL_SECONDS: invalid value %q", v)
		}
		cfg.Scheduler.SweepIntervalSeconds = n
	}
	if v := os.Getenv("DEFAULT_TIMEZONE"); v != "" {
		cfg.Scheduler.DefaultTimezone = v
	}
	if v := os.Getenv("INGEST_QUEUE_URL"); v != "" {
		cfg.Ingest.QueueURL = v
	}
	if v := os.Getenv("DISPATCH_WEBHOOK_URL"); v != "" {
		cfg.Dispatch.WebhookURL = v
	}
	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Export.S3Bucket = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("EXPORT_SNAPSHOT_TABLE"); v != "" {
		cfg.Export.SnapshotTable = v
	}
	if v := os.Getenv("EXPORT_S3_REGION"); v != "" {
		cfg.Export.S3Region = v
	}
	return nil
}
