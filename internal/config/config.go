package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/outreach-engine/internal/engine"
	"github.com/ignite/outreach-engine/internal/esp"
	"github.com/ignite/outreach-engine/internal/ratelimit"
	"github.com/ignite/outreach-engine/internal/service/dispatch"
	"github.com/ignite/outreach-engine/internal/service/reputation"
	"github.com/ignite/outreach-engine/internal/service/warmup"
)

// Config holds all configuration for the engine processes
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Database   DatabaseConfig      `yaml:"database"`
	Redis      RedisConfig         `yaml:"redis"`
	Logging    LoggingConfig       `yaml:"logging"`
	Dispatch   dispatch.Config     `yaml:"dispatch"`
	Warmup     WarmupConfig        `yaml:"warmup"`
	Reputation reputation.Policy   `yaml:"reputation"`
	Reconcile  ReconcileConfig     `yaml:"reconcile"`
	Schedule   ScheduleConfig      `yaml:"schedule"`
	OrgLimits  ratelimit.OrgLimits `yaml:"org_limits"`
	SES        esp.SESConfig       `yaml:"ses"`
	SMTP       esp.SMTPConfig      `yaml:"smtp"`
	Webhooks   WebhookConfig       `yaml:"webhooks"`
	Notify     NotifyConfig        `yaml:"notify"`

	// Sandbox registers the in-memory transport for accounts with provider
	// "sandbox". Never enable in production.
	Sandbox bool `yaml:"sandbox" env:"ENABLE_SANDBOX_TRANSPORT"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Addr returns host:port, listening on all interfaces inside containers.
func (c ServerConfig) Addr() string {
	host := c.Host
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL             string        `yaml:"url" env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig holds the Redis settings used for locks and org limits.
// An empty URL disables both.
type RedisConfig struct {
	URL string `yaml:"url" env:"REDIS_URL"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level" env:"LOG_LEVEL"`
	RedactPII bool   `yaml:"redact_pii" env:"LOG_REDACT_PII"`
}

// WarmupConfig holds the warm-up tier ramp
type WarmupConfig struct {
	Schedule warmup.Schedule `yaml:"schedule"`
}

// ReconcileConfig holds per-message lock settings for event application
type ReconcileConfig struct {
	LockPrefix string        `yaml:"lock_prefix"`
	LockTTL    time.Duration `yaml:"lock_ttl"`
}

// ScheduleConfig holds the worker trigger intervals. A zero interval
// disables the trigger.
type ScheduleConfig struct {
	Dispatch   time.Duration `yaml:"dispatch" env:"SCHEDULE_DISPATCH"`
	Warmup     time.Duration `yaml:"warmup" env:"SCHEDULE_WARMUP"`
	Reputation time.Duration `yaml:"reputation" env:"SCHEDULE_REPUTATION"`
	StaleSweep time.Duration `yaml:"stale_sweep" env:"SCHEDULE_STALE_SWEEP"`
	QuotaReset time.Duration `yaml:"quota_reset" env:"SCHEDULE_QUOTA_RESET"`
	// LockTTL bounds how long one worker may hold a trigger.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// Interval returns the configured interval for a trigger.
func (c ScheduleConfig) Interval(t engine.Trigger) time.Duration {
	switch t {
	case engine.TriggerDispatch:
		return c.Dispatch
	case engine.TriggerWarmup:
		return c.Warmup
	case engine.TriggerReputation:
		return c.Reputation
	case engine.TriggerStaleSweep:
		return c.StaleSweep
	case engine.TriggerQuotaReset:
		return c.QuotaReset
	}
	return 0
}

// WebhookConfig holds the provider event ingestion settings
type WebhookConfig struct {
	SQSQueueURL   string `yaml:"sqs_queue_url" env:"SES_EVENTS_QUEUE_URL"`
	ArchiveBucket string `yaml:"archive_bucket" env:"WEBHOOK_ARCHIVE_BUCKET"`
	ArchivePrefix string `yaml:"archive_prefix"`
}

// NotifyConfig holds the operational notification settings. With no AMQP
// URL notifications are only logged.
type NotifyConfig struct {
	AMQPURL string `yaml:"amqp_url" env:"AMQP_URL"`
	Queue   string `yaml:"queue" env:"NOTIFY_QUEUE"`
}

// Engine returns the service settings in the shape engine.New takes.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Dispatch:   c.Dispatch,
		Warmup:     c.Warmup.Schedule,
		Reputation: c.Reputation,
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 20 * time.Second
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	def := dispatch.DefaultConfig()
	if c.Dispatch.MinInterval == nil {
		c.Dispatch.MinInterval = def.MinInterval
	}
	if c.Dispatch.DefaultMinInterval == 0 {
		c.Dispatch.DefaultMinInterval = def.DefaultMinInterval
	}
	if c.Warmup.Schedule == nil {
		c.Warmup.Schedule = warmup.DefaultSchedule
	}
	if c.Reputation == (reputation.Policy{}) {
		c.Reputation = reputation.DefaultPolicy()
	}

	if c.Reconcile.LockPrefix == "" {
		c.Reconcile.LockPrefix = "outreach:event"
	}
	if c.Reconcile.LockTTL == 0 {
		c.Reconcile.LockTTL = 30 * time.Second
	}

	if c.Schedule == (ScheduleConfig{}) {
		c.Schedule = ScheduleConfig{
			Dispatch:   time.Minute,
			Warmup:     time.Hour,
			Reputation: 15 * time.Minute,
			StaleSweep: 5 * time.Minute,
			QuotaReset: time.Hour,
		}
	}
	if c.Schedule.LockTTL == 0 {
		c.Schedule.LockTTL = 10 * time.Minute
	}

	if c.SES.Region == "" {
		c.SES.Region = "us-west-2"
	}
	if c.Webhooks.ArchivePrefix == "" {
		c.Webhooks.ArchivePrefix = "webhook-rejects"
	}
	if c.Notify.Queue == "" {
		c.Notify.Queue = "outreach.notifications"
	}
}

// Validate checks settings that would only fail later at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if err := c.Warmup.Schedule.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("warmup.schedule: %w", err))
	}
	if err := c.Reputation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("reputation: %w", err))
	}
	for name, d := range map[string]time.Duration{
		"dispatch": c.Schedule.Dispatch, "warmup": c.Schedule.Warmup,
		"reputation": c.Schedule.Reputation, "stale_sweep": c.Schedule.StaleSweep,
		"quota_reset": c.Schedule.QuotaReset,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("schedule.%s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}

// Load reads and parses the configuration file and applies defaults
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

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on ECS. An empty path skips the
// file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
