package dispatch

import (
	"time"

	"github.com/ignite/outreach-engine/internal/domain"
)

// Config tunes the dispatcher and its maintenance sweeps.
type Config struct {
	BatchSize      int           `yaml:"batch_size" env:"DISPATCH_BATCH_SIZE"`
	MaxAttempts    int           `yaml:"max_attempts" env:"DISPATCH_MAX_ATTEMPTS"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
	SendTimeout    time.Duration `yaml:"send_timeout" env:"DISPATCH_SEND_TIMEOUT"`
	Concurrency    int           `yaml:"concurrency" env:"DISPATCH_CONCURRENCY"`

	// MinInterval is the minimum spacing between two sends from the same
	// account, per provider kind.
	MinInterval        map[domain.ProviderKind]time.Duration `yaml:"min_interval"`
	DefaultMinInterval time.Duration                         `yaml:"default_min_interval"`

	StaleAfter time.Duration `yaml:"stale_after" env:"DISPATCH_STALE_AFTER"`
	MaxJobAge  time.Duration `yaml:"max_job_age" env:"DISPATCH_MAX_JOB_AGE"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		MaxAttempts:    3,
		RetryBaseDelay: time.Minute,
		RetryMaxDelay:  time.Hour,
		SendTimeout:    30 * time.Second,
		Concurrency:    8,
		MinInterval: map[domain.ProviderKind]time.Duration{
			domain.ProviderSES:     100 * time.Millisecond,
			domain.ProviderSMTP:    2 * time.Second,
			domain.ProviderGmail:   5 * time.Second,
			domain.ProviderOutlook: 5 * time.Second,
		},
		DefaultMinInterval: time.Second,
		StaleAfter:         10 * time.Minute,
		MaxJobAge:          72 * time.Hour,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = def.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = c.RetryBaseDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.MinInterval == nil {
		c.MinInterval = def.MinInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = def.StaleAfter
	}
	if c.MaxJobAge <= 0 {
		c.MaxJobAge = def.MaxJobAge
	}
}

func (c *Config) intervalFor(p domain.ProviderKind) time.Duration {
	if d, ok := c.MinInterval[p]; ok {
		return d
	}
	return c.DefaultMinInterval
}
