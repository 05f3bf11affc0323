package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvPipelineEnhanceTimeout = "EMCODE_PIPELINE_ENHANCE_TIMEOUT"
	EnvPipelineAuditTimeout   = "EMCODE_PIPELINE_AUDIT_TIMEOUT"
	EnvPipelineMaxConcurrency = "EMCODE_PIPELINE_MAX_CONCURRENCY"
	EnvPipelineStore          = "EMCODE_PIPELINE_STORE"
)

// Batch store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// PipelineConfig holds stage deadlines, fan-out width, and the batch store backend.
type PipelineConfig struct {
	EnhanceTimeout string `toml:"enhance_timeout"`
	AuditTimeout   string `toml:"audit_timeout"`
	MaxConcurrency int    `toml:"max_concurrency"`
	Store          string `toml:"store"`
}

// EnhanceTimeoutDuration returns EnhanceTimeout as a time.Duration.
func (c *PipelineConfig) EnhanceTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.EnhanceTimeout)
	return d
}

// AuditTimeoutDuration returns AuditTimeout as a time.Duration.
func (c *PipelineConfig) AuditTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.AuditTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *PipelineConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *PipelineConfig) Merge(overlay *PipelineConfig) {
	if overlay.EnhanceTimeout != "" {
		c.EnhanceTimeout = overlay.EnhanceTimeout
	}
	if overlay.AuditTimeout != "" {
		c.AuditTimeout = overlay.AuditTimeout
	}
	if overlay.MaxConcurrency != 0 {
		c.MaxConcurrency = overlay.MaxConcurrency
	}
	if overlay.Store != "" {
		c.Store = overlay.Store
	}
}

func (c *PipelineConfig) loadDefaults() {
	if c.EnhanceTimeout == "" {
		c.EnhanceTimeout = "15s"
	}
	if c.AuditTimeout == "" {
		c.AuditTimeout = "18s"
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 16
	}
	if c.Store == "" {
		c.Store = StorePostgres
	}
}

func (c *PipelineConfig) loadEnv() {
	if v := os.Getenv(EnvPipelineEnhanceTimeout); v != "" {
		c.EnhanceTimeout = v
	}
	if v := os.Getenv(EnvPipelineAuditTimeout); v != "" {
		c.AuditTimeout = v
	}
	if v := os.Getenv(EnvPipelineMaxConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrency = n
		}
	}
	if v := os.Getenv(EnvPipelineStore); v != "" {
		c.Store = v
	}
}

func (c *PipelineConfig) validate() error {
	if d, err := time.ParseDuration(c.EnhanceTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid enhance_timeout: %q", c.EnhanceTimeout)
	}
	if d, err := time.ParseDuration(c.AuditTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid audit_timeout: %q", c.AuditTimeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}
