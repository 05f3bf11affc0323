package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/emcode/internal/pipeline"
)

const (
	EnvServerHost            = "EMCODE_SERVER_HOST"
	EnvServerPort            = "EMCODE_SERVER_PORT"
	EnvServerReadTimeout     = "EMCODE_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "EMCODE_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout = "EMCODE_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP listener parameters. WriteTimeout must outlast the
// longest batch long-poll, pipeline.MaxWait.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	return d
}

func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	for dst, v := range map[*string]string{
		&c.Host:            overlay.Host,
		&c.ReadTimeout:     overlay.ReadTimeout,
		&c.WriteTimeout:    overlay.WriteTimeout,
		&c.ShutdownTimeout: overlay.ShutdownTimeout,
	} {
		if v != "" {
			*dst = v
		}
	}
}

func (c *ServerConfig) loadDefaults() {
	defaults := ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     "1m",
		WriteTimeout:    "15m",
		ShutdownTimeout: "30s",
	}
	defaults.Merge(c)
	*c = defaults
}

func (c *ServerConfig) loadEnv() {
	if v, err := strconv.Atoi(os.Getenv(EnvServerPort)); err == nil {
		c.Port = v
	}
	c.Merge(&ServerConfig{
		Host:            os.Getenv(EnvServerHost),
		ReadTimeout:     os.Getenv(EnvServerReadTimeout),
		WriteTimeout:    os.Getenv(EnvServerWriteTimeout),
		ShutdownTimeout: os.Getenv(EnvServerShutdownTimeout),
	})
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, f := range [][2]string{
		{"read_timeout", c.ReadTimeout},
		{"write_timeout", c.WriteTimeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	} {
		if _, err := time.ParseDuration(f[1]); err != nil {
			return fmt.Errorf("invalid %s: %w", f[0], err)
		}
	}
	if c.WriteTimeoutDuration() <= pipeline.MaxWait {
		return fmt.Errorf("write_timeout %s must exceed the %s batch long-poll limit", c.WriteTimeout, pipeline.MaxWait)
	}
	return nil
}
