package config

import (
	"fmt"
	"os"
	"time"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/emcode/pkg/database"
	"github.com/JaimeStill/emcode/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvEmcodeEnv             = "EMCODE_ENV"
	EnvEmcodeShutdownTimeout = "EMCODE_SHUTDOWN_TIMEOUT"
	EnvEmcodeVersion         = "EMCODE_VERSION"
)

// DatabaseEnv names the variables that override [database] settings. The
// migrate command reads them too.
var DatabaseEnv = &database.Env{
	Host:            "EMCODE_DB_HOST",
	Port:            "EMCODE_DB_PORT",
	Name:            "EMCODE_DB_NAME",
	User:            "EMCODE_DB_USER",
	Password:        "EMCODE_DB_PASSWORD",
	SSLMode:         "EMCODE_DB_SSL_MODE",
	MaxOpenConns:    "EMCODE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "EMCODE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "EMCODE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "EMCODE_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "EMCODE_STORAGE_CONTAINER_NAME",
	ConnectionString: "EMCODE_STORAGE_CONNECTION_STRING",
}

// Config is the root configuration for the emcode service.
type Config struct {
	Server          ServerConfig         `toml:"server"`
	Logging         LoggingConfig        `toml:"logging"`
	Database        database.Config      `toml:"database"`
	Storage         storage.Config       `toml:"storage"`
	API             APIConfig            `toml:"api"`
	Agent           gaconfig.AgentConfig `toml:"agent"`
	Pipeline        PipelineConfig       `toml:"pipeline"`
	ShutdownTimeout string               `toml:"shutdown_timeout"`
	Version         string               `toml:"version"`
}

// Env returns the EMCODE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvEmcodeEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// StorageEnabled reports whether blob storage is configured. Documents can
// only reference a storage_key when it is.
func (c *Config) StorageEnabled() bool {
	return c.Storage.ConnectionString != ""
}

// Load layers config.toml, then config.<EMCODE_ENV>.toml, then EMCODE_*
// variables over built-in defaults. Either file may be absent.
func Load() (*Config, error) {
	cfg := &Config{}

	for i, path := range sources() {
		layer, err := load(path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			cfg = layer
			continue
		}
		cfg.Merge(layer)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Logging.Merge(&overlay.Logging)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Agent.Merge(&overlay.Agent)
	c.Pipeline.Merge(&overlay.Pipeline)
}

func (c *Config) finalize() error {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
	if v := os.Getenv(EnvEmcodeShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvEmcodeVersion); v != "" {
		c.Version = v
	}
	if d, err := time.ParseDuration(c.ShutdownTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid shutdown_timeout %q", c.ShutdownTimeout)
	}

	steps := []struct {
		name     string
		enabled  bool
		finalize func() error
	}{
		{"logging", true, c.Logging.Finalize},
		{"server", true, c.Server.Finalize},
		{"pipeline", true, c.Pipeline.Finalize},
		{"database", c.Pipeline.Store == StorePostgres, func() error { return c.Database.Finalize(DatabaseEnv) }},
		{"storage", os.Getenv(storageEnv.ConnectionString) != "" || c.StorageEnabled(), func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", true, c.API.Finalize},
		{"agent", true, func() error { return FinalizeAgent(&c.Agent) }},
	}

	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.finalize(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	// the HTTP drain runs inside the process shutdown window.
	if c.Server.ShutdownTimeoutDuration() > c.ShutdownTimeoutDuration() {
		return fmt.Errorf(
			"server.shutdown_timeout %s exceeds shutdown_timeout %s",
			c.Server.ShutdownTimeout, c.ShutdownTimeout,
		)
	}
	return nil
}

func load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// sources returns the config files that exist, base first.
func sources() []string {
	candidates := []string{BaseConfigFile}
	if env := os.Getenv(EnvEmcodeEnv); env != "" {
		candidates = append(candidates, fmt.Sprintf(OverlayConfigPattern, env))
	}

	var paths []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}
	return paths
}
