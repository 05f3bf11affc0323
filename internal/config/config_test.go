package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/emcode/internal/config"
)

const baseConfig = `
shutdown_timeout = "30s"
version = "0.1.0"

[server]
host = "0.0.0.0"
port = 8080
read_timeout = "1m"
write_timeout = "15m"
shutdown_timeout = "30s"

[database]
host = "localhost"
port = 5432
name = "emcode"
user = "emcode"
password = "emcode"
ssl_mode = "disable"

[api]
base_path = "/api"
max_upload_size = "10MB"

[api.pagination]
default_page_size = 25
max_page_size = 50

[pipeline]
enhance_timeout = "20s"
max_concurrency = 8

[agent]
name = "coder"
`

const overlayConfig = `
[server]
port = 9090

[database]
host = "prodhost"

[pipeline]
audit_timeout = "30s"
`

// minimalConfig runs on the in-memory store so no database settings are required.
const minimalConfig = `
[pipeline]
store = "memory"
`

func writeConfig(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", filename, err)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func load(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeConfig(t, dir, name, content)
	}
	chdir(t, dir)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return cfg
}

func TestLoad(t *testing.T) {
	cfg := load(t, map[string]string{"config.toml": baseConfig})

	if cfg.Server.Port != 8080 {
		t.Errorf("server port: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "emcode" {
		t.Errorf("db name: got %s, want emcode", cfg.Database.Name)
	}
	if cfg.API.Pagination.DefaultPageSize != 25 || cfg.API.Pagination.MaxPageSize != 50 {
		t.Errorf("pagination: got %d/%d, want 25/50", cfg.API.Pagination.DefaultPageSize, cfg.API.Pagination.MaxPageSize)
	}
	if cfg.API.MaxUploadSizeBytes() != 10*1024*1024 {
		t.Errorf("max upload: got %d", cfg.API.MaxUploadSizeBytes())
	}
	if cfg.Pipeline.EnhanceTimeoutDuration() != 20*time.Second {
		t.Errorf("enhance timeout: got %v, want 20s", cfg.Pipeline.EnhanceTimeoutDuration())
	}
	if cfg.Pipeline.AuditTimeoutDuration() != 18*time.Second {
		t.Errorf("audit timeout: got %v, want 18s default", cfg.Pipeline.AuditTimeoutDuration())
	}
	if cfg.Pipeline.MaxConcurrency != 8 {
		t.Errorf("max concurrency: got %d, want 8", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.Pipeline.Store != config.StorePostgres {
		t.Errorf("store: got %s, want postgres", cfg.Pipeline.Store)
	}
	if cfg.Agent.Name != "coder" {
		t.Errorf("agent name: got %s, want coder", cfg.Agent.Name)
	}
	if cfg.StorageEnabled() {
		t.Error("storage should be disabled without a connection string")
	}
}

func TestLoadWithOverlay(t *testing.T) {
	t.Setenv("EMCODE_ENV", "staging")

	cfg := load(t, map[string]string{
		"config.toml":         baseConfig,
		"config.staging.toml": overlayConfig,
	})

	if cfg.Server.Port != 9090 {
		t.Errorf("server port: got %d, want 9090 (from overlay)", cfg.Server.Port)
	}
	if cfg.Database.Host != "prodhost" {
		t.Errorf("db host: got %s, want prodhost (from overlay)", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("db port: got %d, want 5432 (from base)", cfg.Database.Port)
	}
	if cfg.Pipeline.AuditTimeoutDuration() != 30*time.Second {
		t.Errorf("audit timeout: got %v, want 30s (from overlay)", cfg.Pipeline.AuditTimeoutDuration())
	}
	if cfg.Pipeline.EnhanceTimeoutDuration() != 20*time.Second {
		t.Errorf("enhance timeout: got %v, want 20s (from base)", cfg.Pipeline.EnhanceTimeoutDuration())
	}
	if cfg.Env() != "staging" {
		t.Errorf("env: got %s, want staging", cfg.Env())
	}
}

func TestLoadEnvVarOverrides(t *testing.T) {
	t.Setenv("EMCODE_VERSION", "2.0.0")
	t.Setenv("EMCODE_SERVER_PORT", "3000")
	t.Setenv("EMCODE_PIPELINE_MAX_CONCURRENCY", "32")
	t.Setenv("EMCODE_PIPELINE_ENHANCE_TIMEOUT", "5s")
	t.Setenv("EMCODE_API_MAX_UPLOAD_SIZE", "100MB")
	t.Setenv("EMCODE_PAGINATION_DEFAULT_PAGE_SIZE", "10")

	cfg := load(t, map[string]string{"config.toml": baseConfig})

	if cfg.Version != "2.0.0" {
		t.Errorf("version: got %s, want 2.0.0", cfg.Version)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("server port: got %d, want 3000", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxConcurrency != 32 {
		t.Errorf("max concurrency: got %d, want 32", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.Pipeline.EnhanceTimeoutDuration() != 5*time.Second {
		t.Errorf("enhance timeout: got %v, want 5s", cfg.Pipeline.EnhanceTimeoutDuration())
	}
	if cfg.API.MaxUploadSizeBytes() != 100*1024*1024 {
		t.Errorf("max upload: got %d", cfg.API.MaxUploadSizeBytes())
	}
	if cfg.API.Pagination.DefaultPageSize != 10 {
		t.Errorf("default page size: got %d, want 10", cfg.API.Pagination.DefaultPageSize)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	t.Setenv("EMCODE_DB_NAME", "testdb")
	t.Setenv("EMCODE_DB_USER", "testuser")

	cfg := load(t, nil)

	if cfg.Server.Port != 8080 {
		t.Errorf("server port default: got %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("db name from env: got %s, want testdb", cfg.Database.Name)
	}
	if cfg.Pipeline.MaxConcurrency != 16 {
		t.Errorf("max concurrency default: got %d, want 16", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.Pipeline.EnhanceTimeoutDuration() != 15*time.Second {
		t.Errorf("enhance timeout default: got %v, want 15s", cfg.Pipeline.EnhanceTimeoutDuration())
	}
	if cfg.ShutdownTimeoutDuration() != 30*time.Second {
		t.Errorf("shutdown timeout default: got %v, want 30s", cfg.ShutdownTimeoutDuration())
	}
	if cfg.Env() != "local" {
		t.Errorf("env: got %s, want local", cfg.Env())
	}
}

func TestMemoryStoreSkipsDatabase(t *testing.T) {
	cfg := load(t, map[string]string{"config.toml": minimalConfig})

	if cfg.Pipeline.Store != config.StoreMemory {
		t.Errorf("store: got %s, want memory", cfg.Pipeline.Store)
	}
	if cfg.Database.Name != "" {
		t.Errorf("database should not be finalized, got name %q", cfg.Database.Name)
	}
}

func TestStorageEnabledFromEnv(t *testing.T) {
	t.Setenv("EMCODE_STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")

	cfg := load(t, map[string]string{"config.toml": minimalConfig})

	if !cfg.StorageEnabled() {
		t.Fatal("storage should be enabled")
	}
	if cfg.Storage.ContainerName != "notes" {
		t.Errorf("container: got %s, want notes", cfg.Storage.ContainerName)
	}
}

func TestLoadOverlayOnly(t *testing.T) {
	t.Setenv("EMCODE_ENV", "ci")

	cfg := load(t, map[string]string{
		"config.ci.toml": "[pipeline]\nstore = \"memory\"\nmax_concurrency = 2",
	})

	if cfg.Pipeline.MaxConcurrency != 2 {
		t.Errorf("max_concurrency: got %d, want 2 (from overlay)", cfg.Pipeline.MaxConcurrency)
	}
	if cfg.ShutdownTimeout != "30s" {
		t.Errorf("shutdown_timeout: got %s, want default 30s", cfg.ShutdownTimeout)
	}
}

func TestLoadBrokenOverlayNamesFile(t *testing.T) {
	t.Setenv("EMCODE_ENV", "staging")

	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	writeConfig(t, dir, "config.staging.toml", "[server")
	chdir(t, dir)

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "config.staging.toml") {
		t.Errorf("err = %v, want the overlay file named", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{"invalid toml", `[server`, "parse config config.toml"},
		{"zero shutdown timeout", "shutdown_timeout = \"0s\"\n[pipeline]\nstore = \"memory\"", "invalid shutdown_timeout"},
		{"invalid port", "[server]\nport = 99999\n[pipeline]\nstore = \"memory\"", "invalid port"},
		{"invalid read_timeout", "[server]\nread_timeout = \"bad\"\n[pipeline]\nstore = \"memory\"", "invalid read_timeout"},
		{"unknown store", "[pipeline]\nstore = \"redis\"", "unknown store"},
		{"invalid enhance timeout", "[pipeline]\nstore = \"memory\"\nenhance_timeout = \"-1s\"", "invalid enhance_timeout"},
		{"non-positive concurrency", "[pipeline]\nstore = \"memory\"\nmax_concurrency = -2", "max_concurrency"},
		{"postgres without database", "[pipeline]\nstore = \"postgres\"", "database"},
		{"write timeout inside long-poll", "[server]\nwrite_timeout = \"30s\"\n[pipeline]\nstore = \"memory\"", "batch long-poll limit"},
		{"unknown log level", "[logging]\nlevel = \"loud\"\n[pipeline]\nstore = \"memory\"", "invalid level"},
		{"unknown log format", "[logging]\nformat = \"xml\"\n[pipeline]\nstore = \"memory\"", "invalid format"},
		{"nested base path", "[api]\nbase_path = \"/api/v1\"\n[pipeline]\nstore = \"memory\"", "single segment"},
		{"relative base path", "[api]\nbase_path = \"api\"\n[pipeline]\nstore = \"memory\"", "single segment"},
		{"unparseable upload size", "[api]\nmax_upload_size = \"lots\"\n[pipeline]\nstore = \"memory\"", "invalid max_upload_size"},
		{"server shutdown outlasts process", "[server]\nshutdown_timeout = \"1m\"\n[pipeline]\nstore = \"memory\"", "exceeds shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, "config.toml", tt.config)
			chdir(t, dir)

			_, err := config.Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMaxUploadSizeBytes(t *testing.T) {
	tests := []struct {
		size string
		want int64
	}{
		{"50MB", 50 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
		{"bad", 50 * 1024 * 1024},
		{"", 50 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.size, func(t *testing.T) {
			cfg := &config.APIConfig{MaxUploadSize: tt.size}
			if got := cfg.MaxUploadSizeBytes(); got != tt.want {
				t.Errorf("MaxUploadSizeBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAgentDefaults(t *testing.T) {
	cfg := load(t, map[string]string{"config.toml": minimalConfig})

	if cfg.Agent.Name != "default-agent" {
		t.Errorf("agent name: got %s, want default-agent", cfg.Agent.Name)
	}
	if cfg.Agent.Provider == nil || cfg.Agent.Provider.Name != "ollama" {
		t.Fatalf("provider: got %+v, want ollama", cfg.Agent.Provider)
	}
	if cfg.Agent.Provider.BaseURL != "http://localhost:11434" {
		t.Errorf("provider base_url: got %s", cfg.Agent.Provider.BaseURL)
	}
}

func TestAgentEnvOverrides(t *testing.T) {
	t.Setenv("EMCODE_AGENT_PROVIDER_NAME", "azure")
	t.Setenv("EMCODE_AGENT_BASE_URL", "https://coder.openai.azure.com")
	t.Setenv("EMCODE_AGENT_MODEL_NAME", "gpt-5-mini")
	t.Setenv("EMCODE_AGENT_TOKEN", "test-token")
	t.Setenv("EMCODE_AGENT_DEPLOYMENT", "gpt-5-mini")
	t.Setenv("EMCODE_AGENT_API_VERSION", "2024-12-01-preview")
	t.Setenv("EMCODE_AGENT_AUTH_TYPE", "api_key")

	cfg := load(t, map[string]string{"config.toml": minimalConfig})

	if cfg.Agent.Provider.Name != "azure" {
		t.Errorf("provider name: got %s, want azure", cfg.Agent.Provider.Name)
	}
	if cfg.Agent.Provider.BaseURL != "https://coder.openai.azure.com" {
		t.Errorf("provider base_url: got %s", cfg.Agent.Provider.BaseURL)
	}
	if cfg.Agent.Model.Name != "gpt-5-mini" {
		t.Errorf("model name: got %s, want gpt-5-mini", cfg.Agent.Model.Name)
	}

	opts := cfg.Agent.Provider.Options
	for key, want := range map[string]string{
		"token":       "test-token",
		"deployment":  "gpt-5-mini",
		"api_version": "2024-12-01-preview",
		"auth_type":   "api_key",
	} {
		if opts[key] != want {
			t.Errorf("%s: got %v, want %s", key, opts[key], want)
		}
	}
}

func TestAgentBaseURLValidation(t *testing.T) {
	t.Setenv("EMCODE_AGENT_BASE_URL", "localhost:11434")

	dir := t.TempDir()
	writeConfig(t, dir, "config.toml", minimalConfig)
	chdir(t, dir)

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected error for a base_url without a scheme")
	}
	if !strings.Contains(err.Error(), "agent: provider base_url") {
		t.Errorf("error %q does not name the agent base_url", err)
	}
}

func TestLoggingConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := load(t, map[string]string{"config.toml": minimalConfig})

		if cfg.Logging.Level != "info" || cfg.Logging.Format != config.LogFormatText {
			t.Errorf("logging = %+v, want info/text", cfg.Logging)
		}
		if cfg.Logging.SlogLevel() != slog.LevelInfo {
			t.Errorf("level = %v, want INFO", cfg.Logging.SlogLevel())
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("EMCODE_LOG_LEVEL", "debug")
		t.Setenv("EMCODE_LOG_FORMAT", "JSON")

		cfg := load(t, map[string]string{"config.toml": minimalConfig})

		if cfg.Logging.Format != config.LogFormatJSON {
			t.Errorf("format = %q, want json", cfg.Logging.Format)
		}
		if cfg.Logging.SlogLevel() != slog.LevelDebug {
			t.Errorf("level = %v, want DEBUG", cfg.Logging.SlogLevel())
		}
	})
}
