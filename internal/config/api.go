package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/emcode/pkg/formatting"
	"github.com/JaimeStill/emcode/pkg/middleware"
	"github.com/JaimeStill/emcode/pkg/module"
	"github.com/JaimeStill/emcode/pkg/pagination"
)

const (
	EnvAPIBasePath      = "EMCODE_API_BASE_PATH"
	EnvAPIMaxUploadSize = "EMCODE_API_MAX_UPLOAD_SIZE"
)

// defaultMaxUpload caps batch and note bodies when max_upload_size is unset.
const defaultMaxUpload = "50MB"

var corsEnv = &middleware.CORSEnv{
	Enabled:          "EMCODE_CORS_ENABLED",
	Origins:          "EMCODE_CORS_ORIGINS",
	AllowedMethods:   "EMCODE_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "EMCODE_CORS_ALLOWED_HEADERS",
	ExposedHeaders:   "EMCODE_CORS_EXPOSED_HEADERS",
	AllowCredentials: "EMCODE_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "EMCODE_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "EMCODE_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "EMCODE_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds the API mount point, the request body cap shared by batch
// submissions and note uploads, and the nested CORS and batch-listing settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
}

// MaxUploadSizeBytes returns the body cap in bytes. An unparseable value
// falls back to 50MB.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	if size, err := formatting.ParseBytes(c.MaxUploadSize); err == nil {
		return size
	}
	size, _ := formatting.ParseBytes(defaultMaxUpload)
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = defaultMaxUpload
	}
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv(EnvAPIMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) validate() error {
	if err := module.ValidatePrefix(c.BasePath); err != nil {
		return fmt.Errorf("base_path: %w", err)
	}
	if size, err := formatting.ParseBytes(c.MaxUploadSize); err != nil || size <= 0 {
		return fmt.Errorf("invalid max_upload_size %q", c.MaxUploadSize)
	}
	return nil
}
