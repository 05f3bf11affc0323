// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/internal/infrastructure"
	"github.com/JaimeStill/emcode/pkg/middleware"
	"github.com/JaimeStill/emcode/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware.
// The pipeline registers its resume and drain hooks with the lifecycle here.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(runtime)

	if err := domain.Pipeline.Start(runtime.Lifecycle); err != nil {
		return nil, fmt.Errorf("pipeline start failed: %w", err)
	}

	mux := http.NewServeMux()
	patterns := registerRoutes(mux, domain, cfg, runtime)
	runtime.Logger.Debug("api routes registered", "base_path", cfg.API.BasePath, "routes", patterns)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.RequestID())
	m.Use(middleware.Logger(runtime.Infrastructure.Logger))
	m.Use(middleware.CORS(&cfg.API.CORS))

	return m, nil
}
