package main

import (
	"fmt"
	"time"

	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/internal/infrastructure"
	"github.com/JaimeStill/emcode/pkg/formatting"
)

// Server owns the process: infrastructure, the API module, and the HTTP
// listener, all sharing one lifecycle coordinator.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}

	router := buildRouter(infra)
	modules.Mount(router)

	infra.Logger.Info(
		"emcode configured",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"env", cfg.Env(),
		"store", cfg.Pipeline.Store,
		"max_concurrency", cfg.Pipeline.MaxConcurrency,
		"storage", cfg.StorageEnabled(),
		"max_upload", formatting.FormatBytes(cfg.API.MaxUploadSizeBytes(), 0),
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
	}, nil
}

// Start runs the startup hooks, binds the listener, and reports readiness
// once every startup hook has finished.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("startup complete", "checks", s.infra.Lifecycle.Readiness())
	}()
	return nil
}

// Shutdown drains HTTP and the pipeline, then closes the database.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("shutting down", "timeout", timeout)
	start := time.Now()

	if err := s.infra.Lifecycle.Shutdown(timeout); err != nil {
		return err
	}
	s.infra.Logger.Info("emcode stopped", "elapsed", time.Since(start))
	return nil
}
