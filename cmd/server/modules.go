package main

import (
	"net/http"

	"github.com/JaimeStill/emcode/internal/api"
	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/internal/infrastructure"
	"github.com/JaimeStill/emcode/pkg/handlers"
	"github.com/JaimeStill/emcode/pkg/module"
)

// Modules holds the mounted HTTP modules. The API is the only one.
type Modules struct {
	API *module.Module
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.NewModule(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{API: apiModule}, nil
}

func (m *Modules) Mount(router *module.Router) {
	router.Mount(m.API)
}

// buildRouter serves /healthz and /readyz outside the API prefix. /readyz
// lists each watched subsystem so an operator can see which one is not ready.
func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()

	router.HandleNative("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.HandleNative("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ready", http.StatusOK
		if !infra.Lifecycle.Ready() {
			status, code = "not ready", http.StatusServiceUnavailable
		}
		handlers.RespondJSON(w, code, map[string]any{
			"status": status,
			"checks": infra.Lifecycle.Readiness(),
		})
	})

	return router
}
