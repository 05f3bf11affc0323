package api

import (
	"net/http"

	"github.com/JaimeStill/emcode/internal/config"
	"github.com/JaimeStill/emcode/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) []string {
	groups := []routes.Group{
		domain.Pipeline.Handler(cfg.API.BasePath, cfg.API.MaxUploadSizeBytes()).Routes(),
		domain.Prompts.Handler().Routes(),
		newCodesHandler().routes(),
	}

	if runtime.Storage != nil {
		groups = append(groups, newNotesHandler(
			runtime.Storage,
			runtime.Logger,
			cfg.API.MaxUploadSizeBytes(),
		).routes())
	}

	return routes.Register(mux, groups...)
}
