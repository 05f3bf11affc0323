package api

import (
	"net/http"

	"github.com/JaimeStill/emcode/internal/codes"
	"github.com/JaimeStill/emcode/pkg/handlers"
	"github.com/JaimeStill/emcode/pkg/routes"
)

type codesHandler struct{}

func newCodesHandler() *codesHandler {
	return &codesHandler{}
}

func (h *codesHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/codes",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.list},
		},
	}
}

func (h *codesHandler) list(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, codes.Entries())
}
