package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/emcode/pkg/handlers"
	"github.com/JaimeStill/emcode/pkg/routes"
)

// maxOverrideBody bounds a PUT /prompts/{stage} body.
const maxOverrideBody = 64 << 10

// Handler serves the effective enhance and audit instructions and lets an
// operator override or reset them.
type Handler struct {
	sys    System
	logger *slog.Logger
}

func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "prompts"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/prompts",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "GET", Pattern: "/{stage}", Handler: h.Find},
			{Method: "PUT", Pattern: "/{stage}", Handler: h.Override},
			{Method: "DELETE", Pattern: "/{stage}", Handler: h.Reset},
		},
	}
}

// List returns the effective prompt for both stages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.sys.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	stage, ok := h.stage(w, r)
	if !ok {
		return
	}

	p, err := h.sys.Find(r.Context(), stage)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, p)
}

// Override replaces a stage's instructions. The body is a single
// {"instructions": "..."} object; unknown fields are rejected.
func (h *Handler) Override(w http.ResponseWriter, r *http.Request) {
	stage, ok := h.stage(w, r)
	if !ok {
		return
	}

	cmd, err := decodeOverride(http.MaxBytesReader(w, r.Body, maxOverrideBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	p, err := h.sys.Override(r.Context(), stage, cmd)
	if err != nil {
		h.fail(w, err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, p)
}

// Reset drops a stage's override so the built-in instructions apply again.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	stage, ok := h.stage(w, r)
	if !ok {
		return
	}

	if err := h.sys.Reset(r.Context(), stage); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stage(w http.ResponseWriter, r *http.Request) (Stage, bool) {
	stage, err := ParseStage(r.PathValue("stage"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return "", false
	}
	return stage, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
}

func decodeOverride(body io.Reader) (OverrideCommand, error) {
	var cmd OverrideCommand
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return cmd, fmt.Errorf("decode override: %w", err)
	}
	if dec.More() {
		return cmd, fmt.Errorf("decode override: body must hold a single object")
	}
	return cmd, nil
}
