package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/emcode/pkg/handlers"
	"github.com/JaimeStill/emcode/pkg/routes"
	"github.com/JaimeStill/emcode/pkg/storage"
)

// notesHandler stages clinical note text in blob storage so that batch
// documents can reference it by storage_key instead of inlining full_text.
type notesHandler struct {
	store       storage.System
	logger      *slog.Logger
	maxBodySize int64
}

func newNotesHandler(
	store storage.System,
	logger *slog.Logger,
	maxBodySize int64,
) *notesHandler {
	return &notesHandler{
		store:       store,
		logger:      logger.With("handler", "notes"),
		maxBodySize: maxBodySize,
	}
}

func (h *notesHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/notes",
		Routes: []routes.Route{
			{Method: "PUT", Pattern: "/{key...}", Handler: h.upload},
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
			{Method: "HEAD", Pattern: "/{key...}", Handler: h.exists},
			{Method: "DELETE", Pattern: "/{key...}", Handler: h.delete},
		},
	}
}

func (h *notesHandler) upload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body := r.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(
				w, h.logger,
				http.StatusRequestEntityTooLarge, err,
			)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if err := storage.CheckNote(data); err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}

	if err := h.store.Upload(r.Context(), key, bytes.NewReader(data), storage.NoteContentType); err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, map[string]any{
		"storage_key": key,
		"size":        len(data),
	})
}

func (h *notesHandler) download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", storage.NoteContentType)
	w.WriteHeader(http.StatusOK)
	if n, err := io.Copy(w, body); err != nil {
		h.logger.Warn("note download interrupted", "key", key, "bytes", n, "error", err)
	}
}

// exists answers HEAD with 200 when a note is staged at key and 404 otherwise.
func (h *notesHandler) exists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.store.Exists(r.Context(), r.PathValue("key"))
	if err != nil {
		w.WriteHeader(storage.MapHTTPStatus(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", storage.NoteContentType)
	w.WriteHeader(http.StatusOK)
}

func (h *notesHandler) delete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := h.store.Delete(r.Context(), key); err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
