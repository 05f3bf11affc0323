package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/emcode/pkg/handlers"
	"github.com/JaimeStill/emcode/pkg/pagination"
	"github.com/JaimeStill/emcode/pkg/routes"
)

// MaxWait bounds the long-poll window of GET /batches/{id}?wait=.
const MaxWait = time.Minute

var (
	errInvalidID   = errors.New("invalid batch id")
	errInvalidWait = errors.New("invalid wait duration")
)

// Handler provides HTTP endpoints for batch submission and polling.
type Handler struct {
	sys         System
	logger      *slog.Logger
	pagination  pagination.Config
	basePath    string
	maxBodySize int64
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// SubmitResponse acknowledges an accepted batch and points at its status.
type SubmitResponse struct {
	ID           uuid.UUID `json:"id"`
	Status       Status    `json:"status"`
	CustomStatus string    `json:"custom_status"`
	StatusURL    string    `json:"status_url"`
}

// NewHandler creates a Handler. basePath is the mount point used to build
// status URLs and maxBodySize limits submission bodies.
func NewHandler(
	sys System,
	logger *slog.Logger,
	pagination pagination.Config,
	basePath string,
	maxBodySize int64,
) *Handler {
	return &Handler{
		sys:         sys,
		logger:      logger.With("handler", "batches"),
		pagination:  pagination,
		basePath:    basePath,
		maxBodySize: maxBodySize,
	}
}

// Routes returns the route group definition for batch endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/batches",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/retry", Handler: h.Retry},
		},
	}
}

// Submit accepts a JSON array of documents and starts a batch.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if h.maxBodySize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	docs, err := ParseDocuments(data)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	inst, err := h.sys.Submit(r.Context(), docs)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.accepted(w, inst)
}

// Find returns a batch by its UUID path parameter. The report is present once
// the batch has completed. With ?wait=<duration> the request blocks until the
// batch completes or the wait (capped at MaxWait) elapses, then returns the
// batch as it stands.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidID)
		return
	}

	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var inst *Instance
	if wait > 0 {
		inst, err = h.await(r.Context(), id, wait)
	} else {
		inst, err = h.sys.Find(r.Context(), id)
	}
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, inst)
}

// List returns a paginated list of batches with optional query parameter filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria and returns matching batches.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Retry resubmits the failed documents of a completed batch.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidID)
		return
	}

	inst, err := h.sys.Retry(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.accepted(w, inst)
}

// await long-polls a batch. An elapsed wait is not an error; the caller gets
// the running batch and polls again.
func (h *Handler) await(ctx context.Context, id uuid.UUID, wait time.Duration) (*Instance, error) {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	inst, err := h.sys.Await(waitCtx, id)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return h.sys.Find(ctx, id)
	}
	return inst, err
}

func parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidWait, raw)
	}
	return min(d, MaxWait), nil
}

func (h *Handler) accepted(w http.ResponseWriter, inst *Instance) {
	statusURL := h.basePath + "/batches/" + inst.ID.String()
	w.Header().Set("Location", statusURL)

	handlers.RespondJSON(w, http.StatusAccepted, SubmitResponse{
		ID:           inst.ID,
		Status:       inst.Status,
		CustomStatus: inst.CustomStatus,
		StatusURL:    statusURL,
	})
}
