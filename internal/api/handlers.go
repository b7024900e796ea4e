package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/browser"
	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/internal/export"
	"github.com/scrapeforge/scrapeforge/internal/jobs"
	"github.com/scrapeforge/scrapeforge/internal/pipeline"
	"github.com/scrapeforge/scrapeforge/internal/ratelimit"
	"github.com/scrapeforge/scrapeforge/internal/rules"
	"github.com/scrapeforge/scrapeforge/internal/session"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	registry  *session.Registry
	processor *pipeline.Processor
	tracker   *jobs.Tracker
	exporter  *export.Exporter
	rulebook  *rules.Loader
	fetcher   *browser.Fetcher
	pool      *browser.Pool // nil when Chrome provisioning is disabled
	scrapeRL  *ratelimit.Limiter
	log       *zap.SugaredLogger
}

// NewHandler creates the HTTP handler set.
func NewHandler(
	registry *session.Registry,
	processor *pipeline.Processor,
	tracker *jobs.Tracker,
	exporter *export.Exporter,
	rulebook *rules.Loader,
	fetcher *browser.Fetcher,
	pool *browser.Pool,
	scrapeRL *ratelimit.Limiter,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		registry:  registry,
		processor: processor,
		tracker:   tracker,
		exporter:  exporter,
		rulebook:  rulebook,
		fetcher:   fetcher,
		pool:      pool,
		scrapeRL:  scrapeRL,
		log:       log.With("component", "api"),
	}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}

	sess, err := h.registry.Create(req.Config, req.Description, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// GetSession handles GET /v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// UpdateSessionConfig handles PATCH /v1/sessions/{id}/config
func (h *Handler) UpdateSessionConfig(w http.ResponseWriter, r *http.Request) {
	var partial models.SessionConfig
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if err := h.registry.UpdateConfig(mux.Vars(r)["id"], partial); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateProgress handles PATCH /v1/sessions/{id}/progress
func (h *Handler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var partial models.ProgressTracker
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if err := h.registry.UpdateProgress(mux.Vars(r)["id"], partial); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSessionStatus handles PUT /v1/sessions/{id}/status
func (h *Handler) SetSessionStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.SessionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if err := h.registry.SetStatus(mux.Vars(r)["id"], req.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddExtractedData handles POST /v1/sessions/{id}/data
func (h *Handler) AddExtractedData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []models.RawRecord `json:"records"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if err := h.registry.AddExtractedData(mux.Vars(r)["id"], req.Records); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"added": len(req.Records)})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the engine's failure taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsCapacity(err):
		status = http.StatusTooManyRequests
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.Is(err, errs.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errs.Is(err, errs.ErrPipeline):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
