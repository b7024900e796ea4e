package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/scrapeforge/scrapeforge/internal/chrono"
	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/internal/export"
	"github.com/scrapeforge/scrapeforge/internal/pipeline"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// ProcessData handles POST /v1/sessions/{id}/process. Records default to
// the session's raw buffer; rules may be given inline or by rulebook set
// name. The response pairs the processed batch with the job so callers can
// inspect per-record errors; partial success is explicit.
func (h *Handler) ProcessData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Records         []models.RawRecord      `json:"records,omitempty"`
		CleaningRules   []models.CleaningRule   `json:"cleaningRules,omitempty"`
		ValidationRules []models.ValidationRule `json:"validationRules,omitempty"`
		CleaningSet     string                  `json:"cleaningSet,omitempty"`
		ValidationSet   string                  `json:"validationSet,omitempty"`
		Store           bool                    `json:"store,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	raws := req.Records
	if raws == nil {
		raws = sess.Data.Raw
	}
	cleaning := req.CleaningRules
	if cleaning == nil && req.CleaningSet != "" {
		cleaning = h.rulebook.CleaningSet(req.CleaningSet)
	}
	validation := req.ValidationRules
	if validation == nil && req.ValidationSet != "" {
		validation = h.rulebook.ValidationSet(req.ValidationSet)
	}

	records, job, err := h.processor.ProcessData(id, raws, cleaning, validation)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Store {
		if err := h.registry.StoreProcessed(id, records); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"job":     job,
	})
}

// AggregateData handles POST /v1/aggregate
func (h *Handler) AggregateData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records        []models.ProcessedRecord `json:"records,omitempty"`
		Rules          []models.AggregationRule `json:"rules,omitempty"`
		AggregationSet string                   `json:"aggregationSet,omitempty"`
		SessionID      string                   `json:"sessionId,omitempty"`
		Store          bool                     `json:"store,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}

	records := req.Records
	if records == nil && req.SessionID != "" {
		sess, err := h.registry.Get(req.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		records = sess.Data.Processed
	}
	aggRules := req.Rules
	if aggRules == nil && req.AggregationSet != "" {
		aggRules = h.rulebook.AggregationSet(req.AggregationSet)
	}

	rows := pipeline.Aggregate(records, aggRules)
	if req.Store && req.SessionID != "" {
		if err := h.registry.StoreAggregated(req.SessionID, rows); err != nil {
			writeError(w, err)
			return
		}
	}
	if rows == nil {
		rows = []models.AggregatedData{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// GenerateStatistics handles POST /v1/statistics
func (h *Handler) GenerateStatistics(w http.ResponseWriter, r *http.Request) {
	records, ok := h.processedBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pipeline.GenerateStatistics(records))
}

// InferSchema handles POST /v1/schema
func (h *Handler) InferSchema(w http.ResponseWriter, r *http.Request) {
	records, ok := h.processedBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pipeline.InferSchema(records))
}

// processedBatch decodes the shared statistics/schema request shape.
func (h *Handler) processedBatch(w http.ResponseWriter, r *http.Request) ([]models.ProcessedRecord, bool) {
	var req struct {
		Records   []models.ProcessedRecord `json:"records,omitempty"`
		SessionID string                   `json:"sessionId,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return nil, false
	}
	if req.Records != nil {
		return req.Records, true
	}
	if req.SessionID != "" {
		sess, err := h.registry.Get(req.SessionID)
		if err != nil {
			writeError(w, err)
			return nil, false
		}
		return sess.Data.Processed, true
	}
	return nil, true
}

// ExportData handles POST /v1/sessions/{id}/export. The job handle comes
// back immediately; export failures surface only through job polling.
func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Format   string           `json:"format"`
		Filename string           `json:"filename"`
		Path     string           `json:"path,omitempty"`
		Source   string           `json:"source,omitempty"` // processed (default) or aggregated
		Records  []map[string]any `json:"records,omitempty"`
		Metadata map[string]any   `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if req.Format == "" || req.Filename == "" {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, "format and filename are required"))
		return
	}

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	records := req.Records
	if records == nil {
		switch req.Source {
		case "aggregated":
			for _, row := range sess.Data.Aggregated {
				records = append(records, row.Fields)
			}
		default:
			for _, rec := range sess.Data.Processed {
				records = append(records, rec.Fields)
			}
		}
	}

	job := h.exporter.Submit(export.Request{
		SessionID: id,
		Records:   records,
		Format:    req.Format,
		Filename:  req.Filename,
		Path:      req.Path,
		Metadata:  req.Metadata,
	})
	writeJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.tracker.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ScrapePage handles POST /v1/sessions/{id}/scrape: fetches one page
// through the page driver, honoring the session's rate limit, and feeds
// the captured record into the session's raw buffer.
func (h *Handler) ScrapePage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		URL       string            `json:"url"`
		Selectors map[string]string `json:"selectors,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, err.Error()))
		return
	}
	if req.URL == "" {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, "url is required"))
		return
	}

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.scrapeRL.Wait(r.Context(), id); err != nil {
		writeError(w, errs.Wrap(errs.ErrInvalidRequest, "rate limit wait cancelled"))
		return
	}

	// JS-rendered sessions get a Chrome endpoint provisioned on first use;
	// field extraction below still reads the static response.
	if sess.Config.RenderJS && h.pool != nil && sess.ConnectURL == "" {
		instance, launchErr := h.pool.Launch(r.Context(), id)
		if launchErr != nil {
			h.log.Warnw("browser launch failed", "session", id, "error", launchErr)
		} else if err := h.registry.SetConnectURL(id, instance.ConnectURL); err != nil {
			writeError(w, err)
			return
		}
	}

	record, err := h.fetcher.Fetch(r.Context(), req.URL, req.Selectors)
	if err != nil {
		partial := models.ProgressTracker{
			ProcessedPages:    sess.Progress.ProcessedPages + 1,
			FailedPages:       sess.Progress.FailedPages + 1,
			ErrorsEncountered: sess.Progress.ErrorsEncountered + 1,
		}
		if upErr := h.registry.UpdateProgress(id, partial); upErr != nil {
			h.log.Warnw("progress update failed", "session", id, "error", upErr)
		}
		writeError(w, err)
		return
	}

	if err := h.registry.AddExtractedData(id, []models.RawRecord{*record}); err != nil {
		writeError(w, err)
		return
	}
	partial := models.ProgressTracker{
		ProcessedPages:  sess.Progress.ProcessedPages + 1,
		SuccessfulPages: sess.Progress.SuccessfulPages + 1,
	}
	if err := h.registry.UpdateProgress(id, partial); err != nil {
		h.log.Warnw("progress update failed", "session", id, "error", err)
	}

	writeJSON(w, http.StatusOK, record)
}

// Datetime handles GET /v1/datetime
func (h *Handler) Datetime(w http.ResponseWriter, r *http.Request) {
	desc, err := chrono.Describe(r.URL.Query().Get("tz"), r.URL.Query().Get("layout"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
