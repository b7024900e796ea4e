package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/scrapeforge/scrapeforge/internal/ratelimit"
	"github.com/scrapeforge/scrapeforge/internal/stream"
)

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(streamServer *stream.Server, rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/v1").Subrouter()

	// Mutating and pipeline endpoints are rate limited per client.
	limited := api.PathPrefix("").Subrouter()
	limited.Use(RateLimitMiddleware(rateLimiter, requestsPerHour))

	limited.HandleFunc("/sessions", h.CreateSession).Methods("POST")
	limited.HandleFunc("/sessions/{id}/config", h.UpdateSessionConfig).Methods("PATCH")
	limited.HandleFunc("/sessions/{id}/progress", h.UpdateProgress).Methods("PATCH")
	limited.HandleFunc("/sessions/{id}/status", h.SetSessionStatus).Methods("PUT")
	limited.HandleFunc("/sessions/{id}/data", h.AddExtractedData).Methods("POST")
	limited.HandleFunc("/sessions/{id}/process", h.ProcessData).Methods("POST")
	limited.HandleFunc("/sessions/{id}/export", h.ExportData).Methods("POST")
	limited.HandleFunc("/sessions/{id}/scrape", h.ScrapePage).Methods("POST")
	limited.HandleFunc("/aggregate", h.AggregateData).Methods("POST")
	limited.HandleFunc("/statistics", h.GenerateStatistics).Methods("POST")
	limited.HandleFunc("/schema", h.InferSchema).Methods("POST")

	// Read and polling endpoints are not rate limited.
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods("GET")
	api.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	api.HandleFunc("/datetime", h.Datetime).Methods("GET")

	// Event streams
	api.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		streamServer.HandleEvents(w, r, "")
	}).Methods("GET")
	api.HandleFunc("/sessions/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		streamServer.HandleEvents(w, r, mux.Vars(r)["id"])
	}).Methods("GET")

	// CORS middleware
	r.Use(corsMiddleware)

	return r
}
