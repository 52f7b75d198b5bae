package handlers

import (
	"github.com/gorilla/mux"
)

// NewRouter wires every API route.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health and status endpoints
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Jobs
	api.HandleFunc("/jobs", h.CreateJob).Methods("POST")
	api.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id:[0-9]+}", h.GetJob).Methods("GET")
	api.HandleFunc("/jobs/{id:[0-9]+}", h.DeleteJob).Methods("DELETE")
	api.HandleFunc("/jobs/{id:[0-9]+}/pause", h.PauseJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/resume", h.ResumeJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/cancel", h.CancelJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/reprocess", h.ReprocessJob).Methods("POST")
	api.HandleFunc("/jobs/{id:[0-9]+}/download", h.DownloadArchive).Methods("GET")

	// Per-file overrides
	api.HandleFunc("/jobs/{id:[0-9]+}/files/{fileID:[0-9]+}", h.UpdateFileOverrides).Methods("PATCH", "PUT")
	api.HandleFunc("/jobs/{id:[0-9]+}/files/{fileID:[0-9]+}", h.DeleteFile).Methods("DELETE")
	api.HandleFunc("/jobs/{id:[0-9]+}/files/{fileID:[0-9]+}/reprocess", h.ReprocessFile).Methods("POST")

	// Presets
	api.HandleFunc("/presets", h.ListPresets).Methods("GET")
	api.HandleFunc("/presets/custom", h.CreateCustomPreset).Methods("POST")
	api.HandleFunc("/presets/custom/{id}", h.DeleteCustomPreset).Methods("DELETE")

	// Settings
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")

	return r
}
