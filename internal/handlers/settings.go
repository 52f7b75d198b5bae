package handlers

import (
	"encoding/json"
	"net/http"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
)

type settingsResponse struct {
	WorkerConcurrency       int  `json:"worker_concurrency"`
	Effective               int  `json:"effective_concurrency"`
	DefaultKeepMetadata     bool `json:"default_keep_metadata"`
	DefaultKeepTransparency bool `json:"default_keep_transparency"`
}

func toSettingsResponse(s *database.AppSettings) settingsResponse {
	return settingsResponse{
		WorkerConcurrency:       s.WorkerConcurrency,
		Effective:               s.ClampConcurrency(),
		DefaultKeepMetadata:     s.DefaultKeepMetadata,
		DefaultKeepTransparency: s.DefaultKeepTransparency,
	}
}

// GetSettings returns the stored settings, including the clamped
// concurrency actually in effect.
func (h *Handlers) GetSettings(w http.ResponseWriter, _ *http.Request) {
	settings, err := h.db.GetSettings()
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, toSettingsResponse(settings))
}

// UpdateSettings merges the request into the settings row. Fields not
// sent keep their stored values; concurrency changes take effect on
// the scheduler's next poll, policy flags on the next job submission.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerConcurrency       *int  `json:"worker_concurrency"`
		DefaultKeepMetadata     *bool `json:"default_keep_metadata"`
		DefaultKeepTransparency *bool `json:"default_keep_transparency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.WorkerConcurrency == nil && req.DefaultKeepMetadata == nil && req.DefaultKeepTransparency == nil {
		writeJSONError(w, "No settings provided", http.StatusBadRequest)
		return
	}

	current, err := h.db.GetSettings()
	if err != nil {
		respondError(w, err)
		return
	}
	if req.WorkerConcurrency != nil {
		current.WorkerConcurrency = *req.WorkerConcurrency
	}
	if req.DefaultKeepMetadata != nil {
		current.DefaultKeepMetadata = *req.DefaultKeepMetadata
	}
	if req.DefaultKeepTransparency != nil {
		current.DefaultKeepTransparency = *req.DefaultKeepTransparency
	}

	settings, err := h.db.UpdateSettings(current.WorkerConcurrency, current.DefaultKeepMetadata, current.DefaultKeepTransparency)
	if err != nil {
		respondError(w, err)
		return
	}
	logging.Info("Settings updated: concurrency %d (effective %d), keep metadata %t, keep transparency %t",
		settings.WorkerConcurrency, settings.ClampConcurrency(), settings.DefaultKeepMetadata, settings.DefaultKeepTransparency)
	writeJSON(w, toSettingsResponse(settings))
}
