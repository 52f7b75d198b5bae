package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/presets"
)

// ListPresets returns the merged catalog: base presets plus custom
// ones, ordered by category, along with the catalog's naming and
// default settings sections.
func (h *Handlers) ListPresets(w http.ResponseWriter, _ *http.Request) {
	data, err := h.catalog.Load()
	if err != nil {
		respondError(w, err)
		return
	}
	list, err := h.catalog.List()
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []presets.Preset{}
	}
	writeJSON(w, map[string]interface{}{
		"version":  data.Version,
		"naming":   data.Naming,
		"defaults": data.Defaults,
		"presets":  list,
	})
}

// CreateCustomPreset stores a user-defined preset. It shadows a base
// preset with the same id.
func (h *Handlers) CreateCustomPreset(w http.ResponseWriter, r *http.Request) {
	var preset database.CustomPreset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if preset.ID == "" || preset.Label == "" || preset.Width <= 0 || preset.Height <= 0 {
		writeJSONError(w, "A custom preset needs id, label and positive dimensions", http.StatusBadRequest)
		return
	}
	if err := h.db.CreateCustomPreset(&preset); err != nil {
		respondError(w, err)
		return
	}
	stored, err := h.db.GetCustomPreset(preset.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	logging.Info("Custom preset %q created", preset.ID)
	writeJSONWith(w, http.StatusCreated, stored)
}

// DeleteCustomPreset removes a custom preset. Base presets cannot be
// deleted.
func (h *Handlers) DeleteCustomPreset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.db.DeleteCustomPreset(id); err != nil {
		respondError(w, err)
		return
	}
	logging.Info("Custom preset %q deleted", id)
	writeJSONStatus(w, "deleted")
}
