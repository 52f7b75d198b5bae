package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"image-optimizer/internal/codec"
	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
)

// overridesRequest carries the user-editable per-file settings.
// Pointer fields distinguish "not sent" from zero values.
type overridesRequest struct {
	SelectedPresetID *string   `json:"selected_preset_id"`
	OutputFormat     *string   `json:"output_format"`
	OutputFormats    *[]string `json:"output_formats"`

	QualityWebP *int `json:"quality_webp"`
	QualityJPG  *int `json:"quality_jpg"`

	KeepTransparency  *bool `json:"keep_transparency"`
	KeepMetadata      *bool `json:"keep_metadata"`
	Generate2x        *bool `json:"generate_2x"`
	GenerateSharpened *bool `json:"generate_sharpened"`

	CropEnabled *bool    `json:"crop_enabled"`
	CropX       *float64 `json:"crop_x"`
	CropY       *float64 `json:"crop_y"`
	CropWidth   *float64 `json:"crop_width"`
	CropHeight  *float64 `json:"crop_height"`

	RenamePattern           *string `json:"rename_pattern"`
	NormalizeLowercase      *bool   `json:"normalize_lowercase"`
	NormalizeRemoveAccents  *bool   `json:"normalize_remove_accents"`
	NormalizeReplaceSpaces  *string `json:"normalize_replace_spaces"`
	NormalizeCollapseDashes *bool   `json:"normalize_collapse_dashes"`
}

// UpdateFileOverrides merges the request into the file's stored
// overrides. The job must not be running.
func (h *Handlers) UpdateFileOverrides(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}
	f, err := h.db.GetJobFile(fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	job, err := h.db.GetJob(f.JobID)
	if err != nil {
		respondError(w, err)
		return
	}
	if job.Status == database.StatusProcessing {
		writeJSONError(w, "The job is running; wait for it to finish", http.StatusConflict)
		return
	}

	var req overridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := h.applyOverrides(f, &req); msg != "" {
		writeJSONError(w, msg, http.StatusBadRequest)
		return
	}
	if err := h.db.SaveOverrides(f); err != nil {
		respondError(w, err)
		return
	}
	f, err = h.db.GetJobFile(fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	logging.Debug("File %d overrides updated", fileID)
	writeJSON(w, f)
}

// applyOverrides validates the request and merges it into f. It
// returns a message for the 400 response when a value is out of range.
func (h *Handlers) applyOverrides(f *database.JobFile, req *overridesRequest) string {
	if req.SelectedPresetID != nil {
		if *req.SelectedPresetID != "" {
			p, err := h.catalog.Get(*req.SelectedPresetID)
			if err != nil || p == nil {
				return fmt.Sprintf("Unknown preset %q", *req.SelectedPresetID)
			}
		}
		f.SelectedPresetID = *req.SelectedPresetID
	}
	if req.OutputFormat != nil {
		format := codec.NormalizeFormat(*req.OutputFormat)
		if format != "" && !codec.IsSupportedOutput(format) {
			return fmt.Sprintf("Unsupported output format %q", *req.OutputFormat)
		}
		f.OutputFormat = format
	}
	if req.OutputFormats != nil {
		var formats []string
		for _, raw := range *req.OutputFormats {
			format := codec.NormalizeFormat(raw)
			if !codec.IsSupportedOutput(format) {
				return fmt.Sprintf("Unsupported output format %q", raw)
			}
			formats = append(formats, format)
		}
		f.OutputFormats = formats
	}

	if req.QualityWebP != nil {
		if *req.QualityWebP < 0 || *req.QualityWebP > 100 {
			return "quality_webp must be between 0 and 100"
		}
		f.QualityWebP = *req.QualityWebP
	}
	if req.QualityJPG != nil {
		if *req.QualityJPG < 1 || *req.QualityJPG > 100 {
			return "quality_jpg must be between 1 and 100"
		}
		f.QualityJPG = *req.QualityJPG
	}

	if req.KeepTransparency != nil {
		f.KeepTransparency = *req.KeepTransparency
	}
	if req.KeepMetadata != nil {
		f.KeepMetadata = *req.KeepMetadata
	}
	if req.Generate2x != nil {
		f.Generate2x = *req.Generate2x
	}
	if req.GenerateSharpened != nil {
		f.GenerateSharpened = *req.GenerateSharpened
	}

	if req.CropEnabled != nil {
		f.CropEnabled = *req.CropEnabled
	}
	if req.CropX != nil {
		f.CropX = *req.CropX
	}
	if req.CropY != nil {
		f.CropY = *req.CropY
	}
	if req.CropWidth != nil {
		f.CropWidth = *req.CropWidth
	}
	if req.CropHeight != nil {
		f.CropHeight = *req.CropHeight
	}
	if f.CropEnabled && (f.CropWidth <= 0 || f.CropHeight <= 0) {
		return "crop_width and crop_height must be positive when crop is enabled"
	}

	if req.RenamePattern != nil {
		f.RenamePattern = *req.RenamePattern
	}
	if req.NormalizeLowercase != nil {
		f.NormalizeLowercase = req.NormalizeLowercase
	}
	if req.NormalizeRemoveAccents != nil {
		f.NormalizeRemoveAccents = req.NormalizeRemoveAccents
	}
	if req.NormalizeReplaceSpaces != nil {
		f.NormalizeReplaceSpaces = *req.NormalizeReplaceSpaces
	}
	if req.NormalizeCollapseDashes != nil {
		f.NormalizeCollapseDashes = req.NormalizeCollapseDashes
	}
	return ""
}

// DeleteFile removes one file from a job that is not running,
// releasing its original and output blobs.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}
	if _, err := h.db.GetJobFile(fileID); err != nil {
		respondError(w, err)
		return
	}
	if err := h.orch.PurgeFile(fileID); err != nil {
		respondError(w, err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// ReprocessFile re-runs one file of a settled job with its current
// overrides.
func (h *Handlers) ReprocessFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := pathID(w, r, "fileID")
	if !ok {
		return
	}
	if _, err := h.db.GetJobFile(fileID); err != nil {
		respondError(w, err)
		return
	}
	if err := h.orch.ReprocessFile(fileID); err != nil {
		// The file error is recorded; report it without failing the
		// request pipeline.
		f, getErr := h.db.GetJobFile(fileID)
		if getErr != nil {
			respondError(w, getErr)
			return
		}
		if f.Status == database.FileStatusError {
			writeJSONWith(w, http.StatusUnprocessableEntity, f)
			return
		}
		respondError(w, err)
		return
	}
	f, err := h.db.GetJobFile(fileID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, f)
}
