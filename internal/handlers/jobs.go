package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/storage"
)

// allowedUploadTypes are the sniffed content types accepted as job
// input.
var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// jobDetail is the job plus its files, returned by the detail and
// create endpoints.
type jobDetail struct {
	*database.Job
	Files []*database.JobFile `json:"files"`
}

// CreateJob accepts a multipart upload, stores the originals and
// queues a new job. The "preset" form value is optional; without it
// every file falls back to its recommendation.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxJobBytes+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSONError(w, "Invalid multipart upload", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	preset := r.FormValue("preset")
	if preset != "" {
		p, err := h.catalog.Get(preset)
		if err != nil {
			respondError(w, err)
			return
		}
		if p == nil {
			writeJSONError(w, fmt.Sprintf("Unknown preset %q", preset), http.StatusBadRequest)
			return
		}
	}

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeJSONError(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	var total int64
	for _, header := range uploads {
		if header.Size > h.maxFileBytes {
			writeJSONError(w, fmt.Sprintf("File %q exceeds the %d MB limit", header.Filename, h.maxFileBytes/(1024*1024)), http.StatusRequestEntityTooLarge)
			return
		}
		total += header.Size
	}
	if total > h.maxJobBytes {
		writeJSONError(w, fmt.Sprintf("Upload exceeds the %d MB job limit", h.maxJobBytes/(1024*1024)), http.StatusRequestEntityTooLarge)
		return
	}

	settings, err := h.db.GetSettings()
	if err != nil {
		respondError(w, err)
		return
	}

	job, err := h.db.CreateJob(preset)
	if err != nil {
		respondError(w, err)
		return
	}

	var files []*database.JobFile
	for _, header := range uploads {
		data, err := readUpload(header)
		if err != nil {
			respondError(w, err)
			return
		}
		if !allowedUploadTypes[http.DetectContentType(data)] {
			writeJSONError(w, fmt.Sprintf("File %q is not a supported image (JPG, PNG or WEBP)", header.Filename), http.StatusUnsupportedMediaType)
			return
		}
		key, err := h.store.Write(storage.PrefixOriginals, header.Filename, data)
		if err != nil {
			respondError(w, err)
			return
		}
		f, err := h.db.CreateJobFile(job.ID, header.Filename, key, int64(len(data)),
			settings.DefaultKeepMetadata, settings.DefaultKeepTransparency)
		if err != nil {
			respondError(w, err)
			return
		}
		files = append(files, f)
	}
	if err := h.db.SetJobTotals(job.ID, len(files)); err != nil {
		respondError(w, err)
		return
	}

	job, err = h.db.GetJob(job.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	logging.Info("Job %d created with %d file(s), preset %q", job.ID, len(files), preset)

	writeJSONWith(w, http.StatusCreated, jobDetail{Job: job, Files: files})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// ListJobs returns recent jobs newest-first.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	jobs, err := h.db.ListJobs(limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*database.Job{}
	}
	writeJSON(w, map[string]interface{}{"jobs": jobs})
}

// GetJob returns one job with its files.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.db.GetJob(id)
	if err != nil {
		respondError(w, err)
		return
	}
	files, err := h.db.ListJobFiles(id)
	if err != nil {
		respondError(w, err)
		return
	}
	if files == nil {
		files = []*database.JobFile{}
	}
	writeJSON(w, jobDetail{Job: job, Files: files})
}

// PauseJob requests a pause; the worker honors it at the next file
// boundary.
func (h *Handlers) PauseJob(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, database.StatusPaused, database.StatusPending, database.StatusProcessing)
}

// ResumeJob re-queues a paused job.
func (h *Handlers) ResumeJob(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, database.StatusPending, database.StatusPaused)
}

// CancelJob requests cancellation. A job the worker never picked up is
// settled immediately; a running one stops at the next file boundary.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.db.GetJob(id)
	if err != nil {
		respondError(w, err)
		return
	}
	wasIdle := job.Status == database.StatusPending || job.Status == database.StatusPaused

	changed, err := h.db.RequestStatus(id, database.StatusCanceled,
		database.StatusPending, database.StatusProcessing, database.StatusPaused)
	if err != nil {
		respondError(w, err)
		return
	}
	if !changed {
		writeJSONError(w, "The job cannot be canceled from its current status", http.StatusConflict)
		return
	}
	if wasIdle {
		if err := h.db.MarkJobFinished(id, database.StatusCanceled, ""); err != nil {
			respondError(w, err)
			return
		}
	}
	logging.Info("Job %d canceled", id)
	writeJSONStatus(w, "canceled")
}

// ReprocessJob wipes results and queues the job again.
func (h *Handlers) ReprocessJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.ReprocessJob(id); err != nil {
		respondError(w, err)
		return
	}
	writeJSONStatus(w, "queued")
}

// DeleteJob removes a settled job and all of its blobs.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.orch.PurgeJob(id); err != nil {
		respondError(w, err)
		return
	}
	logging.Info("Job %d deleted", id)
	writeJSONStatus(w, "deleted")
}

// DownloadArchive streams the job's report archive.
func (h *Handlers) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	job, err := h.db.GetJob(id)
	if err != nil {
		respondError(w, err)
		return
	}
	if job.ZipKey == "" {
		writeJSONError(w, "The job has no archive yet", http.StatusNotFound)
		return
	}
	data, err := h.store.Read(job.ZipKey)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ZipName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logging.Warn("Archive download for job %d interrupted: %v", id, err)
	}
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, target string, allowedFrom ...string) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.db.GetJob(id); err != nil {
		respondError(w, err)
		return
	}
	changed, err := h.db.RequestStatus(id, target, allowedFrom...)
	if err != nil {
		respondError(w, err)
		return
	}
	if !changed {
		writeJSONError(w, "The job cannot change to "+target+" from its current status", http.StatusConflict)
		return
	}
	logging.Info("Job %d moved to %s", id, target)
	writeJSONStatus(w, "ok")
}
