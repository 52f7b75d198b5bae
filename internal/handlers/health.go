package handlers

import (
	"net/http"
	"runtime"

	"image-optimizer/internal/database"
	"image-optimizer/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`

	// Queue summary
	PendingJobs    int `json:"pendingJobs"`
	ProcessingJobs int `json:"processingJobs"`
	TotalJobs      int `json:"totalJobs"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	CatalogError string `json:"catalogError,omitempty"`
}

// HealthCheck reports service health: the database must answer and the
// preset catalog must load.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	counts, err := h.db.CountJobsByStatus()
	if err != nil {
		writeJSONError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	response.PendingJobs = counts[database.StatusPending]
	response.ProcessingJobs = counts[database.StatusProcessing]
	for _, n := range counts {
		response.TotalJobs += n
	}

	if _, err := h.catalog.Load(); err != nil {
		response.Status = statusDegraded
		response.CatalogError = err.Error()
	}

	writeJSON(w, response)
}

// LivenessCheck is a minimal probe that only proves the process is
// serving requests.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, "alive")
}
