package handlers

import (
	"net/http"

	"image-optimizer/internal/startup"
)

// GetVersion returns build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, startup.GetBuildInfo())
}
