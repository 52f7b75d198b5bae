package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/procerror"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONWith writes v as JSON with an explicit status code.
func writeJSONWith(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logging.Error("failed to encode JSON error response: %v", err)
	}
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	writeJSON(w, map[string]string{"status": status})
}

// pathID extracts a numeric route variable. The second return is false
// when the value is missing or not a number; the caller should have
// already responded in that case.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// respondError maps database and processing errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "Not found", http.StatusNotFound)
	case procerror.KindOf(err) == procerror.KindInvalidConfiguration:
		writeJSONError(w, procerror.Humanize(err, logging.IsDebugEnabled()), http.StatusConflict)
	default:
		logging.Error("request failed: %v", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}
