package handlers

import (
	"encoding/json"
	"net/http"
)

// apiError is the structured error body for all failure responses
type apiError struct {
	Error string `json:"error"`
}

// writeJSON serializes v as the response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a structured error response
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// statusURL builds the polling URL for a submission
func statusURL(jobID string) string {
	return "/crawl/status/" + jobID
}

// resultsURL builds the artifact URL for a submission
func resultsURL(jobID string) string {
	return "/crawl/results/" + jobID
}
