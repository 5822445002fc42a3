package driver

import "net/http"

// HealthHTTPHandler answers liveness probes.
type HealthHTTPHandler struct{}

// NewHealthHTTPHandler creates a new HTTP handler for health checks.
func NewHealthHTTPHandler() *HealthHTTPHandler {
	return &HealthHTTPHandler{}
}

// ServeHTTP handles GET /health
func (h *HealthHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// StatusHTTPHandler reports that the service is up in JSON.
type StatusHTTPHandler struct{}

// NewStatusHTTPHandler creates a new HTTP handler for the root status endpoint.
func NewStatusHTTPHandler() *StatusHTTPHandler {
	return &StatusHTTPHandler{}
}

// statusResponse represents the JSON response of the status endpoint.
type statusResponse struct {
	Status string `json:"status"`
}

// ServeHTTP handles GET /
func (h *StatusHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "OK"})
}
