package driver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/alorle/playlist-proxy/internal/playlist"
	"github.com/alorle/playlist-proxy/metrics"
)

// Request outcomes reported to metrics.
const (
	outcomeOK             = "ok"
	outcomeBadRequest     = "bad_request"
	outcomeUpstreamStatus = "upstream_status"
	outcomeError          = "error"
)

// errorResponse represents a JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps a pipeline error to its HTTP status and records the outcome.
func writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	status, outcome := classifyError(err)
	metrics.RecordRequest(endpoint, outcome)
	writeError(w, status, errorMessage(err))
}

// classifyError returns the HTTP status for err. Input problems are 400, an
// upstream 4xx or 5xx is mirrored and everything else is 500.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, playlist.ErrEmptyURL),
		errors.Is(err, playlist.ErrUnsupportedScheme),
		errors.Is(err, playlist.ErrInvalidURL),
		errors.Is(err, playlist.ErrInvalidFormat):
		return http.StatusBadRequest, outcomeBadRequest
	}

	var statusErr *playlist.UpstreamStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 400 && statusErr.StatusCode <= 599 {
			return statusErr.StatusCode, outcomeUpstreamStatus
		}
		return http.StatusInternalServerError, outcomeUpstreamStatus
	}

	return http.StatusInternalServerError, outcomeError
}

func errorMessage(err error) string {
	var (
		statusErr *playlist.UpstreamStatusError
		parseErr  *playlist.ParseError
	)
	switch {
	case errors.Is(err, playlist.ErrEmptyURL),
		errors.Is(err, playlist.ErrUnsupportedScheme),
		errors.Is(err, playlist.ErrInvalidURL),
		errors.Is(err, playlist.ErrInvalidFormat),
		errors.Is(err, playlist.ErrEmptyResponse),
		errors.Is(err, playlist.ErrResponseTooLarge),
		errors.Is(err, playlist.ErrUpstreamUnreachable),
		errors.As(err, &statusErr),
		errors.As(err, &parseErr):
		return err.Error()
	}
	return "internal server error"
}
