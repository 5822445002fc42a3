package driver

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/alorle/playlist-proxy/internal/application"
	"github.com/alorle/playlist-proxy/internal/playlist"
	"github.com/alorle/playlist-proxy/metrics"
)

const channelsEndpoint = "channels"

// ChannelHTTPHandler handles HTTP requests for parsed playlists.
type ChannelHTTPHandler struct {
	service *application.ChannelService
}

// NewChannelHTTPHandler creates a new HTTP handler for parsed playlists.
func NewChannelHTTPHandler(service *application.ChannelService) *ChannelHTTPHandler {
	return &ChannelHTTPHandler{service: service}
}

// channelResponse represents a channel in JSON format.
// Optional attributes are null when the playlist does not carry them.
type channelResponse struct {
	Title    string  `json:"title"`
	Logo     *string `json:"logo"`
	Group    *string `json:"group"`
	URL      string  `json:"url"`
	ID       *string `json:"id"`
	Language *string `json:"language"`
	Country  *string `json:"country"`
}

// channelListResponse represents a parsed playlist in JSON format.
type channelListResponse struct {
	Total    int               `json:"total"`
	Channels []channelResponse `json:"channels"`
}

// ServeHTTP handles GET /channels?url=...&force_refresh=...
func (h *ChannelHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := r.URL.Query()

	var rawURL string
	if err := runtime.BindQueryParameter("form", true, false, "url", query, &rawURL); err != nil {
		metrics.RecordRequest(channelsEndpoint, outcomeBadRequest)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var forceRefresh bool
	if err := runtime.BindQueryParameter("form", true, false, "force_refresh", query, &forceRefresh); err != nil {
		metrics.RecordRequest(channelsEndpoint, outcomeBadRequest)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, cached, err := h.service.GetChannels(r.Context(), rawURL, forceRefresh)
	if err != nil {
		writeServiceError(w, channelsEndpoint, err)
		return
	}

	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}

	metrics.RecordRequest(channelsEndpoint, outcomeOK)
	writeJSON(w, http.StatusOK, toChannelListResponse(result))
}

func toChannelListResponse(result playlist.Result) channelListResponse {
	channels := make([]channelResponse, 0, result.Total())
	for _, ch := range result.Channels {
		channels = append(channels, channelResponse{
			Title:    ch.Title,
			Logo:     optional(ch.Logo),
			Group:    optional(ch.Group),
			URL:      ch.StreamURL,
			ID:       optional(ch.ID),
			Language: optional(ch.Language),
			Country:  optional(ch.Country),
		})
	}

	return channelListResponse{
		Total:    len(channels),
		Channels: channels,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
