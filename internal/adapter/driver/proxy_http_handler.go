package driver

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/alorle/playlist-proxy/internal/application"
	"github.com/alorle/playlist-proxy/metrics"
)

const proxyEndpoint = "proxy"

// ProxyHTTPHandler handles HTTP requests for unparsed playlists.
type ProxyHTTPHandler struct {
	service *application.ChannelService
}

// NewProxyHTTPHandler creates a new HTTP handler for unparsed playlists.
func NewProxyHTTPHandler(service *application.ChannelService) *ProxyHTTPHandler {
	return &ProxyHTTPHandler{service: service}
}

// ServeHTTP handles GET /proxy?url=...
func (h *ProxyHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var rawURL string
	if err := runtime.BindQueryParameter("form", true, false, "url", r.URL.Query(), &rawURL); err != nil {
		metrics.RecordRequest(proxyEndpoint, outcomeBadRequest)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := h.service.FetchRaw(r.Context(), rawURL)
	if err != nil {
		writeServiceError(w, proxyEndpoint, err)
		return
	}

	metrics.RecordRequest(proxyEndpoint, outcomeOK)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
