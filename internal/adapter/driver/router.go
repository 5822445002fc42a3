package driver

import (
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alorle/playlist-proxy/internal/application"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Service        *application.ChannelService
	OpenAPI        *openapi3.T // nil disables request validation and /openapi.json
	AllowedOrigins []string
	Metrics        http.Handler // nil disables /metrics
	Logger         *slog.Logger
}

// NewRouter builds the HTTP handler serving every endpoint of the service.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(AccessLog(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	r.Method(http.MethodGet, "/", NewStatusHTTPHandler())
	r.Method(http.MethodGet, "/health", NewHealthHTTPHandler())

	if cfg.OpenAPI != nil {
		r.Method(http.MethodGet, "/openapi.json", NewDocumentationHTTPHandler(cfg.OpenAPI))
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		if cfg.OpenAPI != nil {
			r.Use(RequestValidator(cfg.OpenAPI))
		}
		r.Method(http.MethodGet, "/channels", NewChannelHTTPHandler(cfg.Service))
		r.Method(http.MethodGet, "/proxy", NewProxyHTTPHandler(cfg.Service))
	})

	return r
}
