package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alorle/playlist-proxy/api"
	"github.com/alorle/playlist-proxy/circuitbreaker"
	"github.com/alorle/playlist-proxy/config"
	"github.com/alorle/playlist-proxy/internal/adapter/driven"
	"github.com/alorle/playlist-proxy/internal/adapter/driver"
	"github.com/alorle/playlist-proxy/internal/application"
	"github.com/alorle/playlist-proxy/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	cfg.Print()

	logger := newLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Info("starting playlist-proxy",
		"addr", cfg.Addr(),
		"cache_size", cfg.Cache.Size,
		"cache_ttl", cfg.Cache.TTL,
		"fetch_attempts", cfg.Fetch.MaxAttempts,
		"log_level", cfg.Log.Level,
	)

	doc, err := api.Load()
	if err != nil {
		log.Fatalf("failed to load openapi document: %v", err)
	}

	// Create driven adapters
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		Timeout:          cfg.CircuitBreaker.Timeout,
		HalfOpenRequests: cfg.CircuitBreaker.HalfOpenRequests,
		Logger:           logger,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(name, to.String())
		},
	})

	fetcher := driven.NewPlaylistHTTPFetcher(driven.FetcherConfig{
		ConnectTimeout:     cfg.Fetch.ConnectTimeout,
		Timeout:            cfg.Fetch.Timeout,
		MaxAttempts:        cfg.Fetch.MaxAttempts,
		MinBackoff:         cfg.Fetch.MinBackoff,
		MaxBackoff:         cfg.Fetch.MaxBackoff,
		MaxConns:           cfg.Fetch.MaxConns,
		MaxIdleConns:       cfg.Fetch.MaxIdleConns,
		MaxBodySize:        int64(cfg.Fetch.MaxBodySize),
		UserAgent:          cfg.Fetch.UserAgent,
		InsecureSkipVerify: cfg.Fetch.InsecureSkipVerify,
	}, breakers, logger)

	cache := driven.NewResultLRUCache(cfg.Cache.Size, cfg.Cache.TTL, logger)

	// Create application services
	channelService := application.NewChannelService(fetcher, cache, logger)

	// Create HTTP server
	server := &http.Server{
		Addr: cfg.Addr(),
		Handler: driver.NewRouter(driver.RouterConfig{
			Service:        channelService,
			OpenAPI:        doc,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Metrics:        promhttp.Handler(),
			Logger:         logger,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

// newLogger builds the process logger. level and format are validated by config.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
