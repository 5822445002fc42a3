package driven

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alorle/playlist-proxy/circuitbreaker"
	"github.com/alorle/playlist-proxy/internal/playlist"
	port "github.com/alorle/playlist-proxy/internal/port/driven"
	"github.com/alorle/playlist-proxy/metrics"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	previewSize = 200

	defaultMaxBodySize = 64 << 20
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Content types that playlist servers are known to answer with. Anything else
// is logged but still handed to the caller.
var playlistContentTypes = map[string]bool{
	"application/vnd.apple.mpegurl":       true,
	"application/vnd.apple.mpegurl.audio": true,
	"application/x-mpegurl":               true,
	"audio/mpegurl":                       true,
	"audio/x-mpegurl":                     true,
	"application/octet-stream":            true,
	"binary/octet-stream":                 true,
	"text/plain":                          true,
}

// FetcherConfig controls the outbound client and the retry policy of PlaylistHTTPFetcher.
type FetcherConfig struct {
	ConnectTimeout     time.Duration
	Timeout            time.Duration // per attempt, redirects and body included
	MaxAttempts        int
	MinBackoff         time.Duration
	MaxBackoff         time.Duration
	MaxConns           int // per upstream host; further requests wait for a free connection
	MaxIdleConns       int
	MaxBodySize        int64 // larger bodies fail with playlist.ErrResponseTooLarge
	UserAgent          string
	InsecureSkipVerify bool
}

// PlaylistHTTPFetcher implements the PlaylistFetcher port over HTTP with bounded
// retries, exponential backoff and a circuit breaker per upstream host.
type PlaylistHTTPFetcher struct {
	client   *http.Client
	config   FetcherConfig
	breakers *circuitbreaker.Registry
	logger   *slog.Logger

	// wait pauses between attempts; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewPlaylistHTTPFetcher creates a fetcher with its own pooled HTTP client.
// breakers may be nil to disable circuit breaking.
func NewPlaylistHTTPFetcher(cfg FetcherConfig, breakers *circuitbreaker.Registry, logger *slog.Logger) *PlaylistHTTPFetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	return &PlaylistHTTPFetcher{
		client:   NewPlaylistHTTPClient(cfg),
		config:   cfg,
		breakers: breakers,
		logger:   logger,
		wait:     sleepContext,
	}
}

// NewPlaylistHTTPClient builds the pooled client used for upstream requests.
// Redirects are followed with the default policy.
func NewPlaylistHTTPClient(cfg FetcherConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // playlist hosts commonly serve self-signed certificates
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		MaxConnsPerHost:       cfg.MaxConns,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConns,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// SetHTTPClient replaces the HTTP client (useful for testing)
func (f *PlaylistHTTPFetcher) SetHTTPClient(client *http.Client) {
	f.client = client
}

// Fetch retrieves the playlist at rawURL, retrying transient failures.
func (f *PlaylistHTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	start := time.Now()
	defer func() { metrics.ObserveFetchDuration(time.Since(start)) }()

	if f.breakers == nil {
		return f.fetchWithRetry(ctx, rawURL)
	}

	host := upstreamHost(rawURL)

	var (
		body     string
		fetchErr error
	)
	err := f.breakers.For(host).Execute(func() error {
		body, fetchErr = f.fetchWithRetry(ctx, rawURL)
		if fetchErr != nil && ctx.Err() != nil {
			// The caller left before the upstream answered.
			return circuitbreaker.Ignore(fetchErr)
		}
		if isUpstreamFault(fetchErr) {
			return fetchErr
		}
		return nil
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrHalfOpenLimitReached) {
		f.logger.Warn("upstream rejected by circuit breaker", "url", rawURL, "host", host, "error", err)
		return "", fmt.Errorf("%w: %s: %w", playlist.ErrUpstreamUnreachable, host, err)
	}

	return body, fetchErr
}

func (f *PlaylistHTTPFetcher) fetchWithRetry(ctx context.Context, rawURL string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := f.backoff(attempt - 1)
			f.logger.Warn("retrying playlist fetch",
				"url", rawURL,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			if err := f.wait(ctx, backoff); err != nil {
				return "", fmt.Errorf("%w: %w", playlist.ErrUpstreamUnreachable, err)
			}
		}

		body, err := f.fetchOnce(ctx, rawURL, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) {
			return "", err
		}
	}

	f.logger.Error("playlist fetch failed after retries",
		"url", rawURL,
		"attempts", f.config.MaxAttempts,
		"error", lastErr,
	)
	return "", lastErr
}

func (f *PlaylistHTTPFetcher) fetchOnce(ctx context.Context, rawURL string, attempt int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", playlist.ErrInvalidURL, err)
	}
	f.setHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.RecordFetchAttempt(metrics.FetchError)
		f.logger.Warn("playlist request failed", "url", rawURL, "attempt", attempt, "error", err)
		return "", fmt.Errorf("%w: %w", playlist.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	f.logger.Info("upstream responded", "url", rawURL, "attempt", attempt, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		metrics.RecordFetchAttempt(metrics.FetchStatus)
		return "", &playlist.UpstreamStatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isPlaylistContentType(ct) {
		f.logger.Warn("unexpected content type from upstream", "url", rawURL, "content_type", ct)
	}

	limit := f.config.MaxBodySize
	if resp.ContentLength > limit {
		return "", f.tooLarge(rawURL, limit)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		metrics.RecordFetchAttempt(metrics.FetchError)
		f.logger.Warn("failed to read playlist body", "url", rawURL, "attempt", attempt, "error", err)
		return "", fmt.Errorf("%w: reading body: %w", playlist.ErrUpstreamUnreachable, err)
	}
	if int64(len(data)) > limit {
		return "", f.tooLarge(rawURL, limit)
	}
	metrics.RecordFetchAttempt(metrics.FetchSuccess)

	data = bytes.TrimPrefix(data, utf8BOM)

	f.logger.Info("received playlist", "url", rawURL, "content_length", len(data))
	if len(data) > 0 {
		f.logger.Debug("content preview", "url", rawURL, "preview", string(data[:min(len(data), previewSize)]))
	}

	return string(data), nil
}

func (f *PlaylistHTTPFetcher) tooLarge(rawURL string, limit int64) error {
	metrics.RecordFetchAttempt(metrics.FetchError)
	f.logger.Error("playlist body exceeds size limit", "url", rawURL, "limit", limit)
	return fmt.Errorf("%w: more than %d bytes", playlist.ErrResponseTooLarge, limit)
}

func (f *PlaylistHTTPFetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
}

// backoff returns the pause before retry n (1-based): MinBackoff doubled per
// retry, capped at MaxBackoff.
func (f *PlaylistHTTPFetcher) backoff(n int) time.Duration {
	d := f.config.MinBackoff
	for i := 1; i < n && d < f.config.MaxBackoff; i++ {
		d *= 2
	}
	return min(d, f.config.MaxBackoff)
}

// isUpstreamFault reports whether err should count against the host's circuit breaker.
func isUpstreamFault(err error) bool {
	return err != nil && isRetryable(err)
}

func isRetryable(err error) bool {
	var statusErr *playlist.UpstreamStatusError
	if errors.As(err, &statusErr) {
		return isRetryableStatus(statusErr.StatusCode)
	}
	return errors.Is(err, playlist.ErrUpstreamUnreachable)
}

func isRetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

func isPlaylistContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return playlistContentTypes[mediaType]
}

func upstreamHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ port.PlaylistFetcher = (*PlaylistHTTPFetcher)(nil)
