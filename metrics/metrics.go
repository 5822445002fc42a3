package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Fetch attempt outcomes.
const (
	FetchSuccess = "success"
	FetchStatus  = "status"
	FetchError   = "error"
)

var (
	// CacheLookups counts parsed-result cache lookups by result
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlist_cache_lookups_total",
		Help: "Total number of playlist cache lookups",
	}, []string{"result"})

	// CacheEntries tracks the number of parsed results held in the cache
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playlist_cache_entries",
		Help: "Number of parsed playlists currently cached",
	})

	// FetchAttempts counts individual upstream requests, retries included
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlist_fetch_attempts_total",
		Help: "Total number of upstream playlist fetch attempts",
	}, []string{"outcome"})

	// FetchDuration observes the wall time of a complete fetch including retries
	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playlist_fetch_duration_seconds",
		Help:    "Duration of upstream playlist fetches including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})

	// ChannelsParsed observes the channel count of every parsed playlist
	ChannelsParsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playlist_channels_parsed",
		Help:    "Number of channels found per parsed playlist",
		Buckets: prometheus.ExponentialBuckets(1, 4, 9),
	})

	// Requests counts handled API requests by endpoint and outcome
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playlist_requests_total",
		Help: "Total number of playlist API requests",
	}, []string{"endpoint", "outcome"})

	// CircuitBreakerState tracks the current state of circuit breakers
	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "playlist_circuit_breaker_state",
		Help: "Current state of upstream circuit breaker (0=closed, 1=open, 2=half-open)",
	}, []string{"host"})
)

// RecordCacheLookup increments the lookup counter for result
func RecordCacheLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// SetCacheEntries sets the number of cached results
func SetCacheEntries(count int) {
	CacheEntries.Set(float64(count))
}

// RecordFetchAttempt increments the attempt counter for outcome
func RecordFetchAttempt(outcome string) {
	FetchAttempts.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records how long a fetch took
func ObserveFetchDuration(d time.Duration) {
	FetchDuration.Observe(d.Seconds())
}

// ObserveChannelsParsed records the size of a parsed playlist
func ObserveChannelsParsed(count int) {
	ChannelsParsed.Observe(float64(count))
}

// RecordRequest increments the request counter for endpoint and outcome
func RecordRequest(endpoint, outcome string) {
	Requests.WithLabelValues(endpoint, outcome).Inc()
}

// SetCircuitBreakerState updates the circuit breaker state metric
// state should be one of: "CLOSED" (0), "OPEN" (1), "HALF-OPEN" (2)
func SetCircuitBreakerState(host, state string) {
	var value float64
	switch state {
	case "CLOSED":
		value = 0
	case "OPEN":
		value = 1
	case "HALF-OPEN":
		value = 2
	}
	CircuitBreakerState.WithLabelValues(host).Set(value)
}
