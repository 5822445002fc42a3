package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Log levels and formats accepted by the log section.
var (
	validLogLevels  = []string{"DEBUG", "INFO", "WARN", "ERROR"}
	validLogFormats = []string{"json", "text"}
)

// Config holds the complete application configuration
type Config struct {
	// HTTP server settings
	HTTP struct {
		Address         string        `yaml:"address"`
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	// Upstream playlist fetch settings
	Fetch FetchConfig `yaml:"fetch"`

	// Parsed result cache settings
	Cache struct {
		Size int           `yaml:"size"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	// Per-host circuit breaker settings
	CircuitBreaker struct {
		FailureThreshold int           `yaml:"failure_threshold"`
		Timeout          time.Duration `yaml:"timeout"`
		HalfOpenRequests int           `yaml:"half_open_requests"`
	} `yaml:"circuit_breaker"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// FetchConfig controls the outbound HTTP client and its retry policy.
type FetchConfig struct {
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
	MinBackoff         time.Duration `yaml:"min_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	MaxConns           int           `yaml:"max_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	MaxBodySize        int           `yaml:"max_body_size"` // bytes
	UserAgent          string        `yaml:"user_agent"` // empty keeps the fetcher's browser identity
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	cfg := &Config{}

	cfg.HTTP.Address = "0.0.0.0"
	cfg.HTTP.Port = "8000"
	cfg.HTTP.ReadTimeout = 15 * time.Second
	// Must outlast a fully retried fetch.
	cfg.HTTP.WriteTimeout = 4 * time.Minute
	cfg.HTTP.ShutdownTimeout = 10 * time.Second

	cfg.Fetch = FetchConfig{
		ConnectTimeout:     20 * time.Second,
		Timeout:            60 * time.Second,
		MaxAttempts:        3,
		MinBackoff:         4 * time.Second,
		MaxBackoff:         10 * time.Second,
		MaxConns:           10,
		MaxIdleConns:       5,
		MaxBodySize:        64 << 20,
		InsecureSkipVerify: true,
	}

	cfg.Cache.Size = 100
	cfg.Cache.TTL = time.Hour

	cfg.CircuitBreaker.FailureThreshold = 5
	cfg.CircuitBreaker.Timeout = 30 * time.Second
	cfg.CircuitBreaker.HalfOpenRequests = 1

	cfg.CORS.AllowedOrigins = []string{"*"}

	cfg.Log.Level = "INFO"
	cfg.Log.Format = "json"

	return cfg
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.HTTP.Address, c.HTTP.Port)
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	var errors []string

	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"http.read_timeout", c.HTTP.ReadTimeout},
		{"http.write_timeout", c.HTTP.WriteTimeout},
		{"http.shutdown_timeout", c.HTTP.ShutdownTimeout},
		{"fetch.connect_timeout", c.Fetch.ConnectTimeout},
		{"fetch.timeout", c.Fetch.Timeout},
		{"fetch.min_backoff", c.Fetch.MinBackoff},
		{"fetch.max_backoff", c.Fetch.MaxBackoff},
		{"cache.ttl", c.Cache.TTL},
		{"circuit_breaker.timeout", c.CircuitBreaker.Timeout},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive", d.name))
		}
	}

	positiveInts := []struct {
		name  string
		value int
	}{
		{"fetch.max_attempts", c.Fetch.MaxAttempts},
		{"fetch.max_conns", c.Fetch.MaxConns},
		{"fetch.max_idle_conns", c.Fetch.MaxIdleConns},
		{"fetch.max_body_size", c.Fetch.MaxBodySize},
		{"cache.size", c.Cache.Size},
		{"circuit_breaker.failure_threshold", c.CircuitBreaker.FailureThreshold},
		{"circuit_breaker.half_open_requests", c.CircuitBreaker.HalfOpenRequests},
	}
	for _, n := range positiveInts {
		if n.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive", n.name))
		}
	}

	if c.HTTP.Address == "" {
		errors = append(errors, "http.address is required")
	}
	if c.HTTP.Port == "" {
		errors = append(errors, "http.port is required")
	}

	if c.Fetch.MinBackoff > c.Fetch.MaxBackoff {
		errors = append(errors, "fetch.min_backoff must be less than or equal to fetch.max_backoff")
	}
	if c.Fetch.ConnectTimeout > c.Fetch.Timeout {
		errors = append(errors, "fetch.connect_timeout must be less than or equal to fetch.timeout")
	}
	if c.Fetch.MaxIdleConns > c.Fetch.MaxConns {
		errors = append(errors, "fetch.max_idle_conns must be less than or equal to fetch.max_conns")
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		errors = append(errors, "cors.allowed_origins must not be empty")
	}

	if canonical(c.Log.Level, validLogLevels) == "" {
		errors = append(errors, fmt.Sprintf("log.level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	if canonical(c.Log.Format, validLogFormats) == "" {
		errors = append(errors, fmt.Sprintf("log.format must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load loads configuration from a file (if present) and applies environment variable overrides
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); err == nil {
		cfg, err = LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg = Default()
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) error {
	p := &envParser{}

	p.parseString("HTTP_ADDRESS", &cfg.HTTP.Address)
	p.parseString("HTTP_PORT", &cfg.HTTP.Port)
	p.parseDuration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	p.parseDuration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)
	p.parseDuration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	p.parseDuration("FETCH_CONNECT_TIMEOUT", &cfg.Fetch.ConnectTimeout)
	p.parseDuration("FETCH_TIMEOUT", &cfg.Fetch.Timeout)
	p.parseInt("FETCH_MAX_ATTEMPTS", &cfg.Fetch.MaxAttempts)
	p.parseDuration("FETCH_MIN_BACKOFF", &cfg.Fetch.MinBackoff)
	p.parseDuration("FETCH_MAX_BACKOFF", &cfg.Fetch.MaxBackoff)
	p.parseInt("FETCH_MAX_CONNS", &cfg.Fetch.MaxConns)
	p.parseInt("FETCH_MAX_IDLE_CONNS", &cfg.Fetch.MaxIdleConns)
	p.parseInt("FETCH_MAX_BODY_SIZE", &cfg.Fetch.MaxBodySize)
	p.parseString("FETCH_USER_AGENT", &cfg.Fetch.UserAgent)
	p.parseBool("FETCH_INSECURE_SKIP_VERIFY", &cfg.Fetch.InsecureSkipVerify)

	p.parseInt("CACHE_SIZE", &cfg.Cache.Size)
	p.parseDuration("CACHE_TTL", &cfg.Cache.TTL)

	p.parseInt("CB_FAILURE_THRESHOLD", &cfg.CircuitBreaker.FailureThreshold)
	p.parseDuration("CB_TIMEOUT", &cfg.CircuitBreaker.Timeout)
	p.parseInt("CB_HALF_OPEN_REQUESTS", &cfg.CircuitBreaker.HalfOpenRequests)

	p.parseList("CORS_ALLOWED_ORIGINS", &cfg.CORS.AllowedOrigins)

	p.parseEnum("LOG_LEVEL", &cfg.Log.Level, validLogLevels)
	p.parseEnum("LOG_FORMAT", &cfg.Log.Format, validLogFormats)

	return p.err()
}

// Print outputs the configuration to stdout
func (c *Config) Print() {
	fmt.Printf("httpAddress: %v\n", c.HTTP.Address)
	fmt.Printf("httpPort: %v\n", c.HTTP.Port)
	fmt.Printf("fetchTimeout: %v (connect %v)\n", c.Fetch.Timeout, c.Fetch.ConnectTimeout)
	fmt.Printf("fetchAttempts: %v (backoff %v..%v)\n", c.Fetch.MaxAttempts, c.Fetch.MinBackoff, c.Fetch.MaxBackoff)
	fmt.Printf("fetchMaxConns: %v (idle %v)\n", c.Fetch.MaxConns, c.Fetch.MaxIdleConns)
	fmt.Printf("fetchMaxBodySize: %v\n", c.Fetch.MaxBodySize)
	fmt.Printf("fetchInsecureSkipVerify: %v\n", c.Fetch.InsecureSkipVerify)
	fmt.Printf("cacheSize: %v\n", c.Cache.Size)
	fmt.Printf("cacheTTL: %v\n", c.Cache.TTL)
	fmt.Printf("circuitBreaker: threshold=%v timeout=%v halfOpen=%v\n",
		c.CircuitBreaker.FailureThreshold, c.CircuitBreaker.Timeout, c.CircuitBreaker.HalfOpenRequests)
	fmt.Printf("corsAllowedOrigins: %v\n", strings.Join(c.CORS.AllowedOrigins, ","))
	fmt.Printf("logLevel: %v\n", c.Log.Level)
	fmt.Printf("logFormat: %v\n", c.Log.Format)
}
