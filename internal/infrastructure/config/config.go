package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Logging   LogConfig
	Tracing   TracingConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Client    ClientConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// APIConfig holds the global route prefix and URI version.
type APIConfig struct {
	Prefix  string `envconfig:"API_PREFIX" default:"api"`
	Version string `envconfig:"API_VERSION" default:"v1"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// TracingConfig holds tracer and span annotation configuration.
type TracingConfig struct {
	ServiceName  string  `envconfig:"SERVICE_NAME" default:"spanwire"`
	Enabled      bool    `envconfig:"TRACE_ENABLED" default:"true"`
	SampleRatio  float64 `envconfig:"TRACE_SAMPLE_RATIO" default:"1"`
	LogSpans     bool    `envconfig:"TRACE_LOG_SPANS" default:"false"`
	CaptureBody  bool    `envconfig:"TRACE_CAPTURE_BODY" default:"true"`
	MaxBodyBytes int     `envconfig:"TRACE_MAX_BODY_BYTES" default:"4096"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Enabled bool     `envconfig:"CORS_ENABLED" default:"true"`
	Origins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Rate limit scopes.
const (
	RateLimitScopeIP     = "ip"
	RateLimitScopeGlobal = "global"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int           `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int           `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool          `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
	Scope             string        `envconfig:"RATE_LIMIT_SCOPE" default:"ip"`
	IdleTTL           time.Duration `envconfig:"RATE_LIMIT_IDLE_TTL" default:"3m"`
}

// ClientConfig holds the downstream HTTP client configuration.
type ClientConfig struct {
	Timeout    time.Duration `envconfig:"CLIENT_TIMEOUT" default:"30s"`
	RetryCount int           `envconfig:"CLIENT_RETRIES" default:"2"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		API: APIConfig{
			Prefix:  "api",
			Version: "v1",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Tracing: TracingConfig{
			ServiceName:  "spanwire",
			Enabled:      true,
			SampleRatio:  1,
			LogSpans:     false,
			CaptureBody:  true,
			MaxBodyBytes: 4096,
		},
		CORS: CORSConfig{
			Enabled: true,
			Origins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           false,
			Scope:             RateLimitScopeIP,
			IdleTTL:           3 * time.Minute,
		},
		Client: ClientConfig{
			Timeout:    30 * time.Second,
			RetryCount: 2,
		},
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Tracing.ServiceName == "" {
		errs = append(errs, errors.New("tracing service name is required"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio %v out of range [0,1]", c.Tracing.SampleRatio))
	}
	if c.Tracing.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("trace max body bytes %d is negative", c.Tracing.MaxBodyBytes))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate limit rps must be positive when enabled"))
	}
	if c.RateLimit.Scope != RateLimitScopeIP && c.RateLimit.Scope != RateLimitScopeGlobal {
		errs = append(errs, fmt.Errorf("rate limit scope %q must be %q or %q",
			c.RateLimit.Scope, RateLimitScopeIP, RateLimitScopeGlobal))
	}
	if c.Client.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("client retries %d is negative", c.Client.RetryCount))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// BasePath returns the versioned route prefix, e.g. "/api/v1".
func (a APIConfig) BasePath() string {
	var parts []string
	for _, p := range []string{a.Prefix, a.Version} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return "/" + strings.Join(parts, "/")
}
