// Package config loads bridge settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. They override values from the file.
const (
	EnvEndpoint     = "ARIFOS_MCP_ENDPOINT"
	EnvToken        = "ARIFOS_MCP_TOKEN"
	EnvTimeout      = "ARIFOS_MCP_TIMEOUT"
	EnvActorID      = "ARIFOS_ACTOR_ID"
	EnvSessionReuse = "ARIFOS_SESSION_REUSE"
	EnvListen       = "ARIFOS_BRIDGE_LISTEN"
	EnvLogLevel     = "ARIFOS_LOG_LEVEL"
	EnvLogFormat    = "ARIFOS_LOG_FORMAT"
	EnvTracing      = "ARIFOS_TRACING"
)

// Config is the complete bridge configuration.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// UpstreamConfig describes the arifOS MCP endpoint.
type UpstreamConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	BearerToken string        `yaml:"bearer_token"`
	Timeout     time.Duration `yaml:"timeout"`
	ActorID     string        `yaml:"actor_id"`
	// SessionReuse caches one session across operations instead of a handshake per operation.
	SessionReuse bool `yaml:"session_reuse"`
	MaxEventSize int  `yaml:"max_event_size"`
}

// ServerConfig configures the HTTP shim.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	RateLimit       float64       `yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// TracingConfig enables the stdout span exporter.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			Endpoint: "http://127.0.0.1:8088/mcp",
			Timeout:  30 * time.Second,
			ActorID:  "openclaw-bridge",
		},
		Server: ServerConfig{
			Listen:          ":8089",
			RateLimit:       20,
			RateBurst:       40,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "openclaw-arifos-bridge",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path if path is not empty,
// then the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Upstream.Endpoint = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Upstream.BearerToken = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Upstream.Timeout = d
	}
	if v := os.Getenv(EnvActorID); v != "" {
		cfg.Upstream.ActorID = v
	}
	if b, ok := envBool(EnvSessionReuse); ok {
		cfg.Upstream.SessionReuse = b
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Log.Format = v
	}
	if b, ok := envBool(EnvTracing); ok {
		cfg.Tracing.Enabled = b
	}
	return nil
}

// parseTimeout accepts a Go duration ("15s") or a bare number of milliseconds ("15000").
func parseTimeout(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Upstream.Endpoint)
	if err != nil {
		return fmt.Errorf("upstream.endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("upstream.endpoint: missing host")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream.timeout must be positive")
	}
	if c.Upstream.MaxEventSize < 0 {
		return errors.New("upstream.max_event_size must not be negative")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be at least 1 when rate limiting")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}
	return nil
}
