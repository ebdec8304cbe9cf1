// Package config reads process configuration from the environment. Nothing
// else in the module touches os.Getenv.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultBaseURL = "https://api.cerebras.ai/v1"

type Config struct {
	Port string

	UpstreamBaseURL     string
	UpstreamModel       string
	UpstreamAPIKey      string
	UpstreamAPIKeyParam string
	UpstreamTimeout     time.Duration
	MaxTokens           int
	SendTemperature     bool

	BreakerMaxFailures int
	BreakerCooldown    time.Duration

	ProfileFile string

	AllowedOrigins    []string
	MaxBodyBytes      int64
	TrustProxyHeaders bool

	ChatRateLimit     int
	ChatRateWindow    time.Duration
	FailureRateLimit  int
	FailureRateWindow time.Duration
	RateLimitTable    string

	LogLevel slog.Level
}

// ConfigurationError reports settings the process cannot start without.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "config: " + strings.Join(e.Problems, "; ")
}

// LoadDotEnv loads .env files into the environment when present. Variables
// already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not load env file", "file", f, "err", err)
		}
	}
}

// Load reads the configuration through getenv (os.Getenv in production).
func Load(getenv func(string) string) (Config, error) {
	e := envReader{getenv: getenv}
	cfg := Config{
		Port:                e.str("PORT", "3001"),
		UpstreamBaseURL:     e.str("UPSTREAM_BASE_URL", DefaultBaseURL),
		UpstreamModel:       e.str("UPSTREAM_MODEL", ""),
		UpstreamAPIKey:      e.str("UPSTREAM_API_KEY", ""),
		UpstreamAPIKeyParam: e.str("UPSTREAM_API_KEY_PARAM", ""),
		UpstreamTimeout:     e.duration("UPSTREAM_TIMEOUT", 8*time.Second),
		MaxTokens:           e.int("UPSTREAM_MAX_TOKENS", 150),
		SendTemperature:     e.bool("UPSTREAM_SEND_TEMPERATURE", true),
		BreakerMaxFailures:  e.int("BREAKER_MAX_FAILURES", 5),
		BreakerCooldown:     e.duration("BREAKER_COOLDOWN", 30*time.Second),
		ProfileFile:         e.str("PROFILE_FILE", ""),
		AllowedOrigins:      e.list("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxBodyBytes:        int64(e.int("MAX_BODY_BYTES", 10*1024)),
		TrustProxyHeaders:   e.bool("TRUST_PROXY_HEADERS", false),
		ChatRateLimit:       e.int("CHAT_RATE_LIMIT", 30),
		ChatRateWindow:      e.duration("CHAT_RATE_WINDOW", time.Minute),
		FailureRateLimit:    e.int("FAILURE_RATE_LIMIT", 5),
		FailureRateWindow:   e.duration("FAILURE_RATE_WINDOW", 15*time.Minute),
		RateLimitTable:      e.str("RATE_LIMIT_TABLE", ""),
		LogLevel:            e.level("LOG_LEVEL", slog.LevelInfo),
	}

	problems := e.problems
	if cfg.UpstreamModel == "" {
		problems = append(problems, "UPSTREAM_MODEL is required")
	}
	if cfg.UpstreamAPIKey == "" && cfg.UpstreamAPIKeyParam == "" {
		problems = append(problems, "one of UPSTREAM_API_KEY or UPSTREAM_API_KEY_PARAM is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		problems = append(problems, "MAX_BODY_BYTES must be positive")
	}
	if cfg.BreakerMaxFailures < 0 {
		problems = append(problems, "BREAKER_MAX_FAILURES must not be negative")
	}
	if len(problems) > 0 {
		return Config{}, &ConfigurationError{Problems: problems}
	}
	return cfg, nil
}

// NeedsAWS reports whether any AWS-backed collaborator is configured.
func (c Config) NeedsAWS() bool {
	return c.UpstreamAPIKeyParam != "" || c.RateLimitTable != ""
}

type envReader struct {
	getenv   func(string) string
	problems []string
}

func (e *envReader) str(key, def string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	return v
}

func (e *envReader) int(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *envReader) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.problems = append(e.problems, fmt.Sprintf("%s: %q is not a positive duration", key, v))
		return def
	}
	return d
}

func (e *envReader) list(key string, def []string) []string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (e *envReader) level(key string, def slog.Level) slog.Level {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		e.problems = append(e.problems, fmt.Sprintf("%s: %q is not a log level", key, v))
		return def
	}
	return l
}
