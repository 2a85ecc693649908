// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration.
type Config struct {
	Port         int           `env:"PORT" envDefault:"8080"`
	DBPath       string        `env:"DB_PATH" envDefault:"data/sessions.db"`
	RecordDir    string        `env:"RECORD_DIR" envDefault:"data/recordings"`
	Retention    time.Duration `env:"RETENTION" envDefault:"24h"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"10m"`
	SendBuffer   int           `env:"SEND_BUFFER" envDefault:"256"`

	// JWTSecret enables token checks on joins. Empty accepts everyone.
	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	// OpenAIAPIKey enables generated session configs. Empty always uses the
	// fallback config.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL" envDefault:"gpt-4"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH is required"))
	}
	if c.Retention <= 0 {
		errs = append(errs, fmt.Errorf("RETENTION must be positive, got %s", c.Retention))
	}
	if c.ReapInterval <= 0 {
		errs = append(errs, fmt.Errorf("REAP_INTERVAL must be positive, got %s", c.ReapInterval))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// CheckOrigin returns the WebSocket origin check for AllowedOrigins, or nil
// when every origin is allowed.
func (c Config) CheckOrigin() func(r *http.Request) bool {
	if len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*") {
		return nil
	}
	allowed := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		allowed = append(allowed, strings.TrimRight(strings.TrimSpace(o), "/"))
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(allowed, u.Scheme+"://"+u.Host)
	}
}
