// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, persistence, the model backend, the catalog cache, the
// trade-in sweep, rate limiting, auth and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. The same origin
// list is trusted by the auth gate.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ModelConfig configures the OpenAI-compatible chat completion backend.
type ModelConfig struct {
	BaseURL    string        // MODEL_BASE_URL
	APIKey     string        // MODEL_API_KEY
	Name       string        // MODEL_NAME
	Timeout    time.Duration // MODEL_TIMEOUT, per model call
	RPS        float64       // MODEL_RPS, outbound throttle (0 = unlimited)
	MaxRetries int           // MODEL_MAX_RETRIES
}

// CatalogConfig configures the product catalog source and cache.
type CatalogConfig struct {
	Source       string        // CATALOG_SOURCE, file path or http(s) URL
	TTL          time.Duration // CATALOG_TTL
	FetchTimeout time.Duration // CATALOG_FETCH_TIMEOUT
	RetryBackoff time.Duration // CATALOG_RETRY_BACKOFF
}

// TradeInConfig configures the auto-submit sweep.
type TradeInConfig struct {
	AutoSubmitDelay time.Duration // AUTO_SUBMIT_DELAY
	BatchSize       int           // AUTO_SUBMIT_BATCH
}

// RateConfig holds the fixed-window limits.
type RateConfig struct {
	AgentLimit   int           // AGENT_RATE_LIMIT, requests per window per identity
	SessionLimit int           // SESSION_RATE_LIMIT, requests per window per session
	Window       time.Duration // RATE_WINDOW
}

// AuthConfig configures the auth gate.
type AuthConfig struct {
	Required  bool     // AUTH_REQUIRED
	APIKeys   []string // API_KEYS
	JWTSecret string   // AUTH_JWT_SECRET
}

// HistoryConfig bounds the conversation history sent to the model.
type HistoryConfig struct {
	MaxTurns int // HISTORY_MAX_TURNS
	MaxRunes int // HISTORY_MAX_RUNES
}

// SMTPConfig configures staff notification email.
type SMTPConfig struct {
	Host     string // SMTP_HOST; empty disables email (log-only notifier)
	Port     int    // SMTP_PORT
	Username string // SMTP_USERNAME
	Password string // SMTP_PASSWORD
	From     string // SMTP_FROM
	To       string // STAFF_EMAIL
}

// Config holds all configuration values for the application.
type Config struct {
	Env string // development|staging|production

	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	MaxBodyBytes      int64         // request body cap
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// Persistence
	DBDriver string // sqlite|postgres
	DBDSN    string

	// External collaborators
	RedisURL        string // REDIS_URL; empty disables server-side history
	MemoryURL       string // MEMORY_URL; empty disables long-term memory
	WebSearchURL    string // WEB_SEARCH_URL
	OrderWebhookURL string // ORDER_WEBHOOK_URL

	Model   ModelConfig
	Catalog CatalogConfig
	TradeIn TradeInConfig
	Rate    RateConfig
	Auth    AuthConfig
	History HistoryConfig
	SMTP    SMTPConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// Production reports whether the service runs in production mode.
func (c Config) Production() bool { return c.Env == "production" }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Env: strings.ToLower(getenv("APP_ENV", "development")),

		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 90*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(getint("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Persistence
		DBDriver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBDSN:    getenv("DB_DSN", "app.db"),

		RedisURL:        getenv("REDIS_URL", ""),
		MemoryURL:       getenv("MEMORY_URL", ""),
		WebSearchURL:    getenv("WEB_SEARCH_URL", ""),
		OrderWebhookURL: getenv("ORDER_WEBHOOK_URL", ""),

		Model: ModelConfig{
			BaseURL:    strings.TrimRight(getenv("MODEL_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:     getenv("MODEL_API_KEY", ""),
			Name:       getenv("MODEL_NAME", "gpt-4o-mini"),
			Timeout:    getdur("MODEL_TIMEOUT", 30*time.Second),
			RPS:        getfloat("MODEL_RPS", 5),
			MaxRetries: getint("MODEL_MAX_RETRIES", 2),
		},
		Catalog: CatalogConfig{
			Source:       getenv("CATALOG_SOURCE", "data/catalog.json"),
			TTL:          getdur("CATALOG_TTL", time.Hour),
			FetchTimeout: getdur("CATALOG_FETCH_TIMEOUT", 10*time.Second),
			RetryBackoff: getdur("CATALOG_RETRY_BACKOFF", time.Minute),
		},
		TradeIn: TradeInConfig{
			AutoSubmitDelay: getdur("AUTO_SUBMIT_DELAY", 2*time.Minute),
			BatchSize:       getint("AUTO_SUBMIT_BATCH", 100),
		},
		Rate: RateConfig{
			AgentLimit:   getint("AGENT_RATE_LIMIT", 30),
			SessionLimit: getint("SESSION_RATE_LIMIT", 10),
			Window:       getdur("RATE_WINDOW", time.Minute),
		},
		Auth: AuthConfig{
			Required:  getbool("AUTH_REQUIRED", true),
			APIKeys:   splitCSV(getenv("API_KEYS", "")),
			JWTSecret: getenv("AUTH_JWT_SECRET", ""),
		},
		History: HistoryConfig{
			MaxTurns: getint("HISTORY_MAX_TURNS", 20),
			MaxRunes: getint("HISTORY_MAX_RUNES", 12000),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
			To:       getenv("STAFF_EMAIL", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "retail-assistant"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Env == "prod" {
		cfg.Env = "production"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return cfg, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.DBDriver)
	}
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return cfg, errors.New("DB_DSN must not be empty")
	}
	if cfg.Model.Timeout <= 0 {
		return cfg, errors.New("MODEL_TIMEOUT must be > 0")
	}
	if cfg.Model.RPS < 0 {
		return cfg, errors.New("MODEL_RPS must be >= 0")
	}
	if cfg.Model.MaxRetries < 0 {
		return cfg, errors.New("MODEL_MAX_RETRIES must be >= 0")
	}
	if strings.TrimSpace(cfg.Catalog.Source) == "" {
		return cfg, errors.New("CATALOG_SOURCE must not be empty")
	}
	if cfg.Catalog.TTL <= 0 || cfg.Catalog.FetchTimeout <= 0 || cfg.Catalog.RetryBackoff < 0 {
		return cfg, errors.New("catalog TTL and fetch timeout must be positive")
	}
	if cfg.TradeIn.AutoSubmitDelay < 0 {
		return cfg, errors.New("AUTO_SUBMIT_DELAY must be >= 0")
	}
	if cfg.TradeIn.BatchSize < 1 {
		return cfg, errors.New("AUTO_SUBMIT_BATCH must be >= 1")
	}
	if cfg.Rate.AgentLimit < 1 || cfg.Rate.SessionLimit < 1 {
		return cfg, errors.New("rate limits must be >= 1")
	}
	if cfg.Rate.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if !cfg.Auth.Required && cfg.Production() {
		return cfg, errors.New("AUTH_REQUIRED may only be disabled outside production")
	}
	if cfg.History.MaxTurns < 0 || cfg.History.MaxRunes < 0 {
		return cfg, errors.New("history bounds must be >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

// getdur accepts Go durations ("90s") and bare integers, which are read as
// minutes for AUTO_SUBMIT_DELAY-style settings.
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		v = strings.TrimSpace(v)
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
