// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.quill/config.yaml)
//  3. Default values
//
// Sensitive values (postgres password, auth secret) are masked in
// MarshalJSON and String so they never leak into logs.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required model API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidQuotaCeiling indicates the quota ceiling is out of range.
	ErrInvalidQuotaCeiling = errors.New("invalid quota ceiling")

	// ErrInvalidTurnTimeout indicates the turn timeout is out of range.
	ErrInvalidTurnTimeout = errors.New("invalid turn timeout")

	// ErrInvalidImageMaxTokens indicates the image response cap is out of range.
	ErrInvalidImageMaxTokens = errors.New("invalid image max tokens")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingAuthSecret indicates the auth HMAC secret is not set.
	ErrMissingAuthSecret = errors.New("missing auth secret")

	// ErrInvalidAuthSecret indicates the auth HMAC secret is too short.
	ErrInvalidAuthSecret = errors.New("invalid auth secret")
)

// Default policy constants.
const (
	// DefaultQuotaCeiling is the per-conversation token ceiling. A turn
	// is rejected once cumulative usage exceeds this value.
	DefaultQuotaCeiling = 600

	// DefaultTurnTimeoutSeconds bounds a whole turn
	// (classification + generation + persistence).
	DefaultTurnTimeoutSeconds = 30

	// DefaultImageMaxTokens caps image-path responses to bound cost.
	DefaultImageMaxTokens = 100
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration. Names are provider-qualified for Genkit
	// (e.g. "googleai/gemini-2.5-flash", "openai/gpt-4o-mini").
	ChatModel   string `mapstructure:"chat_model" json:"chat_model"`     // text-and-code turns
	VisionModel string `mapstructure:"vision_model" json:"vision_model"` // image turns
	RouterModel string `mapstructure:"router_model" json:"router_model"` // tool classification
	TitleModel  string `mapstructure:"title_model" json:"title_model"`   // title generation

	// Turn policy.
	QuotaCeiling       int `mapstructure:"quota_ceiling" json:"quota_ceiling"`
	TurnTimeoutSeconds int `mapstructure:"turn_timeout_seconds" json:"turn_timeout_seconds"`
	ImageMaxTokens     int `mapstructure:"image_max_tokens" json:"image_max_tokens"`

	// HTTP server.
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // per-IP token bucket burst

	// AuthSecret signs bearer tokens. SENSITIVE: masked in MarshalJSON.
	AuthSecret string `mapstructure:"auth_secret" json:"auth_secret"`

	// Storage.
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability (OTLP trace export; empty endpoint disables tracing).
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment  string `mapstructure:"environment" json:"environment"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`

	// Logging.
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug|info|warn|error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".quill")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL has highest priority for PostgreSQL settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Model defaults
	viper.SetDefault("chat_model", "googleai/gemini-2.0-flash-lite")
	viper.SetDefault("vision_model", "googleai/gemini-2.0-flash")
	viper.SetDefault("router_model", "googleai/gemini-2.0-flash-lite")
	viper.SetDefault("title_model", "googleai/gemini-2.0-flash-lite")

	// Turn policy defaults
	viper.SetDefault("quota_ceiling", DefaultQuotaCeiling)
	viper.SetDefault("turn_timeout_seconds", DefaultTurnTimeoutSeconds)
	viper.SetDefault("image_max_tokens", DefaultImageMaxTokens)

	// HTTP defaults
	viper.SetDefault("listen_addr", "127.0.0.1:8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	// PostgreSQL defaults for local development
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "quill")
	viper.SetDefault("postgres_password", "quill_dev_password")
	viper.SetDefault("postgres_db_name", "quill")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Observability defaults (tracing disabled unless endpoint set)
	viper.SetDefault("otlp_endpoint", "")
	viper.SetDefault("environment", "dev")
	viper.SetDefault("service_name", "quill")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// plugins, not via viper; Validate checks their presence.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("auth_secret", "QUILL_AUTH_SECRET")
	mustBind("listen_addr", "QUILL_LISTEN_ADDR")
	mustBind("cors_origins", "QUILL_CORS_ORIGINS")
	mustBind("trust_proxy", "QUILL_TRUST_PROXY")
	mustBind("rate_burst", "QUILL_RATE_BURST")
	mustBind("quota_ceiling", "QUILL_QUOTA_CEILING")
	mustBind("turn_timeout_seconds", "QUILL_TURN_TIMEOUT_SECONDS")
	mustBind("image_max_tokens", "QUILL_IMAGE_MAX_TOKENS")
	mustBind("chat_model", "QUILL_CHAT_MODEL")
	mustBind("vision_model", "QUILL_VISION_MODEL")
	mustBind("router_model", "QUILL_ROUTER_MODEL")
	mustBind("title_model", "QUILL_TITLE_MODEL")
	mustBind("otlp_endpoint", "QUILL_OTLP_ENDPOINT")
	mustBind("log_level", "QUILL_LOG_LEVEL")
	mustBind("log_json", "QUILL_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8
// characters or fewer are fully masked to prevent substring matching;
// longer secrets keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.AuthSecret = maskSecret(a.AuthSecret)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// LogLevelSlog maps the configured log level string to slog.Level.
// Unknown values fall back to info.
func (c *Config) LogLevelSlog() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
