package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Model API keys are read directly by the Genkit plugins. Require
	// a key for whichever providers the configured models reference.
	models := []string{c.ChatModel, c.VisionModel, c.RouterModel, c.TitleModel}
	for _, m := range models {
		if m == "" {
			return fmt.Errorf("%w: model name cannot be empty", ErrInvalidModelName)
		}
		if !strings.Contains(m, "/") {
			return fmt.Errorf("%w: %q must be provider-qualified (e.g. googleai/gemini-2.0-flash)",
				ErrInvalidModelName, m)
		}
	}
	if hasProvider(models, "googleai") && os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	if hasProvider(models, "openai") && os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	// Turn policy.
	if c.QuotaCeiling < 0 {
		return fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidQuotaCeiling, c.QuotaCeiling)
	}
	if c.TurnTimeoutSeconds < 1 || c.TurnTimeoutSeconds > 600 {
		return fmt.Errorf("%w: must be between 1 and 600 seconds, got %d",
			ErrInvalidTurnTimeout, c.TurnTimeoutSeconds)
	}
	if c.ImageMaxTokens < 1 || c.ImageMaxTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65536, got %d",
			ErrInvalidImageMaxTokens, c.ImageMaxTokens)
	}

	// PostgreSQL.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "quill_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// ValidateServe applies additional checks required for serve mode.
func (c *Config) ValidateServe() error {
	if c.AuthSecret == "" {
		return fmt.Errorf("%w: set QUILL_AUTH_SECRET or auth_secret in config.yaml", ErrMissingAuthSecret)
	}
	if len(c.AuthSecret) < 32 {
		return fmt.Errorf("%w: must be at least 32 bytes, got %d", ErrInvalidAuthSecret, len(c.AuthSecret))
	}
	return nil
}

// hasProvider reports whether any model name uses the given provider prefix.
func hasProvider(models []string, provider string) bool {
	for _, m := range models {
		if strings.HasPrefix(m, provider+"/") {
			return true
		}
	}
	return false
}
