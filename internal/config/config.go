// Package config provides configuration management for the prompt tutor.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/retry"
)

// Config holds the configuration for the tutor
type Config struct {
	// Model provider
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string // Optional initial key; the interactive views also accept one at runtime
	Temperature float64
	MaxTokens   int64
	VerifyKey   bool

	// Session
	MaxHistory int
	Topic      string
	Retry      retry.Policy

	// Views
	ListenAddr    string
	TranscriptDir string

	// Logging and telemetry
	LogLevel         string
	LogFile          string
	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		Provider:    ai.ProviderAnthropic,
		Temperature: 0.7,
		MaxTokens:   1024,
		VerifyKey:   true,
		MaxHistory:  10,
		Topic:       ai.DefaultTopic,
		Retry:       retry.DefaultPolicy(),
		ListenAddr:  "127.0.0.1:8080",
		LogLevel:    "info",
	}
}

// Load loads configuration from environment variables on top of the defaults
func Load() (Config, error) {
	config := Default()

	loaders := []func() error{
		func() error { return loadOptionalFromEnv(&config.Provider, "TUTOR_PROVIDER") },
		func() error { return loadOptionalFromEnv(&config.Model, "TUTOR_MODEL") },
		func() error { return loadOptionalFromEnv(&config.BaseURL, "TUTOR_BASE_URL") },
		func() error { return parseOptionalFromEnv(&config.Temperature, "TUTOR_TEMPERATURE", parseFloat) },
		func() error { return parseOptionalFromEnv(&config.MaxTokens, "TUTOR_MAX_TOKENS", parseInt64) },
		func() error { return parseOptionalFromEnv(&config.VerifyKey, "TUTOR_VERIFY_KEY", strconv.ParseBool) },
		func() error { return parseOptionalFromEnv(&config.MaxHistory, "TUTOR_MAX_HISTORY", strconv.Atoi) },
		func() error { return loadOptionalFromEnv(&config.Topic, "TUTOR_TOPIC") },
		func() error {
			return parseOptionalFromEnv(&config.Retry.InitialDelay, "TUTOR_RETRY_INITIAL_DELAY", time.ParseDuration)
		},
		func() error {
			return parseOptionalFromEnv(&config.Retry.MaxDelay, "TUTOR_RETRY_MAX_DELAY", time.ParseDuration)
		},
		func() error {
			return parseOptionalFromEnv(&config.Retry.Multiplier, "TUTOR_RETRY_MULTIPLIER", parseFloat)
		},
		func() error {
			return parseOptionalFromEnv(&config.Retry.Deadline, "TUTOR_RETRY_DEADLINE", time.ParseDuration)
		},
		func() error { return loadOptionalFromEnv(&config.ListenAddr, "TUTOR_LISTEN_ADDR") },
		func() error { return loadOptionalFromEnv(&config.TranscriptDir, "TUTOR_TRANSCRIPT_DIR") },
		func() error { return loadOptionalFromEnv(&config.LogLevel, "LOG_LEVEL") },
		func() error { return loadOptionalFromEnv(&config.LogFile, "LOG_FILE") },
		func() error {
			return parseOptionalFromEnv(&config.TelemetryEnabled, "TELEMETRY_ENABLED", strconv.ParseBool)
		},
		func() error { return loadOptionalFromEnv(&config.OTLPEndpoint, "OTLP_ENDPOINT") },
	}
	for _, load := range loaders {
		if err := load(); err != nil {
			return Config{}, err
		}
	}

	config.Provider = strings.ToLower(config.Provider)
	config.ResolveAPIKey()

	return config, nil
}

// ResolveAPIKey sets APIKey from TUTOR_API_KEY, falling back to the variable of the configured provider. It must be
// called again whenever Provider changes, so one provider's key is never sent to another
func (c *Config) ResolveAPIKey() {
	c.APIKey = firstNonEmpty(os.Getenv("TUTOR_API_KEY"), os.Getenv(providerKeyVariable(c.Provider)))
}

// Validate checks if the configuration is usable
func (c Config) Validate() error {
	switch c.Provider {
	case ai.ProviderAnthropic, ai.ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider %q, expected %q or %q", c.Provider, ai.ProviderAnthropic, ai.ProviderOpenAI)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("max history must be at least 1, got %d", c.MaxHistory)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry policy: %w", err)
	}
	return nil
}

// ClientConfig returns the model client settings derived from the configuration
func (c Config) ClientConfig() ai.ClientConfig {
	return ai.ClientConfig{
		Provider:    c.Provider,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Retry:       c.Retry,
		VerifyKey:   c.VerifyKey,
	}
}

func providerKeyVariable(provider string) string {
	switch provider {
	case ai.ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}

func loadOptionalFromEnv(dest *string, key string) error {
	return parseOptionalFromEnv(dest, key, func(v string) (string, error) { return v, nil })
}

func parseOptionalFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
