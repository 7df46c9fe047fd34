package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/cchalm/prompt-tutor/internal/retry"
)

// Supported provider names
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ModelClient generates a reply for an ordered message sequence. Implementations retry transient failures internally
// and fail with *ProviderError
type ModelClient interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
}

// ClientFactory creates a ModelClient bound to an API key. It fails with *CredentialError when the key is malformed or
// rejected
type ClientFactory func(ctx context.Context, apiKey string) (ModelClient, error)

// ClientConfig configures the model clients a factory creates
type ClientConfig struct {
	Provider    string
	Model       string
	BaseURL     string // Optional endpoint override
	Temperature float64
	MaxTokens   int64
	Retry       retry.Policy
	VerifyKey   bool         // Probe the provider with the key before accepting it
	HTTPClient  *http.Client // Optional; nil uses a client with the default transport
	Logger      zerolog.Logger
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "claude-sonnet-4-0"
	}
}

// NewClientFactory returns a factory for the configured provider
func NewClientFactory(cfg ClientConfig) (ClientFactory, error) {
	if err := cfg.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	switch cfg.Provider {
	case ProviderAnthropic, "":
		cfg.Provider = ProviderAnthropic
		return func(ctx context.Context, apiKey string) (ModelClient, error) {
			return newAnthropicClient(ctx, cfg, apiKey)
		}, nil
	case ProviderOpenAI:
		return func(ctx context.Context, apiKey string) (ModelClient, error) {
			return newOpenAIClient(ctx, cfg, apiKey)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// checkKeyFormat rejects keys that can never be valid without contacting the provider
func checkKeyFormat(provider, apiKey string) error {
	if apiKey == "" {
		return &CredentialError{Provider: provider, Err: fmt.Errorf("API key is empty")}
	}
	if strings.IndexFunc(apiKey, unicode.IsSpace) >= 0 {
		return &CredentialError{Provider: provider, Err: fmt.Errorf("API key contains whitespace")}
	}
	return nil
}

// invokeWithRetry runs a single provider call under the retry policy and converts the outcome into a *ProviderError
func invokeWithRetry(
	ctx context.Context,
	cfg ClientConfig,
	call func(ctx context.Context) (string, error),
	retryable func(error) bool,
	statusOf func(error) int,
) (string, error) {
	var text string
	start := time.Now()
	attempts, err := retry.Do(ctx, cfg.Retry,
		func(ctx context.Context) error {
			var err error
			text, err = call(ctx)
			return err
		},
		retryable,
		func(err error, wait time.Duration) {
			cfg.Logger.Warn().
				Err(err).
				Str("provider", cfg.Provider).
				Dur("wait", wait).
				Msg("Model call failed, retrying")
		},
	)
	if err != nil {
		return "", &ProviderError{
			Provider:   cfg.Provider,
			StatusCode: statusOf(err),
			Attempts:   attempts,
			Err:        err,
		}
	}

	cfg.Logger.Debug().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Int("attempts", attempts).
		Dur("elapsed", time.Since(start)).
		Msg("Model call succeeded")

	return text, nil
}
