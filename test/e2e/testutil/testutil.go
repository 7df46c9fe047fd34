//go:build e2e

package testutil

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/retry"
	"github.com/cchalm/prompt-tutor/internal/session"
)

// TestConfig holds configuration for end-to-end tests
type TestConfig struct {
	Provider   string
	Model      string
	Iterations int
	Timeout    time.Duration
	APIKey     string
}

// LoadTestConfig loads test configuration from environment variables
func LoadTestConfig() TestConfig {
	config := TestConfig{
		Provider:   ai.ProviderAnthropic,
		Iterations: 3,
		Timeout:    120 * time.Second,
	}

	if provider := os.Getenv("E2E_PROVIDER"); provider != "" {
		config.Provider = provider
	}

	config.Model = os.Getenv("E2E_MODEL")

	if iterations := os.Getenv("E2E_ITERATIONS"); iterations != "" {
		if val, err := strconv.Atoi(iterations); err == nil {
			config.Iterations = val
		}
	}

	if timeout := os.Getenv("E2E_TIMEOUT"); timeout != "" {
		if val, err := strconv.Atoi(timeout); err == nil {
			config.Timeout = time.Duration(val) * time.Second
		}
	}

	switch config.Provider {
	case ai.ProviderOpenAI:
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	default:
		config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return config
}

// TestHarness provides utilities for end-to-end testing
type TestHarness struct {
	t       *testing.T
	config  TestConfig
	factory ai.ClientFactory
}

// NewTestHarness creates a new test harness
func NewTestHarness(t *testing.T) *TestHarness {
	config := LoadTestConfig()

	require.NotEmpty(t, config.APIKey, "an API key for %s is required for e2e tests", config.Provider)

	policy := retry.DefaultPolicy()
	policy.Deadline = config.Timeout
	factory, err := ai.NewClientFactory(ai.ClientConfig{
		Provider:    config.Provider,
		Model:       config.Model,
		Temperature: 0.7,
		MaxTokens:   1024,
		Retry:       policy,
		VerifyKey:   true,
		Logger:      zerolog.New(zerolog.NewTestWriter(t)),
	})
	require.NoError(t, err)

	return &TestHarness{
		t:       t,
		config:  config,
		factory: factory,
	}
}

// Config returns the test configuration
func (h *TestHarness) Config() TestConfig {
	return h.config
}

// NewSession creates a session configured with the test API key
func (h *TestHarness) NewSession(ctx context.Context, topic string, maxHistory int) (*session.Session, error) {
	sess, err := session.New(session.Options{
		Topic:      topic,
		MaxHistory: maxHistory,
		NewClient:  h.factory,
		Logger:     zerolog.New(zerolog.NewTestWriter(h.t)),
	})
	if err != nil {
		return nil, err
	}
	if err := sess.SetAPIKey(ctx, h.config.APIKey); err != nil {
		return nil, err
	}
	return sess, nil
}

// RunIterations runs a test function multiple times and reports results
func (h *TestHarness) RunIterations(testName string, testFunc func(iteration int) error) {
	h.t.Helper()

	successCount := 0
	var lastError error

	for i := 0; i < h.config.Iterations; i++ {
		h.t.Logf("Running iteration %d/%d of %s", i+1, h.config.Iterations, testName)

		err := testFunc(i)
		if err != nil {
			h.t.Logf("Iteration %d failed: %v", i+1, err)
			lastError = err
		} else {
			successCount++
			h.t.Logf("Iteration %d succeeded", i+1)
		}
	}

	h.t.Logf("Test %s: %d/%d iterations succeeded", testName, successCount, h.config.Iterations)

	// Require at least 2/3 success rate for tests to pass
	minSuccessCount := (h.config.Iterations*2 + 2) / 3
	if successCount < minSuccessCount {
		require.NoErrorf(h.t, lastError, "Test %s failed with %d/%d successes (minimum %d required)",
			testName, successCount, h.config.Iterations, minSuccessCount)
	}
}

// WithTimeout runs a function with the configured timeout
func (h *TestHarness) WithTimeout(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	return fn(ctx)
}
