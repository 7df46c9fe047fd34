//go:build e2e

package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/test/e2e/testutil"
)

// TestTutorAnswersOnTopic checks that an on-topic question gets a substantive answer
func TestTutorAnswersOnTopic(t *testing.T) {
	harness := testutil.NewTestHarness(t)

	harness.RunIterations("answers_on_topic", func(iteration int) error {
		return harness.WithTimeout(func(ctx context.Context) error {
			sess, err := harness.NewSession(ctx, ai.DefaultTopic, 10)
			if err != nil {
				return err
			}

			reply, err := sess.Submit(ctx, "What is few-shot prompting? Answer in two sentences.")
			if err != nil {
				return fmt.Errorf("failed to submit question: %w", err)
			}

			if !strings.Contains(strings.ToLower(reply), "example") {
				return fmt.Errorf("expected the reply to mention examples, got: %s", reply)
			}
			return nil
		})
	})
}

// TestTutorStaysOnTopic checks that the system prompt steers the tutor away from unrelated subjects
func TestTutorStaysOnTopic(t *testing.T) {
	harness := testutil.NewTestHarness(t)

	harness.RunIterations("stays_on_topic", func(iteration int) error {
		return harness.WithTimeout(func(ctx context.Context) error {
			sess, err := harness.NewSession(ctx, ai.DefaultTopic, 10)
			if err != nil {
				return err
			}

			reply, err := sess.Submit(ctx, "Give me a recipe for banana bread.")
			if err != nil {
				return fmt.Errorf("failed to submit question: %w", err)
			}

			lower := strings.ToLower(reply)
			if strings.Contains(lower, "preheat") || strings.Contains(lower, "baking soda") {
				return fmt.Errorf("expected the tutor to decline an off-topic request, got: %s", reply)
			}
			return nil
		})
	})
}

// TestTutorRemembersRecentContext checks that earlier exchanges within the history bound reach the model
func TestTutorRemembersRecentContext(t *testing.T) {
	harness := testutil.NewTestHarness(t)

	harness.RunIterations("remembers_recent_context", func(iteration int) error {
		return harness.WithTimeout(func(ctx context.Context) error {
			sess, err := harness.NewSession(ctx, ai.DefaultTopic, 10)
			if err != nil {
				return err
			}

			_, err = sess.Submit(ctx, "I am writing a prompt for a customer support bot named Quokka. Just acknowledge this.")
			if err != nil {
				return fmt.Errorf("failed to submit first question: %w", err)
			}
			reply, err := sess.Submit(ctx, "What is the name of the bot my prompt is for? Reply with the name only.")
			if err != nil {
				return fmt.Errorf("failed to submit follow-up: %w", err)
			}

			if !strings.Contains(strings.ToLower(reply), "quokka") {
				return fmt.Errorf("expected the reply to recall the bot name, got: %s", reply)
			}
			return nil
		})
	})
}

// TestRejectedKey checks that a key the provider does not accept leaves the session unconfigured
func TestRejectedKey(t *testing.T) {
	harness := testutil.NewTestHarness(t)

	err := harness.WithTimeout(func(ctx context.Context) error {
		sess, err := harness.NewSession(ctx, ai.DefaultTopic, 10)
		require.NoError(t, err)

		err = sess.SetAPIKey(ctx, "sk-definitely-not-a-valid-key")
		var credErr *ai.CredentialError
		assert.True(t, errors.As(err, &credErr), "expected a credential error, got %v", err)
		assert.False(t, sess.Configured())

		_, err = sess.Submit(ctx, "Hello")
		assert.ErrorIs(t, err, ai.ErrNotConfigured)
		return nil
	})
	require.NoError(t, err)
}
