package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearTutorEnv(t *testing.T) {
	for _, key := range []string{
		"TUTOR_PROVIDER", "TUTOR_MODEL", "TUTOR_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"TUTOR_MAX_HISTORY", "TUTOR_TOPIC", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func runRoot(t *testing.T, args ...string) string {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		flags.provider = ""
		flags.logFile = ""
		flags.logLevel = ""
		// Flag values persist on the shared command tree between runs
		for _, name := range []string{"provider", "log-file", "log-level"} {
			if f := rootCmd.PersistentFlags().Lookup(name); f != nil {
				f.Changed = false
			}
		}
	})
	require.NoError(t, Execute())
	return out.String()
}

func TestProviderFlagSelectsProviderKey(t *testing.T) {
	clearTutorEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")

	runRoot(t, "--provider", "openai", "version")

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "openai-key", cfg.APIKey)
}

func TestProviderFlagWithoutProviderKey(t *testing.T) {
	clearTutorEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")

	runRoot(t, "--provider", "openai", "version")

	assert.Empty(t, cfg.APIKey)
}

func TestVersion(t *testing.T) {
	clearTutorEnv(t)
	SetVersionInfo("1.2.3", "abc123", "today")
	t.Cleanup(func() { SetVersionInfo("dev", "unknown", "unknown") })

	out := runRoot(t, "version")

	assert.Equal(t, "prompt-tutor 1.2.3 (commit abc123, built today)\n", out)
}

func TestLogFileIsClosedAfterCommand(t *testing.T) {
	clearTutorEnv(t)
	path := filepath.Join(t.TempDir(), "tutor.log")

	runRoot(t, "--log-file", path, "--log-level", "debug", "version")

	assert.Nil(t, logFile)
	_, err := os.Stat(path)
	require.NoError(t, err)

	// Logging after the command ends must not reach the closed file
	log.Info().Msg("after close")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "after close")
}
