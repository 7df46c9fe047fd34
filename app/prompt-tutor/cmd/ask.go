package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cchalm/prompt-tutor/internal/ai"
)

var askTranscriptPath string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the tutor a single question",
	Long: `Sends one question to the tutor and prints the reply. The API key is read from
TUTOR_API_KEY, or the provider's own variable (ANTHROPIC_API_KEY or OPENAI_API_KEY).
When none is set and the input is a terminal, the key is prompted for.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTranscriptPath, "transcript", "", "Also save the exchange to this file (.md or .json)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	question := strings.Join(args, " ")

	apiKey := cfg.APIKey
	if apiKey == "" {
		var err error
		apiKey, err = promptForKey()
		if err != nil {
			return err
		}
	}

	sess, tp, err := createSession(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tp)

	if err := sess.SetAPIKey(ctx, apiKey); err != nil {
		return err
	}

	reply, err := sess.Submit(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to get a reply: %w", err)
	}

	fmt.Fprint(cmd.OutOrStdout(), displayReply(reply))

	if askTranscriptPath != "" {
		if err := ai.WriteTranscript(askTranscriptPath, sess.Transcript()); err != nil {
			return err
		}
		log.Info().Str("path", filepath.Clean(askTranscriptPath)).Msg("Transcript saved")
	}
	return nil
}

func promptForKey() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("no API key configured: set TUTOR_API_KEY or the provider's API key variable")
	}
	fmt.Fprint(os.Stderr, "API key: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return string(b), nil
}

// displayReply renders markdown only when stdout is a terminal, so piped output stays plain
func displayReply(reply string) string {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return reply + "\n"
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return reply + "\n"
	}
	rendered, err := renderer.Render(reply)
	if err != nil {
		return reply + "\n"
	}
	return rendered
}
