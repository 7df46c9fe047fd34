package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the tutor in the terminal",
	Long: `Opens an interactive chat in the terminal. Press ctrl+k to enter an API key,
ctrl+l to clear the conversation, ctrl+s to save a transcript and ctrl+c to quit.`,
	RunE: runChat,
}

var chatMarkdownStyle string

func init() {
	chatCmd.Flags().StringVar(&flags.transcriptDir, "transcript-dir", "", "Directory transcripts are saved to (env TUTOR_TRANSCRIPT_DIR)")
	chatCmd.Flags().StringVar(&chatMarkdownStyle, "style", "", "Markdown style for replies, e.g. 'dark', 'light' or 'notty'; detected when empty")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	sess, tp, err := createSession(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tp)

	return tui.Run(ctx, sess, tui.Options{
		Title:         ai.TutorTitle(cfg.Topic),
		Topic:         cfg.Topic,
		InitialAPIKey: cfg.APIKey,
		TranscriptDir: cfg.TranscriptDir,
		MarkdownStyle: chatMarkdownStyle,
	})
}
