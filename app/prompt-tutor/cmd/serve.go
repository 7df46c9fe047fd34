package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tutor as a single-page web chat",
	Long: `Starts an HTTP server with a single-page chat. All browser tabs share one
conversation; questions sent at the same time are answered one after another.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flags.listenAddr, "addr", "", "Address to listen on (env TUTOR_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupContext()
	defer cancel()

	sess, tp, err := createSession(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(tp)

	if cfg.APIKey != "" {
		// A rejected key is reported and can be replaced from the page
		if err := sess.SetAPIKey(ctx, cfg.APIKey); err != nil {
			log.Warn().Err(err).Msg("API key from the environment was rejected")
		}
	}

	srv, err := web.New(sess, web.Options{
		Title:  ai.TutorTitle(cfg.Topic),
		Topic:  cfg.Topic,
		Logger: log.Logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, cfg.ListenAddr)
}
