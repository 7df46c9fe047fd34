package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cchalm/prompt-tutor/internal/config"
)

var cfg config.Config

// Flag values; applied over the environment only when set
var flags struct {
	provider   string
	model      string
	topic      string
	maxHistory int
	logLevel   string
	logFile    string

	// Subcommand flags
	transcriptDir string
	listenAddr    string
}

var rootCmd = &cobra.Command{
	Use:   "prompt-tutor",
	Short: "Chat with an AI tutor about prompt engineering",
	Long: `Prompt Tutor forwards your questions to a hosted language model and keeps a short,
bounded conversation history. The tutor answers questions about one topic, prompt
engineering by default, and can be used from the terminal, a browser, or a single
command.`,
	PersistentPreRunE: loadRootConfig,
	SilenceUsage:      true,
}

// logFile is the open LOG_FILE, if any; closed when the command finishes
var logFile *os.File

func Execute() error {
	defer closeLogFile()
	return rootCmd.Execute()
}

func loadRootConfig(cmd *cobra.Command, _ []string) error {
	// Load .env file
	envErr := godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	applyFlags(cmd)
	// The provider may have changed, and with it the variable the key comes from
	cfg.ResolveAPIKey()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The chat view owns the terminal, so its logs go to a file or nowhere
	var out io.Writer = os.Stderr
	if cmd.Name() == "chat" {
		out = io.Discard
	}
	if err := setupLogging(out, cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}

	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}
	return nil
}

func applyFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	if fs.Changed("provider") {
		cfg.Provider = strings.ToLower(flags.provider)
	}
	if fs.Changed("model") {
		cfg.Model = flags.model
	}
	if fs.Changed("topic") {
		cfg.Topic = flags.topic
	}
	if fs.Changed("max-history") {
		cfg.MaxHistory = flags.maxHistory
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if fs.Changed("log-file") {
		cfg.LogFile = flags.logFile
	}
	if fs.Changed("transcript-dir") {
		cfg.TranscriptDir = flags.transcriptDir
	}
	if fs.Changed("addr") {
		cfg.ListenAddr = flags.listenAddr
	}
}

// setupLogging configures the global logger. Logs go to file when one is given, otherwise to out
func setupLogging(out io.Writer, level, file string) error {
	closeLogFile()
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    file != "",
	})

	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	return nil
}

func closeLogFile() {
	if logFile == nil {
		return
	}
	// Later log calls must not write to the closed file
	log.Logger = zerolog.Nop()
	_ = logFile.Sync()
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	logFile = nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.provider, "provider", "", "Model provider, 'anthropic' or 'openai' (env TUTOR_PROVIDER)")
	pf.StringVar(&flags.model, "model", "", "Model name; defaults depend on the provider (env TUTOR_MODEL)")
	pf.StringVar(&flags.topic, "topic", "", "Subject the tutor specializes in (env TUTOR_TOPIC)")
	pf.IntVar(&flags.maxHistory, "max-history", 0, "Number of question/answer exchanges kept as context (env TUTOR_MAX_HISTORY)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: trace, debug, info, warn or error (env LOG_LEVEL)")
	pf.StringVar(&flags.logFile, "log-file", "", "Write logs to this file (env LOG_FILE)")
}
