package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cchalm/prompt-tutor/internal/ai"
	"github.com/cchalm/prompt-tutor/internal/session"
	"github.com/cchalm/prompt-tutor/internal/telemetry"
	"github.com/cchalm/prompt-tutor/internal/transport"
)

const telemetryShutdownTimeout = 5 * time.Second

func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		select {
		case <-interrupt:
		case <-ctx.Done():
			return
		}
		log.Info().Msg("Interrupt signal detected, shutting down gracefully...")
		cancel()
		<-interrupt
		log.Fatal().Msg("Forcing shutdown")
	}()

	return ctx, cancel
}

func createTelemetryProvider(ctx context.Context) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.TelemetryConfig{
		Enabled:        cfg.TelemetryEnabled,
		Endpoint:       cfg.OTLPEndpoint,
		ServiceVersion: version,
	}
	return telemetry.NewProvider(ctx, telemetryConfig)
}

func shutdownTelemetry(tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to shut down telemetry")
	}
}

func createClientFactory() (ai.ClientFactory, error) {
	clientConfig := cfg.ClientConfig()
	// Provider-requested waits longer than the retry policy allows are left to the retry policy
	clientConfig.HTTPClient = transport.NewHTTPClient(cfg.Retry.MaxDelay, log.Logger)
	clientConfig.Logger = log.Logger
	return ai.NewClientFactory(clientConfig)
}

// createSession builds a session for the configured provider. The caller shuts down the returned telemetry provider
func createSession(ctx context.Context) (*session.Session, *telemetry.Provider, error) {
	tp, err := createTelemetryProvider(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	factory, err := createClientFactory()
	if err != nil {
		shutdownTelemetry(tp)
		return nil, nil, fmt.Errorf("failed to create model client factory: %w", err)
	}

	sess, err := session.New(session.Options{
		Topic:      cfg.Topic,
		MaxHistory: cfg.MaxHistory,
		NewClient:  factory,
		Tracer:     tp.Tracer(),
		Logger:     log.Logger,
	})
	if err != nil {
		shutdownTelemetry(tp)
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", sess.ID()).
		Str("provider", cfg.Provider).
		Str("topic", cfg.Topic).
		Int("max_history", cfg.MaxHistory).
		Msg("Session started")
	return sess, tp, nil
}
