// Package telemetry configures tracing for tutoring sessions and generates session and turn identifiers.
package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "prompt-tutor"
	tracerName  = "github.com/cchalm/prompt-tutor"
)

// Span attribute keys
const (
	AttrSessionID     = attribute.Key("tutor.session_id")
	AttrTurnID        = attribute.Key("tutor.turn_id")
	AttrHistoryLength = attribute.Key("tutor.history_length")
	AttrReplyLength   = attribute.Key("tutor.reply_length")
)

// TelemetryConfig holds the configuration for telemetry
type TelemetryConfig struct {
	Enabled        bool
	Endpoint       string // OTLP/HTTP collector URL, e.g. http://localhost:4318
	ServiceVersion string
}

// Provider owns the process tracer provider. When telemetry is disabled the global no-op provider is left in place
type Provider struct {
	enabled bool
	tp      *sdktrace.TracerProvider
}

// NewProvider creates a new telemetry provider and installs it globally when enabled
func NewProvider(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		log.Debug().Msg("Telemetry disabled")
		return &Provider{enabled: false}, nil
	}

	var opts []otlptracehttp.Option
	if config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(config.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", config.ServiceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", config.Endpoint).Msg("Telemetry enabled")

	return &Provider{
		enabled: true,
		tp:      tp,
	}, nil
}

// Tracer returns the tracer sessions record turns with
func (p *Provider) Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Shutdown flushes pending spans and shuts down the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	log.Debug().Msg("Shutting down telemetry provider")
	return p.tp.Shutdown(ctx)
}

// NewSessionID generates a new time-ordered session UUID
func NewSessionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewTurnID generates a new turn UUID
func NewTurnID() string {
	return uuid.New().String()
}
