package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// errIncompleteStream is returned when a response stream ends before the message is complete
var errIncompleteStream = errors.New("response stream ended before the message was complete")

// StreamingMessageSender sends a message request over the streaming endpoint and accumulates the events into a
// complete message, so long generations are not cut off by HTTP timeouts
type StreamingMessageSender struct {
	client anthropic.Client
	logger zerolog.Logger
}

func NewStreamingMessageSender(client anthropic.Client, logger zerolog.Logger) StreamingMessageSender {
	return StreamingMessageSender{
		client: client,
		logger: logger,
	}
}

func (sms StreamingMessageSender) SendMessage(
	ctx context.Context,
	params anthropic.MessageNewParams,
	opts ...anthropt.RequestOption,
) (anthropic.Message, error) {
	stream := sms.client.Messages.NewStreaming(ctx, params, opts...)
	defer stream.Close()

	response := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		err := response.Accumulate(event)
		if err != nil {
			return anthropic.Message{}, fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
	}
	if stream.Err() != nil {
		return anthropic.Message{}, fmt.Errorf("failed to stream response: %w", stream.Err())
	}
	if response.StopReason == "" {
		b, err := json.Marshal(response)
		if err != nil {
			sms.logger.Error().Err(err).Msg("Failed to marshal incomplete message for inspection")
		}
		return anthropic.Message{}, fmt.Errorf("%w: %s", errIncompleteStream, string(b))
	}

	sms.logger.Debug().
		Int64("input_tokens", response.Usage.InputTokens).
		Int64("output_tokens", response.Usage.OutputTokens).
		Str("stop_reason", string(response.StopReason)).
		Msg("Token usage")

	return response, nil
}
