package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	cfg    ClientConfig
	sender StreamingMessageSender
}

func newAnthropicClient(ctx context.Context, cfg ClientConfig, apiKey string) (ModelClient, error) {
	if err := checkKeyFormat(cfg.Provider, apiKey); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithAPIKey(apiKey),
		// The retry policy is applied around the whole call instead
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	if cfg.VerifyKey {
		_, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
		if err != nil {
			return nil, &CredentialError{Provider: cfg.Provider, Err: err}
		}
	}

	return &anthropicClient{
		cfg:    cfg,
		sender: NewStreamingMessageSender(client, cfg.Logger),
	}, nil
}

func (ac *anthropicClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	params, err := ac.buildParams(messages)
	if err != nil {
		return "", &ProviderError{Provider: ac.cfg.Provider, Err: err}
	}

	return invokeWithRetry(ctx, ac.cfg,
		func(ctx context.Context) (string, error) {
			response, err := ac.sender.SendMessage(ctx, params)
			if err != nil {
				return "", err
			}
			return responseText(response)
		},
		anthropicRetryable,
		anthropicStatus,
	)
}

// buildParams splits the leading system message into the system field and converts the rest of the history
func (ac *anthropicClient) buildParams(messages []Message) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var history []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case RoleUser:
			history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			history = append(history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	if len(history) == 0 {
		return anthropic.MessageNewParams{}, fmt.Errorf("request has no user message")
	}

	return anthropic.MessageNewParams{
		Model:       anthropic.Model(ac.cfg.Model),
		MaxTokens:   ac.cfg.MaxTokens,
		System:      system,
		Messages:    history,
		Temperature: anthropic.Float(ac.cfg.Temperature),
	}, nil
}

func responseText(response anthropic.Message) (string, error) {
	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

func anthropicRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	if errors.Is(err, errIncompleteStream) {
		return true
	}
	return retryableTransportError(err)
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
