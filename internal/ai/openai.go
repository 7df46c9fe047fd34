package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type openAIClient struct {
	cfg    ClientConfig
	client *openai.Client
}

func newOpenAIClient(ctx context.Context, cfg ClientConfig, apiKey string) (ModelClient, error) {
	if err := checkKeyFormat(cfg.Provider, apiKey); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = cfg.HTTPClient
	client := openai.NewClientWithConfig(clientConfig)

	if cfg.VerifyKey {
		if _, err := client.ListModels(ctx); err != nil {
			return nil, &CredentialError{Provider: cfg.Provider, Err: err}
		}
	}

	return &openAIClient{
		cfg:    cfg,
		client: client,
	}, nil
}

func (oc *openAIClient) Invoke(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       oc.cfg.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: float32(oc.cfg.Temperature),
		MaxTokens:   int(oc.cfg.MaxTokens),
	}
	for _, msg := range messages {
		role, err := openAIRole(msg.Role)
		if err != nil {
			return "", &ProviderError{Provider: oc.cfg.Provider, Err: err}
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	return invokeWithRetry(ctx, oc.cfg,
		func(ctx context.Context) (string, error) {
			resp, err := oc.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return "", ErrEmptyResponse
			}
			return resp.Choices[0].Message.Content, nil
		},
		openAIRetryable,
		openAIStatus,
	)
}

func openAIRole(role Role) (string, error) {
	switch role {
	case RoleSystem:
		return openai.ChatMessageRoleSystem, nil
	case RoleUser:
		return openai.ChatMessageRoleUser, nil
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant, nil
	default:
		return "", fmt.Errorf("unsupported message role %q", role)
	}
}

func openAIRetryable(err error) bool {
	if status := openAIStatus(err); status != 0 {
		return retryableStatus(status)
	}
	return retryableTransportError(err)
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
