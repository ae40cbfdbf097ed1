package services

import (
	"context"
	"errors"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"chat-relay/internal/models"
)

var _ InferenceProvider = (*ChatCompletionProvider)(nil)

// ChatCompletionProvider talks to any OpenAI-compatible chat completion
// endpoint, such as the Hugging Face inference router.
type ChatCompletionProvider struct {
	name     string
	client   *openai.Client
	selector string
}

// NewChatCompletionProvider builds a provider for baseURL (no trailing slash,
// e.g. "https://router.huggingface.co/v1"). A selector other than "" or
// "auto" is appended to model ids as a ":selector" routing suffix.
func NewChatCompletionProvider(name, apiKey, baseURL, selector string) *ChatCompletionProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	return &ChatCompletionProvider{
		name:     name,
		client:   openai.NewClientWithConfig(cfg),
		selector: selector,
	}
}

func (p *ChatCompletionProvider) Name() string { return p.name }

func (p *ChatCompletionProvider) Schema() models.TurnSchema { return models.ContentSchema }

func (p *ChatCompletionProvider) Generate(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.routedModel(modelID),
		Messages:    toCompletionMessages(history),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Reply{}, p.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return Reply{}, &ResponseShapeError{
			Provider:   p.name,
			Diagnostic: "the response has no choices; the endpoint may be answering with a generative-content schema instead of chat completions",
		}
	}

	msg := resp.Choices[0].Message
	role := msg.Role
	if role == "" {
		role = models.RoleAssistant
	}
	return Reply{Role: role, Text: msg.Content}, nil
}

func (p *ChatCompletionProvider) routedModel(modelID string) string {
	if p.selector == "" || p.selector == "auto" || strings.Contains(modelID, ":") {
		return modelID
	}
	return modelID + ":" + p.selector
}

func (p *ChatCompletionProvider) wrapError(err error) error {
	retryable := false

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		retryable = retryableStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		retryable = retryableStatus(reqErr.HTTPStatusCode)
	case errors.As(err, &netErr):
		retryable = true
	}

	return &ProviderError{Provider: p.name, Err: err, Retryable: retryable}
}

// toCompletionMessages flattens turns of either shape into chat messages.
func toCompletionMessages(history []models.ChatTurn) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, turn := range history {
		role := turn.Role
		if role == models.RoleModel {
			role = models.RoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Text(),
		})
	}
	return messages
}
