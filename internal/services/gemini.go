package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"chat-relay/internal/models"
)

var _ InferenceProvider = (*GeminiProvider)(nil)

type GeminiProvider struct {
	name     string
	client   *genai.Client
	messages Messages
}

// NewGeminiProvider dials the Gemini API. Extra options are applied after the
// API key, e.g. option.WithEndpoint for a regional or test endpoint.
func NewGeminiProvider(ctx context.Context, name, apiKey string, messages Messages, opts ...option.ClientOption) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		name:     name,
		client:   client,
		messages: messages,
	}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) Schema() models.TurnSchema { return models.PartsSchema }

func (p *GeminiProvider) Generate(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error) {
	if len(history) == 0 {
		return Reply{}, &ProviderError{Provider: p.name, Err: errors.New("nothing to answer: history is empty")}
	}

	model := p.client.GenerativeModel(modelID)
	model.SetMaxOutputTokens(int32(params.MaxTokens))
	model.SetTemperature(params.Temperature)
	model.SetTopP(params.TopP)

	// The session replays everything before the newest user turn.
	last := history[len(history)-1]
	session := model.StartChat()
	session.History = toGeminiContents(history[:len(history)-1])

	resp, err := session.SendMessage(ctx, genai.Text(last.Text()))
	text, err := replyText(resp, err, p.messages)
	if err != nil {
		return Reply{}, p.wrapError(err)
	}

	return Reply{Role: models.RoleModel, Text: text}, nil
}

func (p *GeminiProvider) wrapError(err error) error {
	retryable := false

	var apiErr *googleapi.Error
	var netErr net.Error
	switch {
	case errors.As(err, &apiErr):
		retryable = retryableStatus(apiErr.Code)
	case errors.As(err, &netErr):
		retryable = true
	}

	return &ProviderError{Provider: p.name, Err: err, Retryable: retryable}
}

// replyText normalizes a generate-content result into reply text. Text parts
// of the first candidate win; withheld content becomes an explanatory reply
// naming the block reason; anything else becomes the no-response placeholder.
func replyText(resp *genai.GenerateContentResponse, err error, m Messages) (string, error) {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return m.FormatBlocked(blockedReason(blocked)), nil
	}
	if err != nil {
		return "", err
	}
	if resp == nil {
		return m.NoResponse, nil
	}

	if text := extractText(resp); text != "" {
		return text, nil
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return m.FormatBlocked(fb.BlockReason.String()), nil
	}
	if len(resp.Candidates) > 0 {
		switch reason := resp.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonRecitation:
			return m.FormatBlocked(reason.String()), nil
		}
	}

	return m.NoResponse, nil
}

func blockedReason(e *genai.BlockedError) string {
	if e.PromptFeedback != nil && e.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return e.PromptFeedback.BlockReason.String()
	}
	if e.Candidate != nil {
		return e.Candidate.FinishReason.String()
	}
	return "unknown"
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

func toGeminiContents(history []models.ChatTurn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		role := models.RoleUser
		if turn.Role == models.RoleModel || turn.Role == models.RoleAssistant {
			role = models.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Text())},
		})
	}
	return contents
}
