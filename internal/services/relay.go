package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
)

// InferenceProvider is the boundary to one upstream inference service.
// Implementations own their request shaping and reply normalization.
type InferenceProvider interface {
	Name() string
	// Schema is the turn shape this provider's clients send and receive.
	Schema() models.TurnSchema
	// Generate answers the last turn of history, which is always the user's.
	Generate(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error)
}

type GenerationParams struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// Reply is the normalized provider answer.
type Reply struct {
	Role string
	Text string
}

// ChatSettings is fixed per provider variant at startup.
type ChatSettings struct {
	ModelID string
	Params  GenerationParams
}

// Request outcomes recorded in metrics.
const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

// ChatService relays one chat turn to its provider. It keeps no state
// between calls; the caller resends the full history every time.
type ChatService struct {
	provider InferenceProvider
	settings ChatSettings
	messages Messages
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewChatService(
	provider InferenceProvider,
	settings ChatSettings,
	messages Messages,
	logger zerolog.Logger,
	m *metrics.Metrics,
) *ChatService {
	return &ChatService{
		provider: provider,
		settings: settings,
		messages: messages,
		logger:   logger.With().Str("provider", provider.Name()).Logger(),
		metrics:  m,
	}
}

func (s *ChatService) Provider() string { return s.provider.Name() }

func (s *ChatService) Messages() Messages { return s.messages }

// Respond appends the user's message and the provider's reply to a copy of
// the request history. An empty message is answered with a notice and the
// unmodified history, without contacting the provider.
func (s *ChatService) Respond(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)

	if err := validateMessage(message); err != nil {
		s.metrics.ObserveRequest(s.provider.Name(), outcomeEmpty)
		s.logger.Debug().Err(err).Msg("answered with empty-message notice")
		return &models.ChatResponse{
			Response: s.messages.EmptyMessage,
			History:  cloneHistory(req.History, 0),
		}, nil
	}

	reply, history, err := s.generate(ctx, message, req.History)
	if err != nil {
		s.metrics.ObserveRequest(s.provider.Name(), outcomeError)
		s.logger.Error().
			Err(err).
			Str("error_type", fmt.Sprintf("%T", err)).
			Int("history_len", len(req.History)).
			Msg("chat relay failed")
		return nil, err
	}

	s.metrics.ObserveRequest(s.provider.Name(), outcomeOK)
	s.logger.Debug().
		Int("history_len", len(history)).
		Int("reply_chars", len(reply.Text)).
		Msg("chat relay completed")

	return &models.ChatResponse{Response: reply.Text, History: history}, nil
}

func (s *ChatService) generate(ctx context.Context, message string, prior []models.ChatTurn) (Reply, []models.ChatTurn, error) {
	if s.settings.ModelID == "" {
		return Reply{}, nil, &ConfigurationError{Key: "MODEL_ID"}
	}

	schema := s.provider.Schema()
	history := cloneHistory(prior, 2)
	history = append(history, models.NewTurn(schema, models.RoleUser, message))

	reply, err := s.provider.Generate(ctx, s.settings.ModelID, history, s.settings.Params)
	if err != nil {
		return Reply{}, nil, err
	}

	history = append(history, models.NewTurn(schema, reply.Role, reply.Text))
	return reply, history, nil
}

func validateMessage(message string) error {
	if message == "" {
		return &ValidationError{Message: "message is empty"}
	}
	return nil
}

// cloneHistory copies prior so appends never reach the caller's slice.
// The result is never nil, so it always encodes as a JSON array.
func cloneHistory(prior []models.ChatTurn, extra int) []models.ChatTurn {
	history := make([]models.ChatTurn, len(prior), len(prior)+extra)
	copy(history, prior)
	return history
}
