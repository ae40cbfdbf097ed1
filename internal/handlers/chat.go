package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"chat-relay/internal/middleware"
	"chat-relay/internal/models"
	"chat-relay/internal/services"
)

type chatService interface {
	Respond(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	Provider() string
	Messages() services.Messages
}

type ChatHandler struct {
	chatService chatService
	logger      zerolog.Logger
}

func NewChatHandler(chatService chatService, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger.With().Str("provider", chatService.Provider()).Logger(),
	}
}

func (h *ChatHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{Detail: "Invalid request body: " + err.Error()})
		return
	}

	resp, err := h.chatService.Respond(r.Context(), req)
	if err != nil {
		detail := h.chatService.Messages().FormatError(err)
		h.logger.Error().
			Str("request_id", r.Header.Get(middleware.RequestIDHeader)).
			Str("subject", middleware.GetSubject(r.Context())).
			Str("detail", detail).
			Msg("chat respond failed")
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Detail: detail})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
