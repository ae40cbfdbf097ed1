package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/models"
)

type capturedCompletion struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newCompletionServer(t *testing.T, status int, body string, captured *capturedCompletion, auth *string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestChatCompletionProvider_Generate(t *testing.T) {
	var captured capturedCompletion
	var auth string
	server := newCompletionServer(t, http.StatusOK, `{
		"id": "cmpl-1",
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there!"}, "finish_reason": "stop"}]
	}`, &captured, &auth)

	p := NewChatCompletionProvider("huggingface", "hf_test", server.URL+"/", "auto")
	history := []models.ChatTurn{
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleModel, Parts: []models.Part{{Text: "from "}, {Text: "gemini"}}},
		{Role: models.RoleUser, Content: "Hello"},
	}

	reply, err := p.Generate(context.Background(), "meta-llama/Llama-3.1-8B-Instruct", history, GenerationParams{
		MaxTokens: 300, Temperature: 0.5, TopP: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, Reply{Role: "assistant", Text: "Hi there!"}, reply)

	assert.Equal(t, "Bearer hf_test", auth)
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", captured.Model)
	assert.Equal(t, 300, captured.MaxTokens)
	assert.InDelta(t, 0.5, captured.Temperature, 1e-6)
	assert.InDelta(t, 0.7, captured.TopP, 1e-6)
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
	assert.Equal(t, "from gemini", captured.Messages[1].Content)
	assert.Equal(t, "Hello", captured.Messages[2].Content)
}

func TestChatCompletionProvider_SelectorSuffix(t *testing.T) {
	tests := []struct {
		selector string
		model    string
		expected string
	}{
		{"novita", "meta-llama/Llama-3.1-8B-Instruct", "meta-llama/Llama-3.1-8B-Instruct:novita"},
		{"auto", "meta-llama/Llama-3.1-8B-Instruct", "meta-llama/Llama-3.1-8B-Instruct"},
		{"", "meta-llama/Llama-3.1-8B-Instruct", "meta-llama/Llama-3.1-8B-Instruct"},
		{"novita", "meta-llama/Llama-3.1-8B-Instruct:together", "meta-llama/Llama-3.1-8B-Instruct:together"},
	}

	for _, tc := range tests {
		t.Run(tc.selector+"/"+tc.model, func(t *testing.T) {
			p := NewChatCompletionProvider("huggingface", "k", "http://unused", tc.selector)
			assert.Equal(t, tc.expected, p.routedModel(tc.model))
		})
	}
}

func TestChatCompletionProvider_NoChoicesIsShapeError(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [{"text": "hi"}]}}]
	}`, nil, nil)

	p := NewChatCompletionProvider("gateway", "k", server.URL, "")
	_, err := p.Generate(context.Background(), "m", []models.ChatTurn{{Role: "user", Content: "hi"}}, GenerationParams{})

	var shapeErr *ResponseShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "gateway", shapeErr.Provider)
	assert.Contains(t, shapeErr.Error(), "no choices")
	assert.False(t, IsRetryable(err))
}

func TestChatCompletionProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"bad request", http.StatusBadRequest, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := newCompletionServer(t, tc.status, `{"error": {"message": "upstream says no", "type": "error"}}`, nil, nil)

			p := NewChatCompletionProvider("huggingface", "k", server.URL, "")
			_, err := p.Generate(context.Background(), "m", []models.ChatTurn{{Role: "user", Content: "hi"}}, GenerationParams{})

			var providerErr *ProviderError
			require.ErrorAs(t, err, &providerErr)
			assert.Equal(t, "huggingface", providerErr.Provider)
			assert.Equal(t, tc.retryable, IsRetryable(err))
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}
