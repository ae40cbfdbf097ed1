package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
)

// scriptedProvider returns its errors in order, then succeeds.
type scriptedProvider struct {
	errs  []error
	delay time.Duration
	calls int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Schema() models.TurnSchema { return models.ContentSchema }

func (s *scriptedProvider) Generate(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Reply{}, &ProviderError{Provider: "scripted", Err: ctx.Err()}
		}
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return Reply{}, err
		}
	}
	return Reply{Role: models.RoleAssistant, Text: "ok"}, nil
}

func testGuardSettings() GuardSettings {
	return GuardSettings{
		Timeout:         time.Second,
		MaxRetries:      1,
		Backoff:         time.Millisecond,
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
	}
}

func TestGuard_RetriesTransientErrorOnce(t *testing.T) {
	inner := &scriptedProvider{errs: []error{&ProviderError{Provider: "scripted", Err: errors.New("503"), Retryable: true}}}
	reg := prometheus.NewRegistry()
	g := NewGuardedProvider(inner, testGuardSettings(), zerolog.Nop(), metrics.New(reg))

	reply, err := g.Generate(context.Background(), "m", nil, GenerationParams{})

	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, 2, inner.calls)
}

func TestGuard_RetryIsBounded(t *testing.T) {
	transient := &ProviderError{Provider: "scripted", Err: errors.New("503"), Retryable: true}
	inner := &scriptedProvider{errs: []error{transient, transient, transient}}
	g := NewGuardedProvider(inner, testGuardSettings(), zerolog.Nop(), nil)

	_, err := g.Generate(context.Background(), "m", nil, GenerationParams{})

	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 2, inner.calls)
}

func TestGuard_DoesNotRetryPermanentError(t *testing.T) {
	permanent := &ProviderError{Provider: "scripted", Err: errors.New("401 unauthorized")}
	inner := &scriptedProvider{errs: []error{permanent}}
	g := NewGuardedProvider(inner, testGuardSettings(), zerolog.Nop(), nil)

	_, err := g.Generate(context.Background(), "m", nil, GenerationParams{})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, inner.calls)
}

func TestGuard_TimeoutBecomesProviderTimeout(t *testing.T) {
	settings := testGuardSettings()
	settings.Timeout = 20 * time.Millisecond
	settings.MaxRetries = 0
	inner := &scriptedProvider{delay: time.Second}
	g := NewGuardedProvider(inner, settings, zerolog.Nop(), nil)

	start := time.Now()
	_, err := g.Generate(context.Background(), "m", nil, GenerationParams{})

	var timeoutErr *ProviderTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, settings.Timeout, timeoutErr.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuard_CallerCancellationIsNotRetried(t *testing.T) {
	inner := &scriptedProvider{delay: time.Second}
	g := NewGuardedProvider(inner, testGuardSettings(), zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Generate(ctx, "m", nil, GenerationParams{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	settings := testGuardSettings()
	settings.MaxRetries = 0
	permanent := &ProviderError{Provider: "scripted", Err: errors.New("boom")}
	inner := &scriptedProvider{errs: []error{permanent, permanent, permanent}}
	g := NewGuardedProvider(inner, settings, zerolog.Nop(), nil)

	for i := 0; i < 3; i++ {
		_, err := g.Generate(context.Background(), "m", nil, GenerationParams{})
		require.Error(t, err)
	}

	_, err := g.Generate(context.Background(), "m", nil, GenerationParams{})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the provider")
}
