package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
)

var _ InferenceProvider = (*GuardedProvider)(nil)

type GuardSettings struct {
	// Timeout bounds each attempt, not the whole call.
	Timeout    time.Duration
	MaxRetries int
	// Backoff before retry n is Backoff*n.
	Backoff time.Duration

	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func DefaultGuardSettings() GuardSettings {
	return GuardSettings{
		Timeout:         30 * time.Second,
		MaxRetries:      1,
		Backoff:         500 * time.Millisecond,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// GuardedProvider bounds the wait on an upstream provider: a per-attempt
// timeout, a bounded retry for transient failures and a circuit breaker.
type GuardedProvider struct {
	inner    InferenceProvider
	settings GuardSettings
	breaker  *gobreaker.CircuitBreaker
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

func NewGuardedProvider(inner InferenceProvider, settings GuardSettings, logger zerolog.Logger, m *metrics.Metrics) *GuardedProvider {
	logger = logger.With().Str("provider", inner.Name()).Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: settings.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.BreakerFailures
		},
		// A caller hanging up says nothing about the upstream.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &GuardedProvider{
		inner:    inner,
		settings: settings,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

func (g *GuardedProvider) Name() string { return g.inner.Name() }

func (g *GuardedProvider) Schema() models.TurnSchema { return g.inner.Schema() }

func (g *GuardedProvider) Generate(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error) {
	var lastErr error
	for attempt := 0; attempt <= g.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			g.metrics.IncRetry(g.Name())
			g.logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying provider call")

			if err := sleepCtx(ctx, g.settings.Backoff*time.Duration(attempt)); err != nil {
				return Reply{}, &ProviderError{Provider: g.Name(), Err: err}
			}
		}

		reply, err := g.attempt(ctx, modelID, history, params)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
	}
	return Reply{}, lastErr
}

func (g *GuardedProvider) attempt(ctx context.Context, modelID string, history []models.ChatTurn, params GenerationParams) (Reply, error) {
	start := time.Now()
	defer func() { g.metrics.ObserveLatency(g.Name(), time.Since(start)) }()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, g.settings.Timeout)
		defer cancel()

		reply, err := g.inner.Generate(attemptCtx, modelID, history, params)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, &ProviderTimeoutError{Provider: g.Name(), Timeout: g.settings.Timeout}
		}
		if err != nil {
			return nil, err
		}
		return reply, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Reply{}, &ProviderError{Provider: g.Name(), Err: err}
	}
	if err != nil {
		return Reply{}, err
	}
	return result.(Reply), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
