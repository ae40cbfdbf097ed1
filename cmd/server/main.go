package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"chat-relay/internal/config"
	"chat-relay/internal/handlers"
	"chat-relay/internal/metrics"
	"chat-relay/internal/middleware"
	"chat-relay/internal/router"
	"chat-relay/internal/services"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger := newLogger(cfg)
	logger.Info().Msg("🚀 Starting chat relay...")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("✗ Invalid configuration")
	}
	logger.Info().Strs("providers", cfg.ProviderNames()).Msg("✓ Environment variables loaded")

	// ──── Step 2: Metrics Registry ────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	logger.Info().Msg("✓ Metrics registry initialized")

	// ──── Step 3: Initialize Provider Variants ────
	messages := services.MessagesFor(cfg.Language)
	guard := services.DefaultGuardSettings()
	guard.Timeout = cfg.ProviderTimeout
	guard.MaxRetries = cfg.ProviderMaxRetries
	guard.Backoff = cfg.ProviderRetryBackoff

	var clients closers
	chatHandlers := make(map[string]*handlers.ChatHandler)
	for _, name := range cfg.ProviderNames() {
		pc := cfg.Providers[name]

		var provider services.InferenceProvider
		switch name {
		case config.ProviderGemini:
			gemini, err := services.NewGeminiProvider(context.Background(), pc.Name, pc.APIKey, messages)
			if err != nil {
				clients.Close()
				logger.Fatal().Err(err).Str("provider", name).Msg("✗ Gemini client initialization failed")
			}
			clients = append(clients, gemini)
			provider = gemini
		default:
			provider = services.NewChatCompletionProvider(pc.Name, pc.APIKey, pc.BaseURL, pc.Selector)
		}

		if pc.ModelID == "" {
			logger.Warn().Str("provider", name).Msg("MODEL_ID is not set; chat requests on this variant will fail")
		}

		chatService := services.NewChatService(
			services.NewGuardedProvider(provider, guard, logger, m),
			services.ChatSettings{
				ModelID: pc.ModelID,
				Params: services.GenerationParams{
					MaxTokens:   pc.MaxTokens,
					Temperature: pc.Temperature,
					TopP:        pc.TopP,
				},
			},
			messages,
			logger,
			m,
		)
		chatHandlers[name] = handlers.NewChatHandler(chatService, logger)
		logger.Info().
			Str("provider", name).
			Str("base_url", pc.BaseURL).
			Str("model", pc.ModelID).
			Msg("✓ Provider initialized")
	}

	defaultProvider, fellBack := cfg.ResolveDefaultProvider()
	if fellBack {
		logger.Warn().
			Str("requested", cfg.DefaultProvider).
			Str("using", defaultProvider).
			Msg("default provider is not enabled, falling back")
	}

	var jwtAuth *middleware.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuth(cfg.JWTSecret)
		logger.Info().Msg("✓ Bearer auth enabled on chat routes")
	}

	// ──── Step 4: Start HTTP Server ────
	r := router.New(
		logger,
		jwtAuth,
		handlers.NewRootHandler(messages.Welcome, cfg.ProviderNames()),
		chatHandlers,
		defaultProvider,
		metrics.Handler(reg),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(guard),
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	idle := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown did not complete")
		}
		close(idle)
	}()

	logger.Info().
		Str("default_provider", defaultProvider).
		Msgf("✓ Chat relay ready on http://localhost:%s", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		clients.Close()
		logger.Fatal().Err(err).Msg("Server error")
	}
	<-idle

	if err := clients.Close(); err != nil {
		logger.Error().Err(err).Msg("closing provider clients")
	}
}

// closers releases provider clients in reverse order of creation.
type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// writeTimeout leaves room for every guarded attempt and its backoff, so a
// slow upstream surfaces as an error body instead of a dropped connection.
func writeTimeout(g services.GuardSettings) time.Duration {
	attempts := time.Duration(g.MaxRetries + 1)
	var backoff time.Duration
	for n := 1; n <= g.MaxRetries; n++ {
		backoff += g.Backoff * time.Duration(n)
	}
	return attempts*g.Timeout + backoff + 10*time.Second
}
