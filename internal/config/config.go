package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider variant names. Each enabled variant is mounted at /{name}/chat.
const (
	ProviderHuggingFace = "huggingface"
	ProviderGateway     = "gateway"
	ProviderGemini      = "gemini"
)

const (
	defaultHFBaseURL      = "https://router.huggingface.co/v1"
	defaultGatewayBaseURL = "https://api.together.xyz/v1"
	defaultGatewayModel   = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
	defaultGeminiModel    = "gemini-1.5-flash"
	defaultMaxTokens      = 300
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string
	Language string

	// Variant mounted at /chat
	DefaultProvider string

	// Provider variants, keyed by name. Only variants with an API key are present.
	Providers map[string]ProviderConfig

	// Outbound call guard
	ProviderTimeout      time.Duration
	ProviderMaxRetries   int
	ProviderRetryBackoff time.Duration

	// Optional bearer auth on chat routes
	JWTSecret string
}

type ProviderConfig struct {
	Name     string
	APIKey   string
	BaseURL  string
	ModelID  string
	Selector string // inference provider routing hint, huggingface only

	MaxTokens   int
	Temperature float32
	TopP        float32
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8000"),
		Env:                  getEnvOrDefault("ENV", "development"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		Language:             getEnvOrDefault("RELAY_LANGUAGE", "en"),
		DefaultProvider:      getEnvOrDefault("RELAY_DEFAULT_PROVIDER", ProviderHuggingFace),
		Providers:            make(map[string]ProviderConfig),
		ProviderTimeout:      getEnvAsDurationOrDefault("PROVIDER_TIMEOUT", 30*time.Second),
		ProviderMaxRetries:   getEnvAsIntOrDefault("PROVIDER_MAX_RETRIES", 1),
		ProviderRetryBackoff: getEnvAsDurationOrDefault("PROVIDER_RETRY_BACKOFF", 500*time.Millisecond),
		JWTSecret:            getEnvOrDefault("RELAY_JWT_SECRET", ""),
	}

	// MODEL_ID may be empty; chat requests fail with a configuration
	// error until it is set.
	if key := getEnvOrDefault("API_KEY", ""); key != "" {
		cfg.Providers[ProviderHuggingFace] = ProviderConfig{
			Name:        ProviderHuggingFace,
			APIKey:      key,
			BaseURL:     getEnvOrDefault("HF_BASE_URL", defaultHFBaseURL),
			ModelID:     getEnvOrDefault("MODEL_ID", ""),
			Selector:    getEnvOrDefault("API_PROVIDER", "auto"),
			MaxTokens:   defaultMaxTokens,
			Temperature: 0.5,
			TopP:        0.7,
		}
	}

	if key := getEnvOrDefault("GATEWAY_API_KEY", ""); key != "" {
		cfg.Providers[ProviderGateway] = ProviderConfig{
			Name:        ProviderGateway,
			APIKey:      key,
			BaseURL:     getEnvOrDefault("GATEWAY_BASE_URL", defaultGatewayBaseURL),
			ModelID:     getEnvOrDefault("GATEWAY_MODEL_ID", defaultGatewayModel),
			MaxTokens:   defaultMaxTokens,
			Temperature: 0.7,
			TopP:        0.9,
		}
	}

	if key := getEnvOrDefault("GEMINI_API_KEY", ""); key != "" {
		cfg.Providers[ProviderGemini] = ProviderConfig{
			Name:        ProviderGemini,
			APIKey:      key,
			ModelID:     getEnvOrDefault("GEMINI_MODEL_ID", defaultGeminiModel),
			MaxTokens:   defaultMaxTokens,
			Temperature: 0.7,
			TopP:        0.9,
		}
	}

	return cfg
}

// Validate reports configuration that makes the relay unusable.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no provider configured: set at least one of API_KEY, GATEWAY_API_KEY, GEMINI_API_KEY")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", c.ProviderTimeout)
	}
	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative, got %d", c.ProviderMaxRetries)
	}
	return nil
}

// ResolveDefaultProvider returns the variant served at /chat. When the
// requested default is not enabled it falls back to the first enabled
// variant in a fixed order and reports fellBack.
func (c *Config) ResolveDefaultProvider() (name string, fellBack bool) {
	if _, ok := c.Providers[c.DefaultProvider]; ok {
		return c.DefaultProvider, false
	}
	names := c.ProviderNames()
	if len(names) == 0 {
		return "", true
	}
	return names[0], true
}

// ProviderNames lists enabled variants in a stable order.
func (c *Config) ProviderNames() []string {
	var names []string
	for _, n := range []string{ProviderHuggingFace, ProviderGateway, ProviderGemini} {
		if _, ok := c.Providers[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
