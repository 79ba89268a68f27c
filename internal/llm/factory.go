package llm

import (
	"fmt"
	"strings"
	"time"

	"expensechat/internal/domain"
	"expensechat/internal/retry"
)

// defaultCooldownDuration is the time a rate-limited key stays in cooldown.
const defaultCooldownDuration = 60 * time.Second

// Default environment variables holding provider API keys.
const (
	GatewayKeyEnv    = "LOVABLE_API_KEY"
	OpenRouterKeyEnv = "OPENROUTER_API_KEY"
	OpenAIKeyEnv     = "OPENAI_API_KEY"
)

// SecretGetter returns a secret by name (e.g. "OPENAI_API_KEY").
type SecretGetter func(name string) (string, error)

// NewClient returns the CompletionClient described by cfg, wrapped with retry
// logic when retryCfg enables it. Provider may be "gateway" (default),
// "openrouter" or "openai". A secret holding comma-separated keys yields a
// KeyPoolClient rotating between them.
func NewClient(cfg *domain.CompletionConfig, getSecret SecretGetter, retryCfg *domain.RetryConfig) (domain.CompletionClient, error) {
	base, err := newBaseClient(cfg, getSecret)
	if err != nil {
		return nil, err
	}
	return wrapWithRetry(base, retryCfg), nil
}

func newBaseClient(cfg *domain.CompletionConfig, getSecret SecretGetter) (domain.CompletionClient, error) {
	if cfg == nil {
		cfg = &domain.CompletionConfig{}
	}
	if getSecret == nil {
		return nil, fmt.Errorf("completion client: secret getter must not be nil")
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "gateway"
	}
	switch provider {
	case "gateway":
		model := orDefault(cfg.Model, DefaultGatewayModel)
		url := orDefault(cfg.BaseURL, DefaultGatewayURL)
		return resolveKeyedClient("gateway", KeyEnv(cfg), getSecret, func(key string) domain.CompletionClient {
			return NewGatewayClient("gateway", key, model, url)
		})
	case "openrouter":
		url := orDefault(cfg.BaseURL, OpenRouterURL)
		return resolveKeyedClient("openrouter", KeyEnv(cfg), getSecret, func(key string) domain.CompletionClient {
			return NewGatewayClient("openrouter", key, cfg.Model, url)
		})
	case "openai":
		return resolveKeyedClient("openai", KeyEnv(cfg), getSecret, func(key string) domain.CompletionClient {
			return NewOpenAIClient(key, cfg.Model, cfg.BaseURL)
		})
	default:
		return nil, fmt.Errorf("unknown completion provider %q (use: gateway, openrouter, openai)", provider)
	}
}

// KeyEnv returns the secret name NewClient reads the provider API key from:
// cfg.APIKeyEnv when set, otherwise the provider's default variable.
func KeyEnv(cfg *domain.CompletionConfig) string {
	if cfg == nil {
		return GatewayKeyEnv
	}
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	switch cfg.Provider {
	case "openrouter":
		return OpenRouterKeyEnv
	case "openai":
		return OpenAIKeyEnv
	}
	return GatewayKeyEnv
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// splitKeys splits a raw secret value by commas, trims whitespace, and filters empty entries.
func splitKeys(raw string) []string {
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// newKeyPoolFunc is the KeyPool constructor. Package-level var for test injection.
var newKeyPoolFunc = NewKeyPool

// resolveKeyedClient fetches the secret and returns a single client for one
// key or a KeyPoolClient for several.
func resolveKeyedClient(providerName, secretName string, getSecret SecretGetter, makeClient func(key string) domain.CompletionClient) (domain.CompletionClient, error) {
	raw, err := getSecret(secretName)
	if err != nil {
		return nil, err
	}
	keys := splitKeys(raw)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s provider: API key not set (export %s)", providerName, secretName)
	}
	if len(keys) == 1 {
		return makeClient(keys[0]), nil
	}
	pool, err := newKeyPoolFunc(keys, defaultCooldownDuration)
	if err != nil {
		return nil, fmt.Errorf("%s key pool: %w", providerName, err)
	}
	clients := make([]domain.CompletionClient, len(keys))
	for i, k := range keys {
		clients[i] = makeClient(k)
	}
	return NewKeyPoolClient(pool, clients)
}

// wrapWithRetry decorates a client with retry logic when enabled.
func wrapWithRetry(client domain.CompletionClient, retryCfg *domain.RetryConfig) domain.CompletionClient {
	if retryCfg == nil || retryCfg.MaxRetries <= 0 {
		return client
	}
	return retry.NewRetryableClient(client, retry.FromDomain(retryCfg))
}
