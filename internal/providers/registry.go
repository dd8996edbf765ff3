package providers

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds references to image providers and LLM clients.
// It supports config-driven instantiation and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	images     map[string]ImageProvider
	limiters   map[string]*RateLimiter
	llmClients map[string]LLMClient
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		images:     make(map[string]ImageProvider),
		limiters:   make(map[string]*RateLimiter),
		llmClients: make(map[string]LLMClient),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterImage registers an image provider by name. Each provider gets a
// token-bucket limiter sized to its RequestsPerSecond; re-registering a name
// replaces the limiter along with the provider.
func (r *Registry) RegisterImage(name string, provider ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[name] = provider
	r.limiters[name] = NewRateLimiter(provider.RequestsPerSecond())
	if r.logger != nil {
		r.logger.Info("registered image provider", "name", name, "rate_limit", provider.RequestsPerSecond())
	}
}

// UnregisterImage removes an image provider by name.
func (r *Registry) UnregisterImage(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.images, name)
	delete(r.limiters, name)
	if r.logger != nil {
		r.logger.Info("unregistered image provider", "name", name)
	}
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	if r.logger != nil {
		r.logger.Info("registered LLM client", "name", name)
	}
}

// UnregisterLLM removes an LLM client by name.
func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.llmClients, name)
	if r.logger != nil {
		r.logger.Info("unregistered LLM client", "name", name)
	}
}

// GetImage returns an image provider by name.
func (r *Registry) GetImage(name string) (ImageProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.images[name]
	if !ok {
		return nil, fmt.Errorf("image provider not found: %s", name)
	}
	return provider, nil
}

// ImageLimiter returns the rate limiter paired with a registered image
// provider. Unknown names get a limiter that never blocks, so callers can
// wait unconditionally.
func (r *Registry) ImageLimiter(name string) *RateLimiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limiter, ok := r.limiters[name]; ok {
		return limiter
	}
	return unlimited
}

var unlimited = NewRateLimiter(0)

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// ListImage returns all registered image provider names.
func (r *Registry) ListImage() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.images))
	for name := range r.images {
		names = append(names, name)
	}
	return names
}

// ListLLM returns all registered LLM client names.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	return names
}

// HasImage checks if an image provider is registered.
func (r *Registry) HasImage(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.images[name]
	return ok
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// ImageProviderConfig describes how to construct a single image provider.
type ImageProviderConfig struct {
	Type      string  `yaml:"type" mapstructure:"type"`
	APIKey    string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Model     string  `yaml:"model,omitempty" mapstructure:"model"`
	RateLimit float64 `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// LLMClientConfig describes how to construct a single LLM client.
type LLMClientConfig struct {
	Type    string `yaml:"type" mapstructure:"type"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Model   string `yaml:"model,omitempty" mapstructure:"model"`
}

// LoadFromConfig instantiates providers from config maps and registers them.
// Entries with an unknown type produce an error; entries with an empty API key
// are skipped with a warning so a partial config still yields a usable registry.
func (r *Registry) LoadFromConfig(images map[string]ImageProviderConfig, llms map[string]LLMClientConfig) error {
	for name, cfg := range images {
		if cfg.APIKey == "" {
			r.logger.Warn("skipping image provider with empty api_key", "name", name, "type", cfg.Type)
			continue
		}
		provider, err := buildImageProvider(cfg)
		if err != nil {
			return fmt.Errorf("image provider %q: %w", name, err)
		}
		r.RegisterImage(name, provider)
	}
	for name, cfg := range llms {
		if cfg.APIKey == "" {
			r.logger.Warn("skipping LLM client with empty api_key", "name", name, "type", cfg.Type)
			continue
		}
		client, err := buildLLMClient(cfg)
		if err != nil {
			return fmt.Errorf("llm client %q: %w", name, err)
		}
		r.RegisterLLM(name, client)
	}
	return nil
}

func buildImageProvider(cfg ImageProviderConfig) (ImageProvider, error) {
	switch cfg.Type {
	case GeminiName:
		return NewGeminiClient(GeminiConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		}), nil
	case OpenAIImageName:
		return NewOpenAIImageClient(OpenAIImageConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		}), nil
	case MockImageName:
		return NewMockImageProvider(), nil
	default:
		return nil, fmt.Errorf("unknown image provider type: %s", cfg.Type)
	}
}

func buildLLMClient(cfg LLMClientConfig) (LLMClient, error) {
	switch cfg.Type {
	case OpenAILLMName:
		return NewOpenAILLMClient(OpenAILLMConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case MockLLMName:
		return NewMockLLMClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM client type: %s", cfg.Type)
	}
}
