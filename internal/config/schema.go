package config

// Config holds easel configuration.
// Stored at: {home}/config.yaml
type Config struct {
	ImageProviders map[string]ImageProviderCfg `mapstructure:"image_providers" yaml:"image_providers"`
	LLMProviders   map[string]LLMProviderCfg   `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults       DefaultsCfg                 `mapstructure:"defaults" yaml:"defaults"`
	Storage        StorageCfg                  `mapstructure:"storage" yaml:"storage"`
	Server         ServerCfg                   `mapstructure:"server" yaml:"server"`
}

// ImageProviderCfg configures a generative image provider.
type ImageProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "gemini", "openai"
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name override
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// LLMProviderCfg configures an LLM client used for outline synthesis.
type LLMProviderCfg struct {
	Type    string `mapstructure:"type" yaml:"type"` // "openai"
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and generation knobs.
type DefaultsCfg struct {
	ImageProvider string `mapstructure:"image_provider" yaml:"image_provider"` // Default image provider
	LLMProvider   string `mapstructure:"llm_provider" yaml:"llm_provider"`     // Default LLM client
	// MaxConcurrent bounds parallel generation calls per deck; 0 = unbounded.
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	PreviewWidth  int `mapstructure:"preview_width" yaml:"preview_width"`
}

// StorageCfg selects and configures the asset storage backend.
type StorageCfg struct {
	// Backend is "local" or "minio".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir is the local backend's root directory. Empty uses {home}/assets.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
	// Database is the deck store path. Empty uses {home}/easel.db; the
	// literal value "memory" keeps decks in memory only.
	Database string   `mapstructure:"database" yaml:"database,omitempty"`
	Minio    MinioCfg `mapstructure:"minio" yaml:"minio"`
}

// MinioCfg configures the S3-compatible asset backend.
type MinioCfg struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"` // supports ${ENV_VAR}
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"` // supports ${ENV_VAR}
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// ServerCfg holds the HTTP server settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ImageProviders: map[string]ImageProviderCfg{
			"gemini": {
				Type:      "gemini",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 1.0,
				Enabled:   true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-image-1",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: false,
			},
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: true,
			},
		},
		Defaults: DefaultsCfg{
			ImageProvider: "gemini",
			LLMProvider:   "openai",
			MaxConcurrent: 0,
			PreviewWidth:  480,
		},
		Storage: StorageCfg{
			Backend: "local",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8799,
		},
	}
}

// GetImageProvider returns an image provider config by name.
func (c *Config) GetImageProvider(name string) (ImageProviderCfg, bool) {
	cfg, ok := c.ImageProviders[name]
	return cfg, ok
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledImageProviders returns all enabled image providers.
func (c *Config) EnabledImageProviders() map[string]ImageProviderCfg {
	result := make(map[string]ImageProviderCfg)
	for name, cfg := range c.ImageProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
