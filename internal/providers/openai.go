package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIImageName         = "openai"
	openAIImageDefaultModel = "gpt-image-1"
)

// OpenAIImageConfig holds configuration for the OpenAI image client.
type OpenAIImageConfig struct {
	APIKey     string
	Model      string
	Size       string // e.g. "1536x1024"
	RateLimit  float64
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
}

// OpenAIImageClient implements ImageProvider using the official OpenAI SDK
// Images API. The Images endpoint takes no reference images; deck style is
// carried entirely by the instruction text.
type OpenAIImageClient struct {
	model     string
	size      string
	rateLimit float64
	client    openai.Client
}

// NewOpenAIImageClient creates a new OpenAI image client.
func NewOpenAIImageClient(cfg OpenAIImageConfig) *OpenAIImageClient {
	if cfg.Model == "" {
		cfg.Model = openAIImageDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 600 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIImageClient{
		model:     cfg.Model,
		size:      cfg.Size,
		rateLimit: cfg.RateLimit,
		client:    openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIImageClient) Name() string {
	return OpenAIImageName
}

// SupportsReferenceImages reports that reference images are dropped.
func (c *OpenAIImageClient) SupportsReferenceImages() bool {
	return false
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAIImageClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// GenerateImage renders one image via the Images API.
func (c *OpenAIImageClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}
	size := req.ImageSize
	if size == "" {
		size = c.size
	}

	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(model),
		N:      openai.Int(1),
	}
	if size != "" {
		params.Size = openai.ImageGenerateParamsSize(size)
	}

	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return c.failure(start, model, fmt.Errorf("openai image generation failed: %w", err))
	}
	if len(resp.Data) == 0 {
		return c.failure(start, model, fmt.Errorf("openai returned no image"))
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return c.failure(start, model, fmt.Errorf("failed to decode image data: %w", err))
	}

	return &ImageResult{
		Success:       true,
		Image:         data,
		Provider:      OpenAIImageName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *OpenAIImageClient) failure(start time.Time, model string, err error) (*ImageResult, error) {
	return &ImageResult{
		Success:       false,
		Provider:      OpenAIImageName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
		ErrorMessage:  err.Error(),
	}, err
}

var _ ImageProvider = (*OpenAIImageClient)(nil)
