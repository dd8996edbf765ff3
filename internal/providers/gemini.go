package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	GeminiName    = "gemini"
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	GeminiModel   = "gemini-2.5-flash-image"
)

// GeminiConfig holds configuration for the Gemini image client.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration // image renders can take minutes
	RateLimit float64       // requests per second
}

// GeminiClient implements ImageProvider against the Gemini generateContent
// API with image response modality.
type GeminiClient struct {
	apiKey    string
	baseURL   string
	model     string
	rateLimit float64
	client    *http.Client
}

// NewGeminiClient creates a new Gemini image client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = GeminiModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 600 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1.0
	}

	return &GeminiClient{
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// SupportsReferenceImages reports that reference images are forwarded inline.
func (c *GeminiClient) SupportsReferenceImages() bool {
	return true
}

// RequestsPerSecond returns the configured rate limit.
func (c *GeminiClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// Wire types for the generateContent API.

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text       string            `json:"text,omitempty"`
				InlineData *geminiInlineData `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// GenerateImage renders one image via generateContent. The prompt goes in the
// first part; reference images follow as inline base64 PNG data.
func (c *GeminiClient) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	parts := []geminiPart{{Text: req.Prompt}}
	for _, img := range req.ReferenceImages {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(img),
			},
		})
	}

	genCfg := &geminiGenerationConfig{
		ResponseModalities: []string{"IMAGE"},
	}
	if req.AspectRatio != "" || req.ImageSize != "" {
		genCfg.ImageConfig = &geminiImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   req.ImageSize,
		}
	}

	body, err := json.Marshal(geminiRequest{
		Contents:         []geminiContent{{Parts: parts}},
		GenerationConfig: genCfg,
	})
	if err != nil {
		return c.failure(start, model, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return c.failure(start, model, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// Preserve cancellation so callers can tell a stop from a failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return c.failure(start, model, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return c.failure(start, model, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return c.failure(start, model, fmt.Errorf("gemini error (status %d): %s", resp.StatusCode, truncate(string(respBody), 500)))
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return c.failure(start, model, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if gr.Error != nil {
		return c.failure(start, model, fmt.Errorf("gemini error: %s", gr.Error.Message))
	}

	var imageData []byte
	var text string
	for _, cand := range gr.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && imageData == nil {
				imageData, err = base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return c.failure(start, model, fmt.Errorf("failed to decode image data: %w", err))
				}
			}
			if part.Text != "" {
				text = part.Text
			}
		}
	}

	if imageData == nil {
		return c.failure(start, model, fmt.Errorf("gemini returned no image"))
	}

	return &ImageResult{
		Success:       true,
		Image:         imageData,
		Text:          text,
		Provider:      GeminiName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *GeminiClient) failure(start time.Time, model string, err error) (*ImageResult, error) {
	return &ImageResult{
		Success:       false,
		Provider:      GeminiName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
		ErrorMessage:  err.Error(),
	}, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

var _ ImageProvider = (*GeminiClient)(nil)
