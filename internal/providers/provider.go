// Package providers contains the generation service clients: image providers
// that render one slide per call, and LLM clients used for outline synthesis.
package providers

import (
	"context"
	"encoding/json"
	"time"
)

// ImageProvider renders a single image per call. Calls are asynchronous from
// the orchestrator's point of view and must observe ctx cancellation promptly.
type ImageProvider interface {
	// Name returns the provider identifier (e.g., "gemini", "openai").
	Name() string

	// GenerateImage renders one image from the request. It returns an
	// ImageResult with Success=false plus an error for failed calls; a
	// cancelled ctx is surfaced as ctx.Err().
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)

	// SupportsReferenceImages reports whether reference images are sent to
	// the backend or silently dropped.
	SupportsReferenceImages() bool

	// RequestsPerSecond is the provider's rate limit.
	RequestsPerSecond() float64
}

// LLMClient is the chat/completion interface used for outline synthesis.
type LLMClient interface {
	// Chat sends a single-turn chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier.
	Name() string
}

// ImageRequest is one slide's generation request.
type ImageRequest struct {
	// Prompt is the fully composed instruction text.
	Prompt string

	// ReferenceImages are PNG payloads; the first, when present, is the
	// deck's base style reference, followed by any supplementary images.
	ReferenceImages [][]byte

	// Presentation geometry hints. Providers that cannot honor them ignore
	// them.
	AspectRatio string
	ImageSize   string

	// Model overrides the client default when non-empty.
	Model string

	// RequestID tracks the call through logs.
	RequestID string
}

// ImageResult is the outcome of a generation call.
type ImageResult struct {
	Success bool `json:"success"`

	// Image is the rendered PNG. Text carries any accompanying commentary
	// the model produced.
	Image []byte `json:"-"`
	Text  string `json:"text,omitempty"`

	Provider      string        `json:"provider"`
	ModelUsed     string        `json:"model_used"`
	ExecutionTime time.Duration `json:"execution_time"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// ChatRequest is a single-turn request to an LLM.
type ChatRequest struct {
	System string
	Prompt string
	Model  string

	Temperature float64
	MaxTokens   int

	// ResponseSchema requests structured output conforming to the given
	// JSON schema.
	ResponseSchema json.RawMessage

	RequestID string
}

// ChatResult is the response from an LLM call.
type ChatResult struct {
	Content       string        `json:"content"`
	Provider      string        `json:"provider"`
	ModelUsed     string        `json:"model_used"`
	ExecutionTime time.Duration `json:"execution_time"`

	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}
