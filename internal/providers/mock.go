package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	MockImageName = "mock"
	MockLLMName   = "mock"
)

// MockImageProvider is an ImageProvider for testing.
type MockImageProvider struct {
	// Configurable behavior
	Latency     time.Duration
	ShouldFail  bool
	FailAfter   int // Fail after N requests (0 = never)
	Image       []byte
	Refs        bool // value returned from SupportsReferenceImages
	RatePerSec  float64
	FailMessage string

	// State
	requestCount atomic.Int64

	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

// NewMockImageProvider creates a mock image provider with sensible defaults.
func NewMockImageProvider() *MockImageProvider {
	return &MockImageProvider{
		Latency:     time.Millisecond,
		Image:       []byte("mock-png"),
		Refs:        true,
		FailMessage: "mock provider configured to fail",
	}
}

// Name returns the provider identifier.
func (p *MockImageProvider) Name() string { return MockImageName }

// SupportsReferenceImages reports the configured value.
func (p *MockImageProvider) SupportsReferenceImages() bool { return p.Refs }

// RequestsPerSecond returns the configured rate limit.
func (p *MockImageProvider) RequestsPerSecond() float64 { return p.RatePerSec }

// Block makes subsequent GenerateImage calls park until Release is called.
// The returned channel receives one value per call that reaches the gate,
// letting tests synchronize on "the call is in flight".
func (p *MockImageProvider) Block() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gate = make(chan struct{})
	p.entered = make(chan struct{}, 64)
	return p.entered
}

// Release unparks every blocked and future GenerateImage call.
func (p *MockImageProvider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// GenerateImage renders a mock image.
func (p *MockImageProvider) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	p.mu.Lock()
	gate := p.gate
	entered := p.entered
	p.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.ShouldFail || (p.FailAfter > 0 && int(count) > p.FailAfter) {
		result := &ImageResult{
			Success:       false,
			Provider:      MockImageName,
			ModelUsed:     req.Model,
			ExecutionTime: time.Since(start),
			ErrorMessage:  p.FailMessage,
		}
		return result, fmt.Errorf("%s", p.FailMessage)
	}

	return &ImageResult{
		Success:       true,
		Image:         p.Image,
		Provider:      MockImageName,
		ModelUsed:     req.Model,
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (p *MockImageProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Reset resets the request counter.
func (p *MockImageProvider) Reset() {
	p.requestCount.Store(0)
}

// Verify interface
var _ ImageProvider = (*MockImageProvider)(nil)

// MockLLMClient is an LLMClient for testing.
type MockLLMClient struct {
	Latency      time.Duration
	ShouldFail   bool
	ResponseText string
	ResponseJSON json.RawMessage

	requestCount atomic.Int64
}

// NewMockLLMClient creates a mock LLM client with sensible defaults.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockLLMClient) Name() string { return MockLLMName }

// Chat sends a mock chat request.
func (c *MockLLMClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if c.ShouldFail {
		result := &ChatResult{
			Success:       false,
			Provider:      MockLLMName,
			ModelUsed:     req.Model,
			ExecutionTime: time.Since(start),
			ErrorMessage:  "mock client configured to fail",
		}
		return result, fmt.Errorf("mock client configured to fail")
	}

	content := c.ResponseText
	if req.ResponseSchema != nil && len(c.ResponseJSON) > 0 {
		content = string(c.ResponseJSON)
	}

	return &ChatResult{
		Success:       true,
		Content:       content,
		Provider:      MockLLMName,
		ModelUsed:     req.Model,
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockLLMClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Verify interface
var _ LLMClient = (*MockLLMClient)(nil)
