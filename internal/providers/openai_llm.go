package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAILLMName         = "openai"
	openAILLMDefaultModel = "gpt-4o-mini"
)

// OpenAILLMConfig holds configuration for the chat client used by outline
// synthesis. BaseURL makes the client work against any OpenAI-compatible
// endpoint.
type OpenAILLMConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// OpenAILLMClient implements LLMClient using the official OpenAI SDK.
type OpenAILLMClient struct {
	model  string
	client openai.Client
}

// NewOpenAILLMClient creates a new chat client.
func NewOpenAILLMClient(cfg OpenAILLMConfig) *OpenAILLMClient {
	if cfg.Model == "" {
		cfg.Model = openAILLMDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 300 * time.Second
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

	return &OpenAILLMClient{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Name returns the client identifier.
func (c *OpenAILLMClient) Name() string {
	return OpenAILLMName
}

// Chat sends a single-turn chat completion request. When req.ResponseSchema
// is set the request asks for structured output via json_schema response
// format.
func (c *OpenAILLMClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.ResponseSchema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(req.ResponseSchema, &schema); err != nil {
			return c.failure(start, model, fmt.Errorf("invalid response schema: %w", err))
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: schema,
				},
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return c.failure(start, model, fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return c.failure(start, model, fmt.Errorf("llm returned no content"))
	}

	return &ChatResult{
		Content:       resp.Choices[0].Message.Content,
		Provider:      OpenAILLMName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
		Success:       true,
	}, nil
}

func (c *OpenAILLMClient) failure(start time.Time, model string, err error) (*ChatResult, error) {
	return &ChatResult{
		Provider:      OpenAILLMName,
		ModelUsed:     model,
		ExecutionTime: time.Since(start),
		Success:       false,
		ErrorMessage:  err.Error(),
	}, err
}

var _ LLMClient = (*OpenAILLMClient)(nil)
