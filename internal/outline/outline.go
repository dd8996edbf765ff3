// Package outline synthesizes deck outlines from a topic using an LLM with
// structured output, validated against a JSON schema before use.
package outline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/providers"
)

// DefaultSlideCount is used when a request does not specify one.
const DefaultSlideCount = 8

// Request describes the deck to outline.
type Request struct {
	Topic      string `json:"topic"`
	Title      string `json:"title,omitempty"`
	SlideCount int    `json:"slide_count,omitempty"`
	Language   string `json:"language,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// Synthesizer turns a topic into a slide-by-slide outline.
type Synthesizer struct {
	llm    providers.LLMClient
	model  string
	logger *slog.Logger
}

// NewSynthesizer creates a synthesizer backed by the given LLM client. The
// model override may be empty to use the client default.
func NewSynthesizer(llm providers.LLMClient, model string, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{llm: llm, model: model, logger: logger}
}

// Synthesize generates and validates an outline for the request.
func (s *Synthesizer) Synthesize(ctx context.Context, req *Request) ([]deck.OutlineEntry, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required")
	}
	count := req.SlideCount
	if count <= 0 {
		count = DefaultSlideCount
	}

	chatReq := &providers.ChatRequest{
		System:         outlineSystemPrompt,
		Prompt:         buildOutlinePrompt(req, count),
		Model:          s.model,
		Temperature:    0.7,
		ResponseSchema: json.RawMessage(outlineSchema),
	}

	result, err := s.llm.Chat(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("outline request failed: %w", err)
	}

	parsed, err := parseOutlineJSON(result.Content)
	if err != nil {
		s.logger.Warn("failed to parse outline output", "error", err, "provider", result.Provider)
		return nil, fmt.Errorf("failed to parse outline: %w", err)
	}
	if err := validateOutline(parsed); err != nil {
		return nil, err
	}

	var doc outlineDocument
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode outline: %w", err)
	}

	entries := make([]deck.OutlineEntry, 0, len(doc.Slides))
	for i, slide := range doc.Slides {
		page := slide.PageNumber
		if page <= 0 {
			page = i + 1
		}
		entries = append(entries, deck.OutlineEntry{
			PageNumber: page,
			Heading:    slide.Heading,
			Points:     slide.Points,
			ImageDesc:  slide.ImageDesc,
			Script:     slide.Script,
			TitlePage:  slide.TitlePage,
		})
	}

	s.logger.Info("synthesized outline",
		"topic", req.Topic,
		"slides", len(entries),
		"provider", result.Provider,
		"model", result.ModelUsed)
	return entries, nil
}

const outlineSystemPrompt = `You are a presentation planner. Given a topic, produce a slide-by-slide outline for a visual slide deck. The first slide is the title page. Each slide needs a heading, talking points, a concrete description of the illustration to render, and a short speaker script. Respond with JSON only.`

func buildOutlinePrompt(req *Request, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Title != "" {
		fmt.Fprintf(&b, "Deck title: %s\n", req.Title)
	}
	fmt.Fprintf(&b, "Number of slides: %d\n", count)
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "Additional guidance: %s\n", req.Notes)
	}
	return b.String()
}

type outlineDocument struct {
	Slides []outlineSlide `json:"slides"`
}

type outlineSlide struct {
	PageNumber int      `json:"page_number"`
	Heading    string   `json:"heading"`
	Points     []string `json:"points"`
	ImageDesc  string   `json:"image_description"`
	Script     string   `json:"script"`
	TitlePage  bool     `json:"title_page"`
}
