package outline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/easelhq/easel/internal/providers"
)

const validOutlineJSON = `{
  "slides": [
    {"page_number": 1, "heading": "Go Concurrency", "points": [], "image_description": "gophers passing messages", "script": "Welcome everyone.", "title_page": true},
    {"page_number": 2, "heading": "Goroutines", "points": ["lightweight", "multiplexed"], "image_description": "many small workers", "script": "Goroutines are cheap."}
  ]
}`

func TestSynthesize(t *testing.T) {
	mock := providers.NewMockLLMClient()
	mock.ResponseJSON = json.RawMessage(validOutlineJSON)

	s := NewSynthesizer(mock, "test-model", nil)
	entries, err := s.Synthesize(context.Background(), &Request{Topic: "Go concurrency"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].TitlePage {
		t.Error("first entry should be the title page")
	}
	if entries[0].PageNumber != 1 || entries[1].PageNumber != 2 {
		t.Errorf("unexpected page numbers: %d, %d", entries[0].PageNumber, entries[1].PageNumber)
	}
	if entries[1].Heading != "Goroutines" {
		t.Errorf("unexpected heading: %s", entries[1].Heading)
	}
	if len(entries[1].Points) != 2 {
		t.Errorf("unexpected points: %v", entries[1].Points)
	}
}

func TestSynthesize_CodeFencedOutput(t *testing.T) {
	mock := providers.NewMockLLMClient()
	mock.ResponseText = "```json\n{\"slides\": [{\"heading\": \"H\", \"image_description\": \"D\"}]}\n```"

	s := NewSynthesizer(mock, "", nil)
	entries, err := s.Synthesize(context.Background(), &Request{Topic: "anything"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Heading != "H" {
		t.Errorf("unexpected entries: %+v", entries)
	}
	// Missing page numbers fall back to positional numbering.
	if entries[0].PageNumber != 1 {
		t.Errorf("unexpected page number: %d", entries[0].PageNumber)
	}
}

func TestSynthesize_EmptyTopic(t *testing.T) {
	s := NewSynthesizer(providers.NewMockLLMClient(), "", nil)
	if _, err := s.Synthesize(context.Background(), &Request{}); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestSynthesize_SchemaViolation(t *testing.T) {
	mock := providers.NewMockLLMClient()
	mock.ResponseJSON = json.RawMessage(`{"slides": []}`)

	s := NewSynthesizer(mock, "", nil)
	if _, err := s.Synthesize(context.Background(), &Request{Topic: "t"}); err == nil {
		t.Error("expected schema validation error for empty slides array")
	}
}

func TestSynthesize_UnparseableOutput(t *testing.T) {
	mock := providers.NewMockLLMClient()
	mock.ResponseText = "I cannot produce an outline right now."

	s := NewSynthesizer(mock, "", nil)
	if _, err := s.Synthesize(context.Background(), &Request{Topic: "t"}); err == nil {
		t.Error("expected parse error for prose output")
	}
}

func TestParseOutlineJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain JSON", `{"slides": []}`, false},
		{"fenced JSON", "```json\n{\"slides\": []}\n```", false},
		{"JSON with prose", "Here is the outline:\n{\"slides\": []}\nHope that helps.", false},
		{"empty", "", true},
		{"prose only", "no json here", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOutlineJSON(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseOutlineJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
