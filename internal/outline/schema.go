package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// outlineSchema is the structured output contract for outline synthesis.
const outlineSchema = `{
  "type": "object",
  "properties": {
    "slides": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "page_number": {"type": "integer", "minimum": 1},
          "heading": {"type": "string"},
          "points": {"type": "array", "items": {"type": "string"}},
          "image_description": {"type": "string"},
          "script": {"type": "string"},
          "title_page": {"type": "boolean"}
        },
        "required": ["heading", "image_description"]
      }
    }
  },
  "required": ["slides"]
}`

var compiledOutlineSchema = mustCompileSchema(outlineSchema)

func mustCompileSchema(raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("outline.json", bytes.NewReader([]byte(raw))); err != nil {
		panic(fmt.Sprintf("load outline schema: %v", err))
	}
	schema, err := compiler.Compile("outline.json")
	if err != nil {
		panic(fmt.Sprintf("compile outline schema: %v", err))
	}
	return schema
}

// validateOutline checks parsed outline JSON against the schema.
func validateOutline(parsed json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode outline for validation: %w", err)
	}
	if err := compiledOutlineSchema.Validate(doc); err != nil {
		return fmt.Errorf("outline does not match schema: %w", err)
	}
	return nil
}

// parseOutlineJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding prose.
func parseOutlineJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty model output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONObject(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize outline output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("no valid JSON found in model output")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
