// Package prompt composes generation instructions from slide content and the
// deck's shared style configuration.
package prompt

import (
	"fmt"
	"strings"

	"github.com/easelhq/easel/internal/deck"
)

// BuildInstruction returns the full instruction text for one slide. Title
// pages use a deliberately simpler template: just the heading rendered large,
// no bullet layout.
func BuildInstruction(s *deck.Slide, style deck.DeckStyle) string {
	if s.TitlePage {
		return buildTitleInstruction(s, style)
	}

	parts := []string{
		fmt.Sprintf("Design presentation slide %d titled %q.", s.PageNumber, s.Heading),
	}

	if len(s.Points) > 0 {
		parts = append(parts, "The slide presents the following points:")
		for i, p := range s.Points {
			parts = append(parts, fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(p)))
		}
	}
	if desc := strings.TrimSpace(s.ImageDesc); desc != "" {
		parts = append(parts, "Illustration guidance: "+desc+".")
	}
	if script := strings.TrimSpace(s.Script); script != "" {
		parts = append(parts, "Speaker context (do not render as text): "+script)
	}
	if s.Supplement != nil {
		if text := strings.TrimSpace(s.Supplement.Text); text != "" {
			parts = append(parts, "Additional notes: "+text)
		}
		if n := len(s.Supplement.ImageRefs); n > 0 {
			parts = append(parts, fmt.Sprintf(
				"Incorporate the %d supplementary reference image(s) provided after the base style reference.", n))
		}
	}

	parts = append(parts, styleParts(style)...)
	parts = append(parts,
		"Keep the layout consistent with the base style reference image. Text must be legible and free of spelling errors.")

	return strings.Join(parts, "\n")
}

func buildTitleInstruction(s *deck.Slide, style deck.DeckStyle) string {
	parts := []string{
		fmt.Sprintf("Design the title slide of a presentation. Title: %q.", s.Heading),
	}
	if script := strings.TrimSpace(s.Script); script != "" {
		parts = append(parts, "Context (do not render as text): "+script)
	}
	parts = append(parts, styleParts(style)...)
	parts = append(parts, "Large centered title, minimal decoration, matching the base style reference image.")
	return strings.Join(parts, "\n")
}

func styleParts(style deck.DeckStyle) []string {
	var parts []string
	if st := strings.TrimSpace(style.StyleText); st != "" {
		parts = append(parts, "Visual style: "+st+".")
	}
	if ar := strings.TrimSpace(style.AspectRatio); ar != "" {
		parts = append(parts, "Compose for a "+ar+" aspect ratio.")
	}
	return parts
}
