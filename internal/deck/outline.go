package deck

import "sort"

// OutlineEntry is one page of a synthesized outline, as returned by the
// outline source.
type OutlineEntry struct {
	PageNumber int         `json:"page_number"`
	Heading    string      `json:"heading"`
	Points     []string    `json:"points,omitempty"`
	ImageDesc  string      `json:"image_desc,omitempty"`
	Script     string      `json:"script,omitempty"`
	Supplement *Supplement `json:"supplement,omitempty"`
	TitlePage  bool        `json:"title_page,omitempty"`
}

// BuildSlides creates a fresh pending slide per outline entry, ordered by
// page number.
func BuildSlides(entries []OutlineEntry) []Slide {
	sorted := make([]OutlineEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PageNumber < sorted[j].PageNumber })

	slides := make([]Slide, 0, len(sorted))
	for _, e := range sorted {
		slides = append(slides, NewSlide(e))
	}
	return slides
}

// MergeOutline replaces the deck's slide set with the regenerated outline.
// Slides whose page number survives keep their identity, generation result,
// manual override, and supplement edits; only the outline content (heading,
// points, image description, script) is refreshed. Pages that disappear are
// dropped along with their results; new pages come in pending.
func MergeOutline(existing []Slide, entries []OutlineEntry) []Slide {
	byPage := make(map[int]*Slide, len(existing))
	for i := range existing {
		byPage[existing[i].PageNumber] = &existing[i]
	}

	merged := BuildSlides(entries)
	for i := range merged {
		prev, ok := byPage[merged[i].PageNumber]
		if !ok {
			continue
		}
		merged[i].ID = prev.ID
		merged[i].Status = prev.Status
		merged[i].Result = prev.Result
		merged[i].Manual = prev.Manual
		merged[i].Error = prev.Error
		if merged[i].Supplement == nil {
			merged[i].Supplement = prev.Supplement
		}
		// An in-flight page cannot survive a regeneration; the caller pauses
		// the batch first, so running here means stale state.
		if merged[i].Status == SlideRunning {
			merged[i].Status = SlidePending
		}
	}
	return merged
}
