// Package captions holds word-timed caption data and remaps it onto a
// timeline that has had ranges cut out of it.
package captions

import (
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/timeline"
)

// TimedWord is a single transcribed word. End >= Start.
type TimedWord struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// TimedCaption groups words displayed together. Start and End follow the
// first and last word.
type TimedCaption struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Words []TimedWord   `json:"words"`
}

// NewCaption builds a caption whose text and bounds are derived from words.
func NewCaption(words []TimedWord) TimedCaption {
	c := TimedCaption{Words: words}
	if len(words) == 0 {
		return c
	}
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	c.Text = strings.Join(texts, " ")
	c.Start = words[0].Start
	c.End = words[len(words)-1].End
	return c
}

// Adjuster maps source timestamps onto the compacted timeline.
type Adjuster struct {
	exclusions []timeline.TimeRange
}

// NewAdjuster keeps its own sorted, merged copy of the exclusions.
func NewAdjuster(exclusions []timeline.TimeRange) *Adjuster {
	return &Adjuster{exclusions: timeline.MergeRanges(exclusions)}
}

// AdjustTime subtracts the duration of every exclusion that ends at or before t.
// A t inside an exclusion maps to that exclusion's start on the compacted timeline.
func (a *Adjuster) AdjustTime(t time.Duration) time.Duration {
	var offset time.Duration
	for _, ex := range a.exclusions {
		if ex.Start >= t {
			break
		}
		if ex.End() <= t {
			offset += ex.Duration
			continue
		}
		// t is inside ex: clamp to its start.
		offset += t - ex.Start
		break
	}
	adjusted := t - offset
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// IsExcluded reports whether t falls in any exclusion, using [start, end).
func (a *Adjuster) IsExcluded(t time.Duration) bool {
	for _, ex := range a.exclusions {
		if ex.Start > t {
			return false
		}
		if ex.Contains(t) {
			return true
		}
	}
	return false
}

// Adjust drops words that start inside an exclusion and shifts the rest.
// Captions left without words are dropped. Order is preserved.
func (a *Adjuster) Adjust(captions []TimedCaption) []TimedCaption {
	out := make([]TimedCaption, 0, len(captions))
	for _, c := range captions {
		words := make([]TimedWord, 0, len(c.Words))
		for _, w := range c.Words {
			if a.IsExcluded(w.Start) {
				continue
			}
			start := a.AdjustTime(w.Start)
			end := a.AdjustTime(w.End)
			if end < start {
				end = start
			}
			words = append(words, TimedWord{Text: w.Text, Start: start, End: end})
		}
		if len(words) == 0 {
			continue
		}
		out = append(out, NewCaption(words))
	}
	return out
}

// AdjustCaptions remaps captions against exclusions in one call.
func AdjustCaptions(captions []TimedCaption, exclusions []timeline.TimeRange) []TimedCaption {
	return NewAdjuster(exclusions).Adjust(captions)
}

// ClampCaptions bounds every timestamp to [0, total]. Captions that start at
// or beyond total are dropped.
func ClampCaptions(captions []TimedCaption, total time.Duration) []TimedCaption {
	clamp := func(t time.Duration) time.Duration {
		if t < 0 {
			return 0
		}
		if t > total {
			return total
		}
		return t
	}

	out := make([]TimedCaption, 0, len(captions))
	for _, c := range captions {
		words := make([]TimedWord, 0, len(c.Words))
		for _, w := range c.Words {
			if w.Start >= total {
				continue
			}
			words = append(words, TimedWord{Text: w.Text, Start: clamp(w.Start), End: clamp(w.End)})
		}
		if len(words) == 0 {
			continue
		}
		out = append(out, NewCaption(words))
	}
	return out
}
