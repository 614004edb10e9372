// Package overlay turns adjusted captions into timed draw instructions and
// renders them as an ASS script for the encoder's subtitle filter.
package overlay

import (
	"time"

	"github.com/heimdex/heimdex-render/internal/captions"
	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/timeline"
)

// FadeEpsilon is the symmetric fade around each caption.
const FadeEpsilon = 10 * time.Millisecond

type Kind string

const (
	KindKaraokeWord Kind = "karaoke_word"
	KindPopupWord   Kind = "popup_word"
	KindCaption     Kind = "caption"
	KindBoxedWord   Kind = "boxed_word"
)

type KeyframeKind string

const (
	KeyframeScaleIn KeyframeKind = "scale_in"
	KeyframeFadeOut KeyframeKind = "fade_out"
)

type Keyframe struct {
	Kind KeyframeKind
	At   time.Duration
}

// Instruction is a styled draw directive visible during Window.
type Instruction struct {
	Kind         Kind
	CaptionIndex int
	WordIndex    int // -1 for caption-level instructions
	Text         string

	// Line holds every word of the caption; karaoke draws the whole line
	// and highlights Text within it.
	Line []string

	Window    timeline.TimeRange
	Highlight timeline.TimeRange
	Keyframes []Keyframe
}

// BuildInstructions produces instructions ordered by caption, then by word start.
// It returns nil when there are no captions or the variant is unknown.
func BuildInstructions(caps []captions.TimedCaption, style CaptionStyle, canvas geometry.Size, total time.Duration) []Instruction {
	if len(caps) == 0 {
		return nil
	}

	var out []Instruction
	for i, c := range caps {
		if len(c.Words) == 0 {
			continue
		}
		window := fadeWindow(c.Start, c.End, total)
		if window.IsEmpty() {
			continue
		}

		switch style.Variant {
		case VariantKaraoke:
			out = append(out, karaoke(i, c, window)...)
		case VariantPopup:
			out = append(out, popup(i, c, total)...)
		case VariantBoxed:
			out = append(out, boxed(i, c, total)...)
		case VariantClassic:
			out = append(out, classic(i, c, window))
		}
	}
	return out
}

// fadeWindow pads [start, end] by FadeEpsilon on both sides within [0, total].
func fadeWindow(start, end, total time.Duration) timeline.TimeRange {
	s := start - FadeEpsilon
	if s < 0 {
		s = 0
	}
	e := end + FadeEpsilon
	if e > total {
		e = total
	}
	return timeline.NewRange(s, e)
}

func lineOf(c captions.TimedCaption) []string {
	line := make([]string, len(c.Words))
	for i, w := range c.Words {
		line[i] = w.Text
	}
	return line
}

func classic(idx int, c captions.TimedCaption, window timeline.TimeRange) Instruction {
	return Instruction{
		Kind:         KindCaption,
		CaptionIndex: idx,
		WordIndex:    -1,
		Text:         c.Text,
		Window:       window,
	}
}

func karaoke(idx int, c captions.TimedCaption, window timeline.TimeRange) []Instruction {
	line := lineOf(c)
	out := make([]Instruction, 0, len(c.Words))
	for j, w := range c.Words {
		start := w.Start
		if j == 0 {
			start = window.Start
		}
		end := window.End()
		if j+1 < len(c.Words) {
			end = c.Words[j+1].Start
		}
		out = append(out, Instruction{
			Kind:         KindKaraokeWord,
			CaptionIndex: idx,
			WordIndex:    j,
			Text:         w.Text,
			Line:         line,
			Window:       clampRange(timeline.NewRange(start, end), window),
			Highlight:    clampRange(timeline.NewRange(w.Start, w.End), window),
		})
	}
	return out
}

func popup(idx int, c captions.TimedCaption, total time.Duration) []Instruction {
	out := make([]Instruction, 0, len(c.Words))
	for j, w := range c.Words {
		fadeOut := c.End
		if j+1 < len(c.Words) {
			fadeOut = c.Words[j+1].Start
		}
		if fadeOut < w.Start {
			fadeOut = w.Start
		}
		out = append(out, Instruction{
			Kind:         KindPopupWord,
			CaptionIndex: idx,
			WordIndex:    j,
			Text:         w.Text,
			Window:       fadeWindow(w.Start, fadeOut, total),
			Keyframes: []Keyframe{
				{Kind: KeyframeScaleIn, At: w.Start},
				{Kind: KeyframeFadeOut, At: fadeOut},
			},
		})
	}
	return out
}

func boxed(idx int, c captions.TimedCaption, total time.Duration) []Instruction {
	out := make([]Instruction, 0, len(c.Words))
	for j, w := range c.Words {
		out = append(out, Instruction{
			Kind:         KindBoxedWord,
			CaptionIndex: idx,
			WordIndex:    j,
			Text:         w.Text,
			Window:       fadeWindow(w.Start, w.End, total),
		})
	}
	return out
}

func clampRange(r, bounds timeline.TimeRange) timeline.TimeRange {
	start := max(r.Start, bounds.Start)
	end := min(r.End(), bounds.End())
	return timeline.NewRange(start, end)
}
