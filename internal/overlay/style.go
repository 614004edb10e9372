package overlay

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant selects how captions are animated. The set is closed.
type Variant string

const (
	VariantKaraoke Variant = "karaoke"
	VariantPopup   Variant = "popup"
	VariantClassic Variant = "classic"
	VariantBoxed   Variant = "boxed"
)

func (v Variant) Valid() bool {
	switch v {
	case VariantKaraoke, VariantPopup, VariantClassic, VariantBoxed:
		return true
	}
	return false
}

type Position string

const (
	PositionTop    Position = "top"
	PositionCenter Position = "center"
	PositionBottom Position = "bottom"
)

type Font struct {
	Family string `json:"family" yaml:"family"`
	Size   int    `json:"size" yaml:"size"`
	Bold   bool   `json:"bold" yaml:"bold"`
}

// CaptionStyle describes caption appearance. Colors are "#RRGGBB" or "#RRGGBBAA".
type CaptionStyle struct {
	Name            string   `json:"name" yaml:"name"`
	Font            Font     `json:"font" yaml:"font"`
	TextColor       string   `json:"text_color" yaml:"text_color"`
	HighlightColor  string   `json:"highlight_color" yaml:"highlight_color"`
	BackgroundColor string   `json:"background_color" yaml:"background_color"`
	Position        Position `json:"position" yaml:"position"`
	Variant         Variant  `json:"variant" yaml:"variant"`
}

// Validate checks the fields the renderer depends on.
func (s CaptionStyle) Validate() error {
	if !s.Variant.Valid() {
		return fmt.Errorf("unknown caption variant %q", s.Variant)
	}
	switch s.Position {
	case PositionTop, PositionCenter, PositionBottom, "":
	default:
		return fmt.Errorf("unknown caption position %q", s.Position)
	}
	for _, c := range []string{s.TextColor, s.HighlightColor, s.BackgroundColor} {
		if c == "" {
			continue
		}
		if _, err := ParseColor(c); err != nil {
			return err
		}
	}
	return nil
}

// Color is an RGBA color; A is opacity (255 opaque).
type Color struct {
	R, G, B, A uint8
}

// ParseColor accepts "#RRGGBB" or "#RRGGBBAA".
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// ASS renders the color as &HAABBGGRR with ASS alpha (00 opaque).
func (c Color) ASS() string {
	return fmt.Sprintf("&H%02X%02X%02X%02X", 255-c.A, c.B, c.G, c.R)
}

func colorOr(s string, fallback Color) Color {
	if s == "" {
		return fallback
	}
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}
