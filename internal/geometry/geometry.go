// Package geometry computes the cover-fit transform used to re-aspect video.
package geometry

import (
	"fmt"
	"math"
)

// Size is a pixel size.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// AspectRatio is a named output canvas.
type AspectRatio struct {
	Name   string `json:"name" yaml:"name"`
	Width  int    `json:"width" yaml:"width"`
	Height int    `json:"height" yaml:"height"`
}

func (a AspectRatio) Size() Size {
	return Size{Width: a.Width, Height: a.Height}
}

// Transform scales the source by Scale, then translates by (TranslateX, TranslateY)
// expressed in pre-scale source units.
type Transform struct {
	Scale      float64
	TranslateX float64
	TranslateY float64
}

// Identity is returned when either size is unusable.
var Identity = Transform{Scale: 1}

// ComputeFillTransform returns the transform that scales source to fully cover
// output, cropping overflow and centering on both axes.
func ComputeFillTransform(source, output Size) Transform {
	if !source.Valid() || !output.Valid() {
		return Identity
	}

	sx := float64(output.Width) / float64(source.Width)
	sy := float64(output.Height) / float64(source.Height)
	scale := math.Max(sx, sy)

	scaledW := float64(source.Width) * scale
	scaledH := float64(source.Height) * scale

	return Transform{
		Scale:      scale,
		TranslateX: -(scaledW - float64(output.Width)) / 2 / scale,
		TranslateY: -(scaledH - float64(output.Height)) / 2 / scale,
	}
}

// OffsetX is the horizontal translation in output pixels (always <= 0).
func (t Transform) OffsetX() float64 {
	return t.TranslateX * t.Scale
}

// OffsetY is the vertical translation in output pixels (always <= 0).
func (t Transform) OffsetY() float64 {
	return t.TranslateY * t.Scale
}

// ScaledSize is the source size after scaling, rounded up to even pixels so
// that 4:2:0 encoders accept it. It is never smaller than the scaled float size.
func (t Transform) ScaledSize(source Size) Size {
	return Size{
		Width:  evenCeil(float64(source.Width) * t.Scale),
		Height: evenCeil(float64(source.Height) * t.Scale),
	}
}

// FilterChain renders the transform as an ffmpeg scale+crop chain producing output.
func (t Transform) FilterChain(source, output Size) string {
	scaled := t.ScaledSize(source)
	if !output.Valid() {
		return fmt.Sprintf("scale=%d:%d", scaled.Width, scaled.Height)
	}
	x := (scaled.Width - output.Width) / 2
	y := (scaled.Height - output.Height) / 2
	return fmt.Sprintf("scale=%d:%d,crop=%d:%d:%d:%d",
		scaled.Width, scaled.Height, output.Width, output.Height, x, y)
}

func evenCeil(v float64) int {
	// Tolerate float noise such as 1080.0000000002 before rounding up.
	n := int(math.Ceil(v - 1e-9))
	if n%2 != 0 {
		n++
	}
	return n
}
