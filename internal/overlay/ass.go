package overlay

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/geometry"
)

var (
	defaultText      = Color{R: 255, G: 255, B: 255, A: 255}
	defaultHighlight = Color{R: 255, G: 214, B: 0, A: 255}
	defaultBox       = Color{A: 160}
	outlineColor     = Color{A: 255}
)

const popInDuration = 80 * time.Millisecond

// WriteASS renders instructions as an Advanced SubStation Alpha script sized to canvas.
// Each instruction becomes exactly one Dialogue event.
func WriteASS(w io.Writer, instructions []Instruction, style CaptionStyle, canvas geometry.Size) error {
	bw := bufio.NewWriter(w)

	text := colorOr(style.TextColor, defaultText)
	back := colorOr(style.BackgroundColor, defaultBox)

	fontSize := style.Font.Size
	if fontSize <= 0 {
		fontSize = canvas.Height / 24
	}
	family := style.Font.Family
	if family == "" {
		family = "Arial"
	}
	bold := 0
	if style.Font.Bold {
		bold = -1
	}
	// BorderStyle 3 paints the opaque box with the outline colour.
	borderStyle, outline := 1, outlineColor
	if style.Variant == VariantBoxed {
		borderStyle, outline = 3, back
	}

	fmt.Fprintf(bw, "[Script Info]\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\nWrapStyle: 0\nScaledBorderAndShadow: yes\n\n",
		canvas.Width, canvas.Height)

	bw.WriteString("[V4+ Styles]\n")
	bw.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(bw, "Style: Default,%s,%d,%s,%s,%s,%s,%d,0,0,0,100,100,0,0,%d,3,0,%d,60,60,%d,1\n\n",
		family, fontSize, text.ASS(), text.ASS(), outline.ASS(), back.ASS(), bold,
		borderStyle, alignment(style.Position), canvas.Height/10)

	bw.WriteString("[Events]\n")
	bw.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ins := range instructions {
		fmt.Fprintf(bw, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			assTime(ins.Window.Start), assTime(ins.Window.End()), eventText(ins, style))
	}

	return bw.Flush()
}

func eventText(ins Instruction, style CaptionStyle) string {
	fadeMs := FadeEpsilon.Milliseconds()
	switch ins.Kind {
	case KindKaraokeWord:
		base := colorOr(style.TextColor, defaultText).ASS()
		hl := colorOr(style.HighlightColor, defaultHighlight).ASS()
		on := (ins.Highlight.Start - ins.Window.Start).Milliseconds()
		off := (ins.Highlight.End() - ins.Window.Start).Milliseconds()

		parts := make([]string, len(ins.Line))
		for i, word := range ins.Line {
			if i == ins.WordIndex {
				parts[i] = fmt.Sprintf(`{\1c%s\t(%d,%d,\1c%s)\t(%d,%d,\1c%s)}%s{\r}`,
					base, on, on, hl, off, off, base, escapeASS(word))
				continue
			}
			parts[i] = escapeASS(word)
		}
		return strings.Join(parts, " ")

	case KindPopupWord:
		pop := popInDuration.Milliseconds()
		if span := ins.Window.Duration.Milliseconds(); pop > span {
			pop = span
		}
		return fmt.Sprintf(`{\fad(0,%d)\fscx60\fscy60\t(0,%d,\fscx100\fscy100)}%s`, fadeMs, pop, escapeASS(ins.Text))

	case KindBoxedWord:
		return fmt.Sprintf(`{\fad(%d,%d)}%s`, fadeMs, fadeMs, escapeASS(ins.Text))

	default:
		return fmt.Sprintf(`{\fad(%d,%d)}%s`, fadeMs, fadeMs, escapeASS(ins.Text))
	}
}

// alignment maps a position to ASS numpad alignment.
func alignment(p Position) int {
	switch p {
	case PositionTop:
		return 8
	case PositionCenter:
		return 5
	default:
		return 2
	}
}

// assTime formats d as H:MM:SS.cc.
func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := d.Milliseconds() / 10
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

// escapeASS keeps caption text literal. A word joiner after each backslash
// stops libass from reading \N, \n or \h as tags.
func escapeASS(s string) string {
	s = strings.ReplaceAll(s, `\`, "\\\u2060")
	s = strings.ReplaceAll(s, "\n", `\N`)
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return s
}
