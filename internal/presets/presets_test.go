package presets

import (
	"testing"

	"github.com/heimdex/heimdex-render/internal/overlay"
)

func TestDefault_LoadsBuiltins(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	ar, ok := c.AspectRatio("Vertical")
	if !ok {
		t.Fatal("vertical aspect ratio missing")
	}
	if ar.Width != 1080 || ar.Height != 1920 {
		t.Errorf("vertical = %dx%d, want 1080x1920", ar.Width, ar.Height)
	}

	for _, v := range []overlay.Variant{overlay.VariantKaraoke, overlay.VariantPopup, overlay.VariantClassic, overlay.VariantBoxed} {
		s, ok := c.Style(string(v))
		if !ok {
			t.Errorf("style %q missing", v)
			continue
		}
		if s.Variant != v {
			t.Errorf("style %q variant = %q", v, s.Variant)
		}
	}
}

func TestParse_RejectsBadVariant(t *testing.T) {
	doc := []byte(`
styles:
  - name: odd
    variant: sparkle
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestParse_RejectsBadAspectRatio(t *testing.T) {
	doc := []byte(`
aspect_ratios:
  - name: broken
    width: 0
    height: 1080
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestLookup_Missing(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if _, ok := c.Style("nope"); ok {
		t.Error("unexpected style match")
	}
	if _, ok := c.AspectRatio("nope"); ok {
		t.Error("unexpected aspect ratio match")
	}
}
