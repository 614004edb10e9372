// Package presets exposes the built-in aspect ratios and caption styles.
package presets

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/heimdex/heimdex-render/internal/geometry"
	"github.com/heimdex/heimdex-render/internal/overlay"
)

//go:embed presets.yaml
var builtin []byte

type Catalog struct {
	AspectRatios []geometry.AspectRatio `yaml:"aspect_ratios"`
	Styles       []overlay.CaptionStyle `yaml:"styles"`
}

var (
	loadOnce sync.Once
	catalog  *Catalog
	loadErr  error
)

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}
	for _, ar := range c.AspectRatios {
		if !ar.Size().Valid() {
			return nil, fmt.Errorf("aspect ratio %q has invalid size %dx%d", ar.Name, ar.Width, ar.Height)
		}
	}
	for _, s := range c.Styles {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("style %q: %w", s.Name, err)
		}
	}
	return &c, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	loadOnce.Do(func() {
		catalog, loadErr = Parse(builtin)
	})
	return catalog, loadErr
}

func (c *Catalog) AspectRatio(name string) (geometry.AspectRatio, bool) {
	for _, ar := range c.AspectRatios {
		if strings.EqualFold(ar.Name, name) {
			return ar, true
		}
	}
	return geometry.AspectRatio{}, false
}

func (c *Catalog) Style(name string) (overlay.CaptionStyle, bool) {
	for _, s := range c.Styles {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return overlay.CaptionStyle{}, false
}
