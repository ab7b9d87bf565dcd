package badge

import (
	"github.com/sofmeright/snapforge/src/fonts"
	"github.com/sofmeright/snapforge/src/profile"
)

// Colors for the two attestation states.
const (
	colorSealed   = "#4c1"
	colorUnsealed = "#9f9f9f"
)

// DefaultSize is the point size badges are measured at.
const DefaultSize = 11

// Engine generates SVG badges using a specific font.
type Engine struct {
	metrics *FontMetrics
}

// New creates a badge engine with the given font metrics.
func New(metrics *FontMetrics) *Engine {
	return &Engine{metrics: metrics}
}

// NewDefault creates an engine with the default built-in font.
func NewDefault() (*Engine, error) {
	m, err := LoadBuiltinFont(fonts.DefaultFont, DefaultSize)
	if err != nil {
		return nil, err
	}
	return New(m), nil
}

// Badge defines the content and appearance of a single badge.
type Badge struct {
	Label string // left side text
	Value string // right side text
	Color string // hex color for right side (e.g. "#4c1")
}

// ForProfile builds the attestation badge for one build target. A sealed
// target shows the leading twelve hex characters of its machine state
// hash; anything else reads unsealed.
func ForProfile(p profile.Profile, stateHash string) Badge {
	b := Badge{Label: p.String(), Value: "unsealed", Color: colorUnsealed}
	if stateHash != "" {
		v := stateHash
		if len(v) > 12 {
			v = v[:12]
		}
		b.Value = v
		b.Color = colorSealed
	}
	return b
}

// Generate produces a shields.io-compatible SVG badge string.
func (e *Engine) Generate(b Badge) string {
	return e.renderSVG(b)
}
