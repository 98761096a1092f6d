package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// WatermarkType selects how a watermark is rendered.
type WatermarkType string

const (
	WatermarkText WatermarkType = "text"
	WatermarkLogo WatermarkType = "logo"
)

// Position is one of the nine anchors of the placement grid.
type Position string

const (
	PositionTopLeft      Position = "top-left"
	PositionTopCenter    Position = "top-center"
	PositionTopRight     Position = "top-right"
	PositionCenterLeft   Position = "center-left"
	PositionCenter       Position = "center"
	PositionCenterRight  Position = "center-right"
	PositionBottomLeft   Position = "bottom-left"
	PositionBottomCenter Position = "bottom-center"
	PositionBottomRight  Position = "bottom-right"
)

var positionAliases = map[string]Position{
	"top-left":      PositionTopLeft,
	"top-center":    PositionTopCenter,
	"top-right":     PositionTopRight,
	"center-left":   PositionCenterLeft,
	"center":        PositionCenter,
	"center-right":  PositionCenterRight,
	"bottom-left":   PositionBottomLeft,
	"bottom-center": PositionBottomCenter,
	"bottom-right":  PositionBottomRight,

	// compass names used by older album settings
	"northwest": PositionTopLeft,
	"north":     PositionTopCenter,
	"northeast": PositionTopRight,
	"west":      PositionCenterLeft,
	"centre":    PositionCenter,
	"east":      PositionCenterRight,
	"southwest": PositionBottomLeft,
	"south":     PositionBottomCenter,
	"southeast": PositionBottomRight,
	"nw":        PositionTopLeft,
	"n":         PositionTopCenter,
	"ne":        PositionTopRight,
	"w":         PositionCenterLeft,
	"e":         PositionCenterRight,
	"sw":        PositionBottomLeft,
	"s":         PositionBottomCenter,
	"se":        PositionBottomRight,

	"top":    PositionTopCenter,
	"bottom": PositionBottomCenter,
	"left":   PositionCenterLeft,
	"right":  PositionCenterRight,
}

// ParsePosition maps a grid name or legacy alias onto the grid.
// Unknown values resolve to center.
func ParsePosition(s string) Position {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	if p, ok := positionAliases[key]; ok {
		return p
	}
	return PositionCenter
}

// Row returns -1, 0 or 1 for top, middle and bottom.
func (p Position) Row() int {
	switch p {
	case PositionTopLeft, PositionTopCenter, PositionTopRight:
		return -1
	case PositionBottomLeft, PositionBottomCenter, PositionBottomRight:
		return 1
	default:
		return 0
	}
}

// Column returns -1, 0 or 1 for left, center and right.
func (p Position) Column() int {
	switch p {
	case PositionTopLeft, PositionCenterLeft, PositionBottomLeft:
		return -1
	case PositionTopRight, PositionCenterRight, PositionBottomRight:
		return 1
	default:
		return 0
	}
}

const (
	DefaultWatermarkOpacity = 0.5
	DefaultWatermarkMargin  = 5.0
	MaxWatermarkMargin      = 20.0

	// MaxWatermarkSize bounds an explicit font size or logo box edge in
	// pixels. Renderers also clamp to the image.
	MaxWatermarkSize = 1024
	// MaxWatermarkTextLength bounds text watermarks in runes.
	MaxWatermarkTextLength = 200
)

var (
	ErrWatermarkEmptyText   = errors.New("text watermark requires text")
	ErrWatermarkEmptyLogo   = errors.New("logo watermark requires a logo URL")
	ErrWatermarkUnknownType = errors.New("unknown watermark type")
	ErrWatermarkSize        = errors.New("watermark size out of range")
	ErrWatermarkTextTooLong = errors.New("watermark text too long")
)

// SingleWatermark is one overlay request.
type SingleWatermark struct {
	ID       string        `json:"id,omitempty"`
	Type     WatermarkType `json:"type"`
	Text     string        `json:"text,omitempty"`
	LogoURL  string        `json:"logoUrl,omitempty"`
	Opacity  *float64      `json:"opacity,omitempty"`
	Position Position      `json:"position,omitempty"`
	// Size is the font size in pixels for text, or the box edge for logos.
	Size *int `json:"size,omitempty"`
	// Margin is a percentage of the shorter image edge.
	Margin  *float64 `json:"margin,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// Validate checks the watermark is renderable. It does not vet the logo URL
// against network policy; the compositor does that before any fetch.
func (w SingleWatermark) Validate() error {
	if w.Size != nil && (*w.Size < 0 || *w.Size > MaxWatermarkSize) {
		return fmt.Errorf("%w: %d (max %d)", ErrWatermarkSize, *w.Size, MaxWatermarkSize)
	}

	switch w.Type {
	case WatermarkText:
		if strings.TrimSpace(w.Text) == "" {
			return ErrWatermarkEmptyText
		}
		if n := utf8.RuneCountInString(w.Text); n > MaxWatermarkTextLength {
			return fmt.Errorf("%w: %d runes (max %d)", ErrWatermarkTextTooLong, n, MaxWatermarkTextLength)
		}
	case WatermarkLogo:
		if strings.TrimSpace(w.LogoURL) == "" {
			return ErrWatermarkEmptyLogo
		}
	default:
		return fmt.Errorf("%w: %q", ErrWatermarkUnknownType, w.Type)
	}
	return nil
}

// IsEnabled treats a missing flag as enabled.
func (w SingleWatermark) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// EffectiveOpacity is the opacity clamped to [0,1], defaulting to 0.5.
func (w SingleWatermark) EffectiveOpacity() float64 {
	if w.Opacity == nil {
		return DefaultWatermarkOpacity
	}
	return clampFloat(*w.Opacity, 0, 1)
}

// EffectiveMargin is the margin percentage clamped to [0,20], defaulting to 5.
func (w SingleWatermark) EffectiveMargin() float64 {
	if w.Margin == nil {
		return DefaultWatermarkMargin
	}
	return clampFloat(*w.Margin, 0, MaxWatermarkMargin)
}

// Anchor resolves Position, including legacy aliases.
func (w SingleWatermark) Anchor() Position {
	return ParsePosition(string(w.Position))
}

// WatermarkConfig is the album-level watermark setting.
type WatermarkConfig struct {
	Enabled    bool              `json:"enabled"`
	Watermarks []SingleWatermark `json:"watermarks"`
}

// Active returns the watermarks that should be rendered, in order.
func (c WatermarkConfig) Active() []SingleWatermark {
	if !c.Enabled {
		return nil
	}
	out := make([]SingleWatermark, 0, len(c.Watermarks))
	for _, w := range c.Watermarks {
		if w.IsEnabled() {
			out = append(out, w)
		}
	}
	return out
}

// legacyWatermarkConfig covers both the list shape and the older flat shape
// that carried a single watermark at the top level.
type legacyWatermarkConfig struct {
	Enabled    bool              `json:"enabled"`
	Watermarks []SingleWatermark `json:"watermarks"`

	Type     WatermarkType `json:"type"`
	Text     string        `json:"text"`
	LogoURL  string        `json:"logoUrl"`
	Opacity  *float64      `json:"opacity"`
	Position Position      `json:"position"`
	Size     *int          `json:"size"`
	Margin   *float64      `json:"margin"`
}

// UnmarshalJSON normalizes the flat legacy shape into a one-element list.
func (c *WatermarkConfig) UnmarshalJSON(data []byte) error {
	var raw legacyWatermarkConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Enabled = raw.Enabled
	c.Watermarks = raw.Watermarks
	if len(raw.Watermarks) > 0 {
		return nil
	}
	if raw.Type == "" && raw.Text == "" && raw.LogoURL == "" {
		c.Watermarks = nil
		return nil
	}

	typ := raw.Type
	if typ == "" {
		typ = WatermarkText
		if raw.LogoURL != "" {
			typ = WatermarkLogo
		}
	}
	c.Watermarks = []SingleWatermark{{
		ID:       "legacy",
		Type:     typ,
		Text:     raw.Text,
		LogoURL:  raw.LogoURL,
		Opacity:  raw.Opacity,
		Position: raw.Position,
		Size:     raw.Size,
		Margin:   raw.Margin,
	}}
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
