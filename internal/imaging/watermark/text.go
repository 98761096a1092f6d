package watermark

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/hszk-dev/lumina/internal/domain/model"
)

const (
	minFontSize = 12
	maxFontSize = 72
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeXML escapes the five XML special characters with their named
// entities.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// FontSize is sqrt(width*height)*0.01 clamped to [12, 72]. An explicit
// positive size wins but is held between 12 and the shorter image edge,
// never above model.MaxWatermarkSize.
func FontSize(width, height int, explicit *int) int {
	if explicit != nil && *explicit > 0 {
		ceiling := max(minFontSize, min(width, height, model.MaxWatermarkSize))
		return clampInt(*explicit, minFontSize, ceiling)
	}
	size := int(math.Round(math.Sqrt(float64(width)*float64(height)) * 0.01))
	return clampInt(size, minFontSize, maxFontSize)
}

// TextSVG renders a full-frame SVG overlay carrying the escaped text.
func TextSVG(text string, width, height int, p TextPlacement, fontSize int, opacity float64) string {
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`+
			`<text x="%d" y="%d" font-family="sans-serif" font-size="%d" fill="#ffffff" fill-opacity="%.2f" `+
			`stroke="#000000" stroke-opacity="%.2f" stroke-width="1" text-anchor="%s" dominant-baseline="%s">%s</text></svg>`,
		width, height, p.X, p.Y, fontSize, opacity, opacity/2, p.Align, p.Baseline, EscapeXML(text),
	)
}

var regularFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// buildText renders one text watermark as an overlay.
func buildText(wm model.SingleWatermark, width, height int) (Overlay, error) {
	ttf, err := regularFont()
	if err != nil {
		return Overlay{}, fmt.Errorf("failed to load font: %w", err)
	}

	opacity := wm.EffectiveOpacity()
	size := FontSize(width, height, wm.Size)
	placement := TextAnchor(wm.Anchor(), width, height, wm.EffectiveMargin())

	layer, left, top := rasterizeText(ttf, wm.Text, size, opacity, placement, image.Rect(0, 0, width, height))

	return Overlay{
		WatermarkID: wm.ID,
		Kind:        model.WatermarkText,
		SVG:         TextSVG(wm.Text, width, height, placement, size, opacity),
		Layer:       layer,
		Left:        left,
		Top:         top,
		AnchorX:     placement.X,
		AnchorY:     placement.Y,
	}, nil
}

// rasterizeText draws text into a layer covering its line box clipped to
// frame, and returns the layer with the image coordinates of its top-left
// corner.
func rasterizeText(ttf *truetype.Font, text string, size int, opacity float64, p TextPlacement, frame image.Rectangle) (*image.NRGBA, int, int) {
	// One cached glyph mask; the default cache holds 512 of them.
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:              float64(size),
		DPI:               72,
		Hinting:           font.HintingFull,
		GlyphCacheEntries: 1,
	})
	defer func() { _ = face.Close() }()

	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineH := ascent + metrics.Descent.Ceil()
	textW := font.MeasureString(face, text).Ceil()

	left := p.X
	switch p.Align {
	case AlignMiddle:
		left -= textW / 2
	case AlignEnd:
		left -= textW
	}
	top := p.Y
	switch p.Baseline {
	case BaselineMiddle:
		top -= lineH / 2
	case BaselineAuto:
		top -= lineH
	}

	// One extra pixel on each axis for the shadow offset.
	box := image.Rect(left, top, left+textW+1, top+lineH+1)
	visible := box.Intersect(frame)
	if visible.Empty() {
		return image.NewNRGBA(image.Rectangle{}), left, top
	}
	layer := image.NewNRGBA(image.Rect(0, 0, visible.Dx(), visible.Dy()))

	alpha := uint8(math.Round(opacity * 255))
	origin := fixed.P(left-visible.Min.X, top-visible.Min.Y+ascent)
	d := font.Drawer{Dst: layer, Face: face}

	d.Src = image.NewUniform(color.NRGBA{A: alpha / 2})
	d.Dot = origin.Add(fixed.P(1, 1))
	d.DrawString(text)

	d.Src = image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: alpha})
	d.Dot = origin
	d.DrawString(text)

	return layer, visible.Min.X, visible.Min.Y
}
