package watermark

import (
	"math"

	"github.com/hszk-dev/lumina/internal/domain/model"
)

// TextAlign is the SVG text-anchor of a text watermark.
type TextAlign string

const (
	AlignStart  TextAlign = "start"
	AlignMiddle TextAlign = "middle"
	AlignEnd    TextAlign = "end"
)

// Baseline is the SVG dominant-baseline of a text watermark.
type Baseline string

const (
	BaselineHanging Baseline = "hanging"
	BaselineMiddle  Baseline = "middle"
	BaselineAuto    Baseline = "auto"
)

// TextPlacement is where a text watermark is anchored on the image.
type TextPlacement struct {
	X, Y     int
	Align    TextAlign
	Baseline Baseline
}

// MarginPixels converts a margin percentage of the shorter edge to pixels.
func MarginPixels(width, height int, marginPercent float64) int {
	return int(math.Round(marginPercent * float64(min(width, height)) / 100))
}

// TextAnchor places text on the 9-anchor grid. Bottom-right on a 1000×1000
// image with a 5% margin anchors the text end at (950, 950).
func TextAnchor(pos model.Position, width, height int, marginPercent float64) TextPlacement {
	m := MarginPixels(width, height, marginPercent)

	var p TextPlacement
	switch pos.Column() {
	case -1:
		p.X, p.Align = m, AlignStart
	case 1:
		p.X, p.Align = width-m, AlignEnd
	default:
		p.X, p.Align = width/2, AlignMiddle
	}
	switch pos.Row() {
	case -1:
		p.Y, p.Baseline = m, BaselineHanging
	case 1:
		p.Y, p.Baseline = height-m, BaselineAuto
	default:
		p.Y, p.Baseline = height/2, BaselineMiddle
	}
	return p
}

// LogoPosition returns the top-left corner of a logoW×logoH box on the grid.
// The result always lies within [0, width-logoW] × [0, height-logoH], so the
// logo never overhangs an edge.
func LogoPosition(pos model.Position, width, height, logoW, logoH int, marginPercent float64) (x, y int) {
	m := MarginPixels(width, height, marginPercent)

	switch pos.Column() {
	case -1:
		x = m
	case 1:
		x = width - logoW - m
	default:
		x = (width - logoW) / 2
	}
	switch pos.Row() {
	case -1:
		y = m
	case 1:
		y = height - logoH - m
	default:
		y = (height - logoH) / 2
	}
	return clampInt(x, 0, width-logoW), clampInt(y, 0, height-logoH)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return max(lo, min(v, hi))
}
