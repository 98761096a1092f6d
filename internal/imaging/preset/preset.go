// Package preset holds the named tone-curve presets applied to photos
// before resizing.
package preset

import (
	"image"
	"image/color"
	"log/slog"
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// None is the id of the no-op preset.
const None = "none"

// Config is one tone-curve bundle. Nil fields are left untouched.
//
// Brightness, Saturation and Contrast are multipliers where 1 is identity.
// Hue is a rotation in degrees. Gamma follows imaging.AdjustGamma: values
// above 1 lighten. Tint recolors the image with the tint's chroma while
// keeping each pixel's luminance.
type Config struct {
	Brightness *float64
	Saturation *float64
	Hue        *float64
	Contrast   *float64
	Gamma      *float64
	Tint       *color.NRGBA
}

func f(v float64) *float64 { return &v }

var order = []string{
	None, "vivid", "warm", "cool", "mono", "vintage", "fade", "dramatic", "soft", "cinematic",
}

var presets = map[string]Config{
	None:        {},
	"vivid":     {Saturation: f(1.35), Contrast: f(1.1)},
	"warm":      {Brightness: f(1.03), Saturation: f(1.1), Hue: f(-8)},
	"cool":      {Saturation: f(0.95), Hue: f(12)},
	"mono":      {Saturation: f(0), Contrast: f(1.05)},
	"vintage":   {Contrast: f(0.9), Gamma: f(1.1), Tint: &color.NRGBA{R: 112, G: 66, B: 20, A: 255}},
	"fade":      {Brightness: f(1.05), Saturation: f(0.8), Contrast: f(0.8)},
	"dramatic":  {Saturation: f(0.85), Contrast: f(1.3), Gamma: f(0.9)},
	"soft":      {Brightness: f(1.05), Contrast: f(0.9), Gamma: f(1.1)},
	"cinematic": {Saturation: f(0.9), Hue: f(5), Contrast: f(1.15), Gamma: f(0.95)},
}

// List returns every preset id in a stable order.
func List() []string {
	return append([]string(nil), order...)
}

// Lookup returns the preset registered under id. An empty id is None.
func Lookup(id string) (Config, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		id = None
	}
	cfg, ok := presets[id]
	return cfg, ok
}

// Apply applies the preset named id. An empty or "none" id returns img
// unchanged; an unknown id is logged and also returns img unchanged.
func Apply(img image.Image, id string) image.Image {
	cfg, ok := Lookup(id)
	if !ok {
		slog.Warn("unknown style preset, skipping", "preset", id)
		return img
	}
	return cfg.Apply(img)
}

// IsIdentity reports whether applying c would leave every pixel unchanged.
func (c Config) IsIdentity() bool {
	return !c.modulates() && !c.adjustsContrast() && !c.adjustsGamma() && c.Tint == nil
}

func (c Config) modulates() bool {
	return differs(c.Brightness, 1) || differs(c.Saturation, 1) || c.rotatesHue()
}

func (c Config) rotatesHue() bool {
	return c.Hue != nil && math.Mod(*c.Hue, 360) != 0
}

func (c Config) adjustsContrast() bool { return differs(c.Contrast, 1) }

func (c Config) adjustsGamma() bool { return differs(c.Gamma, 1) && *c.Gamma > 0 }

func differs(v *float64, identity float64) bool {
	return v != nil && *v != identity
}

// Apply runs modulate (brightness, saturation, hue), contrast, gamma and tint
// in that order, skipping each step whose value is the identity.
func (c Config) Apply(img image.Image) image.Image {
	if c.IsIdentity() {
		return img
	}

	out := img
	if c.modulates() {
		if differs(c.Brightness, 1) {
			out = brightness(out, *c.Brightness)
		}
		if differs(c.Saturation, 1) {
			// imaging takes a percentage change in (-100, 500].
			out = imaging.AdjustSaturation(out, (*c.Saturation-1)*100)
		}
		if c.rotatesHue() {
			out = RotateHue(out, *c.Hue)
		}
	}
	if c.adjustsContrast() {
		out = contrast(out, *c.Contrast)
	}
	if c.adjustsGamma() {
		out = imaging.AdjustGamma(out, *c.Gamma)
	}
	if c.Tint != nil {
		out = Tint(out, *c.Tint)
	}
	return out
}

func brightness(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * factor),
			G: clamp8(float64(c.G) * factor),
			B: clamp8(float64(c.B) * factor),
			A: c.A,
		}
	})
}

// contrast is a linear stretch around mid-grey: out = c*(in-128)+128.
func contrast(img image.Image, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(factor*(float64(c.R)-128) + 128),
			G: clamp8(factor*(float64(c.G)-128) + 128),
			B: clamp8(factor*(float64(c.B)-128) + 128),
			A: c.A,
		}
	})
}

// RotateHue rotates every pixel's hue by degrees around the luminance axis.
func RotateHue(img image.Image, degrees float64) *image.NRGBA {
	rad := degrees * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	m := [9]float64{
		0.213 + cos*0.787 - sin*0.213, 0.715 - cos*0.715 - sin*0.715, 0.072 - cos*0.072 + sin*0.928,
		0.213 - cos*0.213 + sin*0.143, 0.715 + cos*0.285 + sin*0.140, 0.072 - cos*0.072 - sin*0.283,
		0.213 - cos*0.213 - sin*0.787, 0.715 - cos*0.715 + sin*0.715, 0.072 + cos*0.928 + sin*0.072,
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp8(m[0]*r + m[1]*g + m[2]*b),
			G: clamp8(m[3]*r + m[4]*g + m[5]*b),
			B: clamp8(m[6]*r + m[7]*g + m[8]*b),
			A: c.A,
		}
	})
}

// Tint replaces each pixel's chroma with the tint's while keeping its
// luminance.
func Tint(img image.Image, tint color.NRGBA) *image.NRGBA {
	tl := luminance(float64(tint.R), float64(tint.G), float64(tint.B))
	dr, dg, db := float64(tint.R)-tl, float64(tint.G)-tl, float64(tint.B)-tl
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		l := luminance(float64(c.R), float64(c.G), float64(c.B))
		return color.NRGBA{R: clamp8(l + dr), G: clamp8(l + dg), B: clamp8(l + db), A: c.A}
	})
}

func luminance(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
