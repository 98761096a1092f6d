// Package watermark renders text and logo watermarks and composites them
// onto photo previews.
package watermark

import (
	"context"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
	"github.com/hszk-dev/lumina/internal/netguard"
)

// MaxWatermarks caps how many watermarks are rendered on one image.
const MaxWatermarks = 6

// Overlay is one rendered watermark ready to composite.
type Overlay struct {
	WatermarkID string
	Kind        model.WatermarkType
	// SVG is the vector form of the overlay. Text overlays span the full
	// frame; logo overlays span the logo box.
	SVG string
	// Layer is the raster form, drawn with its top-left at (Left, Top).
	Layer     *image.NRGBA
	Left, Top int
	// AnchorX and AnchorY are the grid anchor the overlay was placed on.
	AnchorX, AnchorY int
}

// CompositeFunc draws overlays onto base in order.
type CompositeFunc func(base image.Image, overlays []Overlay) *image.NRGBA

// Compositor builds watermark overlays and applies them in a single pass.
type Compositor struct {
	logos     LogoSource
	guard     *netguard.Guard
	composite CompositeFunc
	max       int
	logger    *slog.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLogoSource sets where logo bytes come from. Without one, logo
// watermarks are skipped.
func WithLogoSource(src LogoSource) Option {
	return func(c *Compositor) { c.logos = src }
}

// WithGuard sets the URL policy applied before any logo fetch.
func WithGuard(g *netguard.Guard) Option {
	return func(c *Compositor) {
		if g != nil {
			c.guard = g
		}
	}
}

// WithCompositeFunc replaces the compositing step.
func WithCompositeFunc(fn CompositeFunc) Option {
	return func(c *Compositor) {
		if fn != nil {
			c.composite = fn
		}
	}
}

// WithMaxWatermarks overrides MaxWatermarks.
func WithMaxWatermarks(n int) Option {
	return func(c *Compositor) {
		if n > 0 {
			c.max = n
		}
	}
}

// WithLogger sets the logger used for skipped watermarks.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompositor creates a Compositor.
func NewCompositor(opts ...Option) *Compositor {
	c := &Compositor{
		guard:     netguard.New(),
		composite: OverlayAll,
		max:       MaxWatermarks,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildOverlays renders the active watermarks of cfg for a width×height
// image. Watermarks are rendered concurrently and returned in cfg order.
// A watermark that fails to render is logged and skipped; it never fails
// the photo.
func (c *Compositor) BuildOverlays(ctx context.Context, width, height int, cfg model.WatermarkConfig) []Overlay {
	if width <= 0 || height <= 0 {
		return nil
	}

	active := cfg.Active()
	if len(active) > c.max {
		c.logger.Warn("too many watermarks, extra ones ignored",
			"requested", len(active),
			"max", c.max,
		)
		active = active[:c.max]
	}
	if len(active) == 0 {
		return nil
	}

	results := make([]*Overlay, len(active))
	var g errgroup.Group
	for i, wm := range active {
		i, wm := i, wm
		g.Go(func() error {
			ov, err := c.build(ctx, wm, width, height)
			if err != nil {
				metrics.WatermarksTotal.WithLabelValues(string(wm.Type), metrics.WatermarkSkipped).Inc()
				c.logger.Warn("skipping watermark",
					"watermark_id", wm.ID,
					"type", wm.Type,
					"error", err,
				)
				return nil
			}
			metrics.WatermarksTotal.WithLabelValues(string(wm.Type), metrics.WatermarkApplied).Inc()
			results[i] = &ov
			return nil
		})
	}
	_ = g.Wait()

	overlays := make([]Overlay, 0, len(results))
	for _, ov := range results {
		if ov != nil {
			overlays = append(overlays, *ov)
		}
	}
	return overlays
}

func (c *Compositor) build(ctx context.Context, wm model.SingleWatermark, width, height int) (Overlay, error) {
	if err := wm.Validate(); err != nil {
		return Overlay{}, err
	}

	switch wm.Type {
	case model.WatermarkLogo:
		u, err := c.guard.Check(wm.LogoURL)
		if err != nil {
			return Overlay{}, err
		}
		if c.logos == nil {
			return Overlay{}, ErrNoLogoSource
		}
		data, err := c.logos.Fetch(ctx, u.String())
		if err != nil {
			return Overlay{}, err
		}
		return buildLogo(wm, data, width, height)
	default:
		return buildText(wm, width, height)
	}
}

// Composite draws all overlays onto base in one compositing call.
func (c *Compositor) Composite(base image.Image, overlays []Overlay) *image.NRGBA {
	return c.composite(base, overlays)
}

// Apply watermarks img according to cfg. It reports false, returning img
// unchanged, when nothing was rendered.
func (c *Compositor) Apply(ctx context.Context, img image.Image, cfg model.WatermarkConfig) (image.Image, bool) {
	b := img.Bounds()
	overlays := c.BuildOverlays(ctx, b.Dx(), b.Dy(), cfg)
	if len(overlays) == 0 {
		return img, false
	}
	return c.Composite(img, overlays), true
}

// OverlayAll is the default CompositeFunc.
func OverlayAll(base image.Image, overlays []Overlay) *image.NRGBA {
	dst := imaging.Clone(base)
	for _, ov := range overlays {
		if ov.Layer == nil {
			continue
		}
		dst = imaging.Overlay(dst, ov.Layer, image.Pt(ov.Left, ov.Top), 1.0)
	}
	return dst
}
