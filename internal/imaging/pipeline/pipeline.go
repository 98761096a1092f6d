// Package pipeline turns an uploaded original into the derivatives served by
// the gallery: a sanitized EXIF document, a BlurHash placeholder, a
// thumbnail and a watermarked preview.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/imaging/metadata"
	"github.com/hszk-dev/lumina/internal/imaging/preset"
	"github.com/hszk-dev/lumina/internal/imaging/watermark"
	"github.com/hszk-dev/lumina/internal/infrastructure/metrics"
)

const (
	blurHashSample     = 32
	blurHashComponents = 4

	// DefaultMaxPixels is the largest original decoded, about 10000×10000.
	DefaultMaxPixels = 100_000_000
)

var (
	// ErrDecode is returned when the original cannot be decoded. It is the
	// only error that fails a photo outright.
	ErrDecode = errors.New("failed to decode image")

	// ErrImageTooLarge is wrapped together with ErrDecode when the header
	// declares more pixels than Config.MaxPixels.
	ErrImageTooLarge = errors.New("image dimensions exceed pixel limit")

	ErrInvalidRotation = errors.New("rotation must be a multiple of 90 degrees")
)

// Config holds the derivative sizes and encoder settings.
type Config struct {
	// ThumbMaxSize bounds the longer thumbnail edge. Default: 400
	ThumbMaxSize int
	// PreviewMaxSize bounds the longer preview edge. Default: 1920
	PreviewMaxSize int
	// ThumbQuality is the thumbnail JPEG quality. Default: 80
	ThumbQuality int
	// PreviewQuality is the preview JPEG quality. Default: 85
	PreviewQuality int
	// MaxPixels bounds width×height of an original, checked from the
	// header before decoding. Default: 100000000
	MaxPixels int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ThumbMaxSize:   400,
		PreviewMaxSize: 1920,
		ThumbQuality:   80,
		PreviewQuality: 85,
		MaxPixels:      DefaultMaxPixels,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ThumbMaxSize <= 0 {
		c.ThumbMaxSize = d.ThumbMaxSize
	}
	if c.PreviewMaxSize <= 0 {
		c.PreviewMaxSize = d.PreviewMaxSize
	}
	if c.ThumbQuality <= 0 || c.ThumbQuality > 100 {
		c.ThumbQuality = d.ThumbQuality
	}
	if c.PreviewQuality <= 0 || c.PreviewQuality > 100 {
		c.PreviewQuality = d.PreviewQuality
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = d.MaxPixels
	}
	return c
}

// Watermarker composites watermarks onto an image. It reports whether
// anything was drawn.
type Watermarker interface {
	Apply(ctx context.Context, img image.Image, cfg model.WatermarkConfig) (image.Image, bool)
}

// Options are the per-photo inputs of one run.
type Options struct {
	// Rotation is a manual clockwise rotation applied after EXIF
	// orientation. Nil means none.
	Rotation    *int
	StylePreset string
	Watermark   model.WatermarkConfig
}

// Pipeline processes originals. It holds no per-photo state and is safe
// for concurrent use.
type Pipeline struct {
	config      Config
	watermarker Watermarker
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig sets sizes and qualities. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) { p.config = cfg.withDefaults() }
}

// WithWatermarker replaces the watermark compositor.
func WithWatermarker(w Watermarker) Option {
	return func(p *Pipeline) {
		if w != nil {
			p.watermarker = w
		}
	}
}

// WithLogger sets the logger for degraded steps.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline. Without WithWatermarker it uses a compositor
// that renders text watermarks only.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.watermarker == nil {
		p.watermarker = watermark.NewCompositor(watermark.WithLogger(p.logger))
	}
	return p
}

// checkPixels reads only the image header and rejects empty images and
// those above maxPixels.
func checkPixels(data []byte, maxPixels int64) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
		return fmt.Errorf("%w: %dx%d (max %d pixels)", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}

// Process runs the full pipeline over one original. Only a decode failure
// (ErrDecode) or an encoder failure is returned; EXIF, preset, rotation and
// watermark problems are logged and skipped.
func (p *Pipeline) Process(ctx context.Context, data []byte, opts Options) (*model.ProcessedResult, error) {
	var (
		img    image.Image
		format string
	)
	err := observe(metrics.StageDecode, func() error {
		if err := checkPixels(data, p.config.MaxPixels); err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		var err error
		img, format, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta, err := metadata.Read(data)
	if err != nil {
		p.logger.Debug("exif unavailable, continuing without it", "format", format, "error", err)
	}

	_ = observe(metrics.StageRotate, func() error {
		var err error
		img, err = Upright(img, meta.Orientation, opts.Rotation)
		if err != nil {
			p.logger.Warn("ignoring manual rotation", "error", err)
		}
		return nil
	})

	_ = observe(metrics.StagePreset, func() error {
		img = preset.Apply(img, opts.StylePreset)
		return nil
	})

	result := &model.ProcessedResult{
		Metadata: model.ImageMetadata{
			Format:      format,
			Width:       img.Bounds().Dx(),
			Height:      img.Bounds().Dy(),
			Orientation: meta.Orientation,
		},
		EXIF: meta.Fields,
	}

	if err := p.thumbnailAndBlurHash(ctx, img, result); err != nil {
		return nil, err
	}
	if err := p.preview(ctx, img, opts.Watermark, result); err != nil {
		return nil, err
	}
	return result, nil
}

// thumbnailAndBlurHash runs both branches concurrently, each on its own
// clone of img.
func (p *Pipeline) thumbnailAndBlurHash(ctx context.Context, img image.Image, result *model.ProcessedResult) error {
	g, _ := errgroup.WithContext(ctx)

	thumbSrc := imaging.Clone(img)
	hashSrc := imaging.Clone(img)

	g.Go(func() error {
		return observe(metrics.StageThumbnail, func() error {
			thumb := imaging.Fit(thumbSrc, p.config.ThumbMaxSize, p.config.ThumbMaxSize, imaging.Lanczos)
			buf, err := encodeJPEG(thumb, p.config.ThumbQuality)
			if err != nil {
				return fmt.Errorf("failed to encode thumbnail: %w", err)
			}
			result.ThumbBuffer = buf
			result.Metadata.ThumbWidth = thumb.Bounds().Dx()
			result.Metadata.ThumbHeight = thumb.Bounds().Dy()
			return nil
		})
	})

	g.Go(func() error {
		sample := imaging.Resize(hashSrc, blurHashSample, blurHashSample, imaging.Box)
		hash, err := blurhash.Encode(blurHashComponents, blurHashComponents, sample)
		if err != nil {
			return fmt.Errorf("failed to compute blurhash: %w", err)
		}
		result.BlurHash = hash
		return nil
	})

	return g.Wait()
}

// preview resizes img for display, watermarks it and encodes it.
func (p *Pipeline) preview(ctx context.Context, img image.Image, cfg model.WatermarkConfig, result *model.ProcessedResult) error {
	var out image.Image
	_ = observe(metrics.StagePreview, func() error {
		out = imaging.Fit(img, p.config.PreviewMaxSize, p.config.PreviewMaxSize, imaging.Lanczos)
		return nil
	})

	b := out.Bounds()
	if len(cfg.Active()) > 0 {
		if b.Dx() <= 0 || b.Dy() <= 0 {
			p.logger.Warn("skipping watermarks on degenerate preview", "width", b.Dx(), "height", b.Dy())
		} else {
			_ = observe(metrics.StageWatermark, func() error {
				out, result.Metadata.Watermarked = p.watermarker.Apply(ctx, out, cfg)
				return nil
			})
		}
	}

	return observe(metrics.StageEncode, func() error {
		buf, err := encodeJPEG(out, p.config.PreviewQuality)
		if err != nil {
			return fmt.Errorf("failed to encode preview: %w", err)
		}
		result.PreviewBuffer = buf
		result.Metadata.PreviewWidth = b.Dx()
		result.Metadata.PreviewHeight = b.Dy()
		return nil
	})
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// observe times fn under the given stage label.
func observe(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}
