package watermark

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/hszk-dev/lumina/internal/domain/model"
	"github.com/hszk-dev/lumina/internal/netguard"
)

const (
	DefaultLogoTimeout   = 10 * time.Second
	DefaultMaxLogoBytes  = 10 << 20
	DefaultLogoSizeRatio = 0.15
	maxLogoRedirects     = 3
	// maxLogoPixels bounds the decoded logo; a few MiB of PNG can declare
	// far more.
	maxLogoPixels = 4096 * 4096
)

var (
	ErrLogoTooLarge     = errors.New("logo exceeds size limit")
	ErrUnexpectedStatus = errors.New("unexpected logo response status")
	ErrTooManyRedirects = errors.New("too many logo redirects")
	ErrNoLogoSource     = errors.New("no logo source configured")
	ErrLogoDimensions   = errors.New("logo dimensions out of range")
)

// LogoSource returns the raw bytes of a logo image.
type LogoSource interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher downloads logos over HTTP(S). Every URL, including each
// redirect target, is checked against the guard before it is requested.
type HTTPFetcher struct {
	guard    *netguard.Guard
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient replaces the underlying client. Its CheckRedirect is
// overwritten so the guard still applies.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		clone := *c
		f.client = &clone
	}
}

// WithFetchTimeout bounds each fetch, redirects included.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes caps the logo payload size.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher. A nil guard applies the deny-list
// with no allow-list.
func NewHTTPFetcher(guard *netguard.Guard, opts ...FetcherOption) *HTTPFetcher {
	if guard == nil {
		guard = netguard.New()
	}
	f := &HTTPFetcher{
		guard:    guard,
		client:   &http.Client{},
		timeout:  DefaultLogoTimeout,
		maxBytes: DefaultMaxLogoBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > maxLogoRedirects {
			return ErrTooManyRedirects
		}
		return f.guard.CheckURL(req.URL)
	}
	return f
}

// Fetch downloads the logo at rawURL.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := f.guard.Check(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build logo request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrLogoTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read logo: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrLogoTooLarge, f.maxBytes)
	}
	return data, nil
}

var _ LogoSource = (*HTTPFetcher)(nil)

// LogoBoxSize is the logo box edge: the explicit size, or 15% of the
// shorter image edge. It never exceeds the shorter edge.
func LogoBoxSize(width, height int, explicit *int) int {
	short := min(width, height)
	size := int(math.Round(float64(short) * DefaultLogoSizeRatio))
	if explicit != nil && *explicit > 0 {
		size = *explicit
	}
	return clampInt(size, 1, short)
}

// buildLogo decodes data and renders it as an overlay for a width×height
// image.
func buildLogo(wm model.SingleWatermark, data []byte, width, height int) (Overlay, error) {
	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Overlay{}, fmt.Errorf("failed to decode logo: %w", err)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 || int64(hdr.Width)*int64(hdr.Height) > maxLogoPixels {
		return Overlay{}, fmt.Errorf("%w: %dx%d", ErrLogoDimensions, hdr.Width, hdr.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Overlay{}, fmt.Errorf("failed to decode logo: %w", err)
	}

	size := LogoBoxSize(width, height, wm.Size)
	box := imaging.New(size, size, color.NRGBA{})
	box = imaging.PasteCenter(box, imaging.Fit(src, size, size, imaging.Lanczos))

	svg, err := logoSVG(box, size, wm.EffectiveOpacity())
	if err != nil {
		return Overlay{}, err
	}

	layer := withOpacity(box, wm.EffectiveOpacity())
	left, top := LogoPosition(wm.Anchor(), width, height, size, size, wm.EffectiveMargin())

	return Overlay{
		WatermarkID: wm.ID,
		Kind:        model.WatermarkLogo,
		SVG:         svg,
		Layer:       layer,
		Left:        left,
		Top:         top,
		AnchorX:     left,
		AnchorY:     top,
	}, nil
}

func logoSVG(box image.Image, size int, opacity float64) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, box); err != nil {
		return "", fmt.Errorf("failed to encode logo: %w", err)
	}
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d">`+
			`<image width="%d" height="%d" opacity="%.2f" href="data:image/png;base64,%s"/></svg>`,
		size, size, size, size, opacity, base64.StdEncoding.EncodeToString(buf.Bytes()),
	), nil
}

// withOpacity scales the alpha channel of img by opacity.
func withOpacity(img *image.NRGBA, opacity float64) *image.NRGBA {
	out := imaging.Clone(img)
	if opacity >= 1 {
		return out
	}
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = uint8(math.Round(float64(out.Pix[i]) * opacity))
	}
	return out
}
