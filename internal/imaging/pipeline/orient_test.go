package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hszk-dev/lumina/internal/imaging/imagetest"
)

var (
	red   = color.NRGBA{R: 255, A: 255}
	green = color.NRGBA{G: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// corners samples the centers of the four quadrants: top-left, top-right,
// bottom-left, bottom-right.
func corners(img image.Image) [4]color.NRGBA {
	b := img.Bounds()
	at := func(x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
	}
	w, h := b.Dx(), b.Dy()
	return [4]color.NRGBA{
		at(w/4, h/4),
		at(3*w/4, h/4),
		at(w/4, 3*h/4),
		at(3*w/4, 3*h/4),
	}
}

func TestOrient(t *testing.T) {
	src := imagetest.Quadrants(40, 20)

	tests := []struct {
		orientation int
		wantW       int
		want        [4]color.NRGBA
	}{
		{1, 40, [4]color.NRGBA{red, green, blue, white}},
		{2, 40, [4]color.NRGBA{green, red, white, blue}},
		{3, 40, [4]color.NRGBA{white, blue, green, red}},
		{4, 40, [4]color.NRGBA{blue, white, red, green}},
		{5, 20, [4]color.NRGBA{red, blue, green, white}},
		{6, 20, [4]color.NRGBA{blue, red, white, green}},
		{7, 20, [4]color.NRGBA{white, green, blue, red}},
		{8, 20, [4]color.NRGBA{green, white, red, blue}},
		{0, 40, [4]color.NRGBA{red, green, blue, white}},
		{9, 40, [4]color.NRGBA{red, green, blue, white}},
	}

	for _, tt := range tests {
		out := Orient(src, tt.orientation)
		assert.Equal(t, tt.wantW, out.Bounds().Dx(), "orientation %d width", tt.orientation)
		assert.Equal(t, tt.want, corners(out), "orientation %d", tt.orientation)
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{0, 0, false},
		{90, 90, false},
		{180, 180, false},
		{270, 270, false},
		{360, 0, false},
		{450, 90, false},
		{-90, 270, false},
		{45, 0, true},
		{100, 0, true},
	}

	for _, tt := range tests {
		got, err := NormalizeRotation(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidRotation, "input %d", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %d", tt.in)
	}
}

func TestRotate_Clockwise(t *testing.T) {
	src := imagetest.Quadrants(40, 20)

	out := Rotate(src, 90)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, [4]color.NRGBA{blue, red, white, green}, corners(out))

	out = Rotate(src, 270)
	assert.Equal(t, [4]color.NRGBA{green, white, red, blue}, corners(out))

	assert.Same(t, src, Rotate(src, 0))
}

func TestUpright_ManualIsRelativeToUprightImage(t *testing.T) {
	src := imagetest.Quadrants(40, 20)
	manual := 90

	// Mirrored orientation makes the order observable: flip first, then a
	// clockwise quarter turn.
	out, err := Upright(src, 2, &manual)
	require.NoError(t, err)
	assert.Equal(t, [4]color.NRGBA{white, green, blue, red}, corners(out))

	rotatedFirst := Orient(Rotate(src, 90), 2)
	assert.NotEqual(t, corners(rotatedFirst), corners(out))

	// Orientation 6 (90° clockwise) plus a manual 90° ends upside down.
	out, err = Upright(src, 6, &manual)
	require.NoError(t, err)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, [4]color.NRGBA{white, blue, green, red}, corners(out))
}

func TestUpright_InvalidManualKeepsOrientation(t *testing.T) {
	src := imagetest.Quadrants(40, 20)
	bad := 45

	out, err := Upright(src, 6, &bad)
	assert.ErrorIs(t, err, ErrInvalidRotation)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, [4]color.NRGBA{blue, red, white, green}, corners(out))
}
