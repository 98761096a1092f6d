package pipeline

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Orient turns img upright according to its EXIF orientation tag (1..8).
// Unknown values leave the image as is.
func Orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// NormalizeRotation reduces a clockwise angle to 0, 90, 180 or 270.
// Angles that are not multiples of 90 are rejected.
func NormalizeRotation(degrees int) (int, error) {
	if degrees%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidRotation, degrees)
	}
	return ((degrees % 360) + 360) % 360, nil
}

// Rotate turns img clockwise by a multiple of 90 degrees.
func Rotate(img image.Image, degrees int) image.Image {
	switch degrees {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// Upright applies the EXIF orientation and then the manual clockwise
// rotation. The manual angle is always relative to the upright image.
func Upright(img image.Image, orientation int, manual *int) (image.Image, error) {
	img = Orient(img, orientation)
	if manual == nil {
		return img, nil
	}
	deg, err := NormalizeRotation(*manual)
	if err != nil {
		return img, err
	}
	return Rotate(img, deg), nil
}
