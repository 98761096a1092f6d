// Package imagetest builds synthetic images for tests of the imaging
// packages.
package imagetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Solid returns a w×h opaque image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Quadrants returns a w×h image whose top-left quarter is red, top-right
// green, bottom-left blue and bottom-right white, so any rotation or flip
// can be told apart by sampling the corners.
func Quadrants(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.NRGBA
			switch {
			case x < w/2 && y < h/2:
				c = color.NRGBA{R: 255, A: 255}
			case y < h/2:
				c = color.NRGBA{G: 255, A: 255}
			case x < w/2:
				c = color.NRGBA{B: 255, A: 255}
			default:
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// PNG encodes img as PNG.
func PNG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PNGHeader returns a 1×1 PNG whose IHDR claims w×h. DecodeConfig reports
// the claimed size; a full decode fails once the pixel data runs out.
func PNGHeader(w, h uint32) []byte {
	data := PNG(Solid(1, 1, color.NRGBA{A: 255}))
	// Signature (8), chunk length (4), "IHDR" (4), then width and height.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// JPEG encodes img as JPEG at quality 95.
func JPEG(img image.Image) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// EXIF describes the tags written by JPEGWithEXIF.
type EXIF struct {
	Orientation int
	Make        string
	XResolution uint32
	GPS         bool
}

// JPEGWithEXIF encodes img as JPEG and inserts an APP1 EXIF segment
// carrying e right after the SOI marker.
func JPEGWithEXIF(img image.Image, e EXIF) []byte {
	jpg := JPEG(img)
	tiff := buildTIFF(e)

	var app1 bytes.Buffer
	app1.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&app1, binary.BigEndian, uint16(2+6+len(tiff)))
	app1.WriteString("Exif\x00\x00")
	app1.Write(tiff)

	out := make([]byte, 0, len(jpg)+app1.Len())
	out = append(out, jpg[:2]...)
	out = append(out, app1.Bytes()...)
	return append(out, jpg[2:]...)
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte // inline value (<=4 bytes) or payload stored out of line
}

const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
)

func buildTIFF(e EXIF) []byte {
	be := binary.BigEndian

	var ifd0 []ifdEntry
	if e.Make != "" {
		ifd0 = append(ifd0, ifdEntry{tag: 0x010F, typ: typeASCII, count: uint32(len(e.Make) + 1), value: append([]byte(e.Make), 0)})
	}
	if e.Orientation != 0 {
		v := make([]byte, 2)
		be.PutUint16(v, uint16(e.Orientation))
		ifd0 = append(ifd0, ifdEntry{tag: 0x0112, typ: typeShort, count: 1, value: v})
	}
	if e.XResolution != 0 {
		v := make([]byte, 8)
		be.PutUint32(v, e.XResolution)
		be.PutUint32(v[4:], 1)
		ifd0 = append(ifd0, ifdEntry{tag: 0x011A, typ: typeRational, count: 1, value: v})
	}

	var gps []ifdEntry
	if e.GPS {
		gps = []ifdEntry{
			{tag: 0x0000, typ: typeByte, count: 4, value: []byte{2, 2, 0, 0}},
			{tag: 0x0001, typ: typeASCII, count: 2, value: []byte{'N', 0}},
		}
		// Pointer value is patched once the GPS IFD offset is known.
		ifd0 = append(ifd0, ifdEntry{tag: 0x8825, typ: typeLong, count: 1, value: make([]byte, 4)})
	}

	const headerSize = 8
	ifd0Size := 2 + 12*len(ifd0) + 4
	dataStart := headerSize + ifd0Size
	dataSize := 0
	for _, en := range ifd0 {
		if len(en.value) > 4 {
			dataSize += len(en.value)
		}
	}
	gpsOffset := dataStart + dataSize
	if e.GPS {
		be.PutUint32(ifd0[len(ifd0)-1].value, uint32(gpsOffset))
	}

	var buf bytes.Buffer
	buf.WriteString("MM")
	_ = binary.Write(&buf, be, uint16(42))
	_ = binary.Write(&buf, be, uint32(headerSize))

	writeIFD(&buf, ifd0, dataStart)
	for _, en := range ifd0 {
		if len(en.value) > 4 {
			buf.Write(en.value)
		}
	}
	if e.GPS {
		writeIFD(&buf, gps, gpsOffset+2+12*len(gps)+4)
	}
	return buf.Bytes()
}

// writeIFD writes the entry table; values longer than 4 bytes are laid out
// from dataOffset onward by the caller in entry order.
func writeIFD(buf *bytes.Buffer, entries []ifdEntry, dataOffset int) {
	be := binary.BigEndian
	_ = binary.Write(buf, be, uint16(len(entries)))
	next := dataOffset
	for _, en := range entries {
		_ = binary.Write(buf, be, en.tag)
		_ = binary.Write(buf, be, en.typ)
		_ = binary.Write(buf, be, en.count)
		if len(en.value) > 4 {
			_ = binary.Write(buf, be, uint32(next))
			next += len(en.value)
			continue
		}
		inline := make([]byte, 4)
		copy(inline, en.value)
		buf.Write(inline)
	}
	_ = binary.Write(buf, be, uint32(0))
}
