// Package metadata decodes EXIF from photo originals and strips location
// data from it.
package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// DefaultOrientation is EXIF orientation 1: rows top to bottom, columns
// left to right.
const DefaultOrientation = 1

var locationKey = regexp.MustCompile(`(?i)gps|location`)

// Result is the sanitized EXIF of one image.
type Result struct {
	Fields      map[string]any
	Orientation int
}

// Empty returns the result used when an image carries no readable EXIF.
func Empty() Result {
	return Result{Fields: map[string]any{}, Orientation: DefaultOrientation}
}

// JSON encodes the sanitized fields.
func (r Result) JSON() ([]byte, error) {
	if r.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Fields)
}

// Read decodes the EXIF block of data and sanitizes it. On error the
// returned Result is Empty, so callers may log the error and carry on.
func Read(data []byte) (res Result, err error) {
	// goexif panics on some truncated IFDs.
	defer func() {
		if r := recover(); r != nil {
			res, err = Empty(), fmt.Errorf("failed to decode exif: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return Empty(), fmt.Errorf("failed to decode exif: %w", err)
	}

	w := &fieldWalker{fields: make(map[string]any)}
	if err := x.Walk(w); err != nil {
		return Empty(), fmt.Errorf("failed to walk exif: %w", err)
	}

	res = Result{Fields: Sanitize(w.fields), Orientation: DefaultOrientation}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			res.Orientation = v
		}
	}
	return res, nil
}

type fieldWalker struct {
	fields map[string]any
}

func (w *fieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if v, ok := tagValue(tag); ok {
		w.fields[string(name)] = v
	}
	return nil
}

func tagValue(tag *tiff.Tag) (any, bool) {
	n := int(tag.Count)
	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil, false
		}
		return strings.TrimRight(s, "\x00 "), true
	case tiff.IntVal:
		return collect(n, func(i int) (any, error) { return tag.Int64(i) })
	case tiff.RatVal:
		return collect(n, func(i int) (any, error) {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return nil, err
			}
			if den == 0 {
				return nil, fmt.Errorf("zero denominator")
			}
			return float64(num) / float64(den), nil
		})
	case tiff.FloatVal:
		return collect(n, func(i int) (any, error) { return tag.Float(i) })
	default:
		// Undefined payloads such as MakerNote are kept as raw bytes.
		return append([]byte(nil), tag.Val...), true
	}
}

func collect(n int, at func(int) (any, error)) (any, bool) {
	if n == 0 {
		return nil, false
	}
	values := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := at(i)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	if n == 1 {
		return values[0], true
	}
	return values, true
}

// Sanitize returns a copy of fields without location data: every key
// matching gps or location (case-insensitive) is dropped at any depth.
// Everything else, maker notes included, passes through.
func Sanitize(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if locationKey.MatchString(k) {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
