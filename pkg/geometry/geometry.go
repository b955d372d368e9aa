// Package geometry holds the content-box math shared by the normalizer, the
// coordinate mapper and the cropper. All three must agree on the same box,
// so it is computed in exactly one place.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/image-fusion/pkg/types"
)

// ContentBox is the sub-rectangle of a D×D padded square occupied by the
// letterboxed source image.
type ContentBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the box as an image.Rectangle on the padded canvas.
func (b ContentBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Fit computes the content box for an image of width×height scaled to fit a
// dim×dim square. Landscape images span the full width, portrait and square
// images the full height. Sizes round half away from zero and never drop
// below 1 px; offsets center the rounded size so X+Width and Y+Height never
// exceed dim.
func Fit(width, height, dim int) (ContentBox, error) {
	if width <= 0 || height <= 0 {
		return ContentBox{}, fmt.Errorf("%w: invalid image dimensions %dx%d", types.ErrDecode, width, height)
	}
	if dim <= 0 {
		return ContentBox{}, fmt.Errorf("%w: invalid target dimension %d", types.ErrPipeline, dim)
	}

	aspect := float64(width) / float64(height)
	var cw, ch int
	if aspect > 1 {
		cw = dim
		ch = roundSize(float64(dim)/aspect, dim)
	} else {
		ch = dim
		cw = roundSize(float64(dim)*aspect, dim)
	}

	return ContentBox{
		X:      (dim - cw) / 2,
		Y:      (dim - ch) / 2,
		Width:  cw,
		Height: ch,
	}, nil
}

func roundSize(v float64, dim int) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	if n > dim {
		return dim
	}
	return n
}

// ToCanvasPixel maps a relative point on the original image to a pixel on
// the padded square. The point is not clamped: callers pass values in
// [0,100], anything else lands outside the content box.
func ToCanvasPixel(p types.RelativePoint, originalWidth, originalHeight, dim int) (types.MappedPoint, error) {
	box, err := Fit(originalWidth, originalHeight, dim)
	if err != nil {
		return types.MappedPoint{}, err
	}
	return box.Map(p), nil
}

// Map converts a relative point into canvas pixels using this box.
func (b ContentBox) Map(p types.RelativePoint) types.MappedPoint {
	return types.MappedPoint{
		X: float64(b.X) + (p.XPercent/100)*float64(b.Width),
		Y: float64(b.Y) + (p.YPercent/100)*float64(b.Height),
	}
}

// Relative is the inverse of Map: it expresses a canvas pixel as a
// percentage of the content box.
func (b ContentBox) Relative(m types.MappedPoint) types.RelativePoint {
	return types.RelativePoint{
		XPercent: (m.X - float64(b.X)) / float64(b.Width) * 100,
		YPercent: (m.Y - float64(b.Y)) / float64(b.Height) * 100,
	}
}

// CropRegion returns the content box to cut out of a generated dim×dim image.
func CropRegion(originalWidth, originalHeight, dim int) (ContentBox, error) {
	return Fit(originalWidth, originalHeight, dim)
}
