package processing

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-fusion/pkg/types"
)

// Marker defaults: a red dot sized relative to the canvas.
const (
	DefaultMarkerRadiusRatio = 0.015
	DefaultMarkerMinRadius   = 2.0
)

// MarkerColor is the fill of the placement marker
var MarkerColor = color.NRGBA{255, 0, 0, 255}

// MarkerStyle controls the marker radius
type MarkerStyle struct {
	RadiusRatio float64
	MinRadius   float64
	Color       color.NRGBA
}

// DefaultMarkerStyle returns the standard red marker
func DefaultMarkerStyle() MarkerStyle {
	return MarkerStyle{
		RadiusRatio: DefaultMarkerRadiusRatio,
		MinRadius:   DefaultMarkerMinRadius,
		Color:       MarkerColor,
	}
}

// Radius returns the marker radius for a w×h canvas
func (s MarkerStyle) Radius(w, h int) float64 {
	return math.Max(s.MinRadius, s.RadiusRatio*float64(minInt(w, h)))
}

// DrawMarker returns a copy of n with a filled circle at pt. Points near or
// past the edge are clipped instead of failing.
func (p *Processor) DrawMarker(n *NormalizedImage, pt types.MappedPoint, style MarkerStyle) (*NormalizedImage, error) {
	marked := imaging.Clone(n.Image)
	b := marked.Bounds()
	fillCircle(marked, pt.X, pt.Y, style.Radius(b.Dx(), b.Dy()), style.Color)

	encoded, err := p.EncodeJPEG(marked)
	if err != nil {
		return nil, err
	}

	out := *n
	out.Image = marked
	out.Encoded = encoded
	return &out, nil
}

// fillCircle paints every pixel whose center lies within r of (cx, cy)
func fillCircle(img *image.NRGBA, cx, cy, r float64, c color.NRGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	x0 := clampInt(int(math.Floor(cx-r)), 0, w)
	x1 := clampInt(int(math.Ceil(cx+r))+1, 0, w)
	y0 := clampInt(int(math.Floor(cy-r)), 0, h)
	y1 := clampInt(int(math.Ceil(cy+r))+1, 0, h)
	r2 := r * r

	for y := y0; y < y1; y++ {
		dy := float64(y) + 0.5 - cy
		i := y*img.Stride + x0*4
		for x := x0; x < x1; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				img.Pix[i+0] = c.R
				img.Pix[i+1] = c.G
				img.Pix[i+2] = c.B
				img.Pix[i+3] = c.A
			}
			i += 4
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
