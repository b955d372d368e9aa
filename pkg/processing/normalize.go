package processing

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-fusion/pkg/geometry"
	"github.com/menta2k/image-fusion/pkg/types"
)

// PaddingColor fills the area of a normalized canvas outside the content box.
var PaddingColor = color.NRGBA{0, 0, 0, 255}

// NormalizedImage is a dim×dim letterboxed copy of a source image.
type NormalizedImage struct {
	Image          *image.NRGBA
	Encoded        types.ImageData
	Box            geometry.ContentBox
	Dimension      int
	OriginalWidth  int
	OriginalHeight int
}

// Normalize scales img to fit a dim×dim opaque canvas, centered, and re-encodes
// it as JPEG so the models never see an alpha channel. The input is not modified.
func (p *Processor) Normalize(img image.Image, dim int) (*NormalizedImage, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", types.ErrDecode)
	}
	b := img.Bounds()
	box, err := geometry.Fit(b.Dx(), b.Dy(), dim)
	if err != nil {
		return nil, err
	}

	canvas := imaging.New(dim, dim, PaddingColor)
	var content image.Image = img
	if box.Width != b.Dx() || box.Height != b.Dy() {
		content = imaging.Resize(img, box.Width, box.Height, imaging.Lanczos)
	}
	// Overlay rather than Paste so transparent sources blend onto the padding color
	canvas = imaging.Overlay(canvas, content, image.Pt(box.X, box.Y), 1.0)

	encoded, err := p.EncodeJPEG(canvas)
	if err != nil {
		return nil, err
	}

	return &NormalizedImage{
		Image:          canvas,
		Encoded:        encoded,
		Box:            box,
		Dimension:      dim,
		OriginalWidth:  b.Dx(),
		OriginalHeight: b.Dy(),
	}, nil
}

// NormalizeBytes decodes data then normalizes it
func (p *Processor) NormalizeBytes(data []byte, dim int) (*NormalizedImage, error) {
	img, err := p.Decode(data)
	if err != nil {
		return nil, err
	}
	return p.Normalize(img, dim)
}
