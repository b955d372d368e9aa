package cropper

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-fusion/pkg/geometry"
	"github.com/menta2k/image-fusion/pkg/types"
)

// Cropper removes the letterbox padding from generated square images
type Cropper struct {
	config CropConfig
}

// CropConfig holds configuration for cropping
type CropConfig struct {
	// RescaleSquare resamples a square output of the wrong size to D×D
	// before cropping. Non-square output is always rejected.
	RescaleSquare bool
	// RestoreOriginalSize resamples the crop to the scene's original pixel size.
	RestoreOriginalSize bool
}

// New creates a new Cropper with default configuration
func New() *Cropper {
	return &Cropper{}
}

// NewWithConfig creates a new Cropper with custom configuration
func NewWithConfig(config CropConfig) *Cropper {
	return &Cropper{config: config}
}

// CropResult contains the result of a cropping operation
type CropResult struct {
	Image  image.Image
	Region geometry.ContentBox
	// Rescaled is set when the generated image had to be resampled to D×D.
	Rescaled bool
}

// CropToOriginalAspect cuts the content box for an originalWidth×originalHeight
// image out of a generated dim×dim square. The output matches the content box
// exactly unless RestoreOriginalSize is set.
func (c *Cropper) CropToOriginalAspect(generated image.Image, originalWidth, originalHeight, dim int) (CropResult, error) {
	if generated == nil {
		return CropResult{}, fmt.Errorf("%w: no generated image to crop", types.ErrPipeline)
	}
	region, err := geometry.CropRegion(originalWidth, originalHeight, dim)
	if err != nil {
		return CropResult{}, err
	}

	src, rescaled, err := c.ensureDimension(generated, dim)
	if err != nil {
		return CropResult{}, err
	}

	rect := region.Rect().Add(src.Bounds().Min)
	var out image.Image = imaging.Crop(src, rect)
	if c.config.RestoreOriginalSize && (region.Width != originalWidth || region.Height != originalHeight) {
		out = imaging.Resize(out, originalWidth, originalHeight, imaging.Lanczos)
	}

	return CropResult{Image: out, Region: region, Rescaled: rescaled}, nil
}

func (c *Cropper) ensureDimension(img image.Image, dim int) (image.Image, bool, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == dim && h == dim {
		return img, false, nil
	}
	if w == h && w > 0 && c.config.RescaleSquare {
		return imaging.Resize(img, dim, dim, imaging.Lanczos), true, nil
	}
	return nil, false, fmt.Errorf("%w: generated image is %dx%d, expected %dx%d", types.ErrPipeline, w, h, dim, dim)
}
