package types

import (
	"fmt"
	"math"
)

// RelativePoint is a drop location expressed as percentages [0,100] of the
// scene's original content box, not of the padded square.
type RelativePoint struct {
	XPercent float64 `json:"xPercent"`
	YPercent float64 `json:"yPercent"`
}

// Clamp returns the point with both axes limited to [0,100]. NaN becomes 0.
func (p RelativePoint) Clamp() RelativePoint {
	return RelativePoint{XPercent: clampPercent(p.XPercent), YPercent: clampPercent(p.YPercent)}
}

// Validate reports whether both axes are finite and inside [0,100].
func (p RelativePoint) Validate() error {
	for _, v := range []float64{p.XPercent, p.YPercent} {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("%w: relative point (%g, %g) outside [0,100]", ErrPipeline, p.XPercent, p.YPercent)
		}
	}
	return nil
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// MappedPoint is a pixel coordinate on a normalized square canvas.
type MappedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ImageData is an encoded image buffer with its MIME type.
type ImageData struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mimeType"`
}

// Empty reports whether the buffer holds no bytes.
func (d ImageData) Empty() bool {
	return len(d.Data) == 0
}

// DataURL renders the buffer as a base64 data URL.
func (d ImageData) DataURL() string {
	if d.Empty() {
		return ""
	}
	return EncodeDataURL(d.MimeType, d.Data)
}

// Part is one piece of a model response: text, an inline image, or both.
type Part struct {
	Text  string     `json:"text,omitempty"`
	Image *ImageData `json:"image,omitempty"`
}

// CompositionResult is the output of one successful pipeline run.
type CompositionResult struct {
	FinalImage  ImageData `json:"-"`
	DebugImage  ImageData `json:"-"`
	FinalPrompt string    `json:"finalPrompt"`
}

// FinalImageURL returns the final composite as a data URL.
func (r *CompositionResult) FinalImageURL() string {
	return r.FinalImage.DataURL()
}

// DebugImageURL returns the marked scene as a data URL.
func (r *CompositionResult) DebugImageURL() string {
	return r.DebugImage.DataURL()
}
