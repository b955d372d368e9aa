package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/image-fusion/pkg/types"
)

func TestFitExample(t *testing.T) {
	box, err := Fit(1600, 900, 1024)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	want := ContentBox{X: 0, Y: 224, Width: 1024, Height: 576}
	if box != want {
		t.Errorf("Expected %+v, got %+v", want, box)
	}
}

func TestFitOrientations(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          ContentBox
	}{
		{"square", 512, 512, ContentBox{0, 0, 1024, 1024}},
		{"portrait", 600, 1200, ContentBox{256, 0, 512, 1024}},
		{"landscape", 400, 300, ContentBox{0, 128, 1024, 768}},
		{"tiny", 1, 1, ContentBox{0, 0, 1024, 1024}},
		{"extreme landscape", 100000, 1, ContentBox{0, 511, 1024, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, err := Fit(tt.width, tt.height, 1024)
			if err != nil {
				t.Fatalf("Fit failed: %v", err)
			}
			if box != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, box)
			}
		})
	}
}

func TestFitInvariant(t *testing.T) {
	dims := []int{1, 7, 64, 513, 1024}
	sizes := []int{1, 2, 3, 17, 99, 300, 641, 900, 1023, 1600, 4032}

	for _, d := range dims {
		for _, w := range sizes {
			for _, h := range sizes {
				box, err := Fit(w, h, d)
				if err != nil {
					t.Fatalf("Fit(%d, %d, %d) failed: %v", w, h, d, err)
				}
				if box.X < 0 || box.Y < 0 || box.X+box.Width > d || box.Y+box.Height > d {
					t.Fatalf("Fit(%d, %d, %d) = %+v escapes the canvas", w, h, d, box)
				}
				if box.Width != d && box.Height != d {
					t.Fatalf("Fit(%d, %d, %d) = %+v touches no canvas edge", w, h, d, box)
				}

				// one rounded side may be off by at most one pixel
				var expected float64
				if w > h {
					expected = float64(d) * float64(h) / float64(w)
					if expected >= 1 && math.Abs(float64(box.Height)-expected) > 1 {
						t.Errorf("Fit(%d, %d, %d) height %d, expected ~%.2f", w, h, d, box.Height, expected)
					}
				} else {
					expected = float64(d) * float64(w) / float64(h)
					if expected >= 1 && math.Abs(float64(box.Width)-expected) > 1 {
						t.Errorf("Fit(%d, %d, %d) width %d, expected ~%.2f", w, h, d, box.Width, expected)
					}
				}

				// centered to within a pixel
				if diff := (d - box.Width - box.X) - box.X; diff < 0 || diff > 1 {
					t.Errorf("Fit(%d, %d, %d) = %+v is not centered horizontally", w, h, d, box)
				}
				if diff := (d - box.Height - box.Y) - box.Y; diff < 0 || diff > 1 {
					t.Errorf("Fit(%d, %d, %d) = %+v is not centered vertically", w, h, d, box)
				}
			}
		}
	}
}

func TestFitInvalid(t *testing.T) {
	if _, err := Fit(0, 10, 1024); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected ErrDecode for zero width, got %v", err)
	}
	if _, err := Fit(10, -1, 1024); !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected ErrDecode for negative height, got %v", err)
	}
	if _, err := Fit(10, 10, 0); !errors.Is(err, types.ErrPipeline) {
		t.Errorf("Expected ErrPipeline for zero dimension, got %v", err)
	}
}

func TestToCanvasPixelBoundaries(t *testing.T) {
	box, _ := Fit(1600, 900, 1024)

	origin, err := ToCanvasPixel(types.RelativePoint{XPercent: 0, YPercent: 0}, 1600, 900, 1024)
	if err != nil {
		t.Fatalf("ToCanvasPixel failed: %v", err)
	}
	if origin.X != float64(box.X) || origin.Y != float64(box.Y) {
		t.Errorf("Expected (0,0) at (%d,%d), got (%v,%v)", box.X, box.Y, origin.X, origin.Y)
	}

	corner, _ := ToCanvasPixel(types.RelativePoint{XPercent: 100, YPercent: 100}, 1600, 900, 1024)
	if corner.X != float64(box.X+box.Width) || corner.Y != float64(box.Y+box.Height) {
		t.Errorf("Expected (100,100) at (%d,%d), got (%v,%v)",
			box.X+box.Width, box.Y+box.Height, corner.X, corner.Y)
	}

	center, _ := ToCanvasPixel(types.RelativePoint{XPercent: 50, YPercent: 50}, 1600, 900, 1024)
	if center.X != 512 || center.Y != 512 {
		t.Errorf("Expected center at (512,512), got (%v,%v)", center.X, center.Y)
	}
}

func TestToCanvasPixelPortraitBoundary(t *testing.T) {
	// padding is on the left and right, so x=0 must land on the content edge
	p, err := ToCanvasPixel(types.RelativePoint{XPercent: 0, YPercent: 100}, 600, 1200, 1024)
	if err != nil {
		t.Fatalf("ToCanvasPixel failed: %v", err)
	}
	if p.X != 256 || p.Y != 1024 {
		t.Errorf("Expected (256,1024), got (%v,%v)", p.X, p.Y)
	}
}

func TestMappingRoundTrip(t *testing.T) {
	percents := []float64{0, 25, 50, 75, 100}
	sizes := [][2]int{{1600, 900}, {900, 1600}, {333, 777}, {1, 5}, {4032, 3024}, {512, 512}}

	for _, sz := range sizes {
		region, err := CropRegion(sz[0], sz[1], 1024)
		if err != nil {
			t.Fatalf("CropRegion failed: %v", err)
		}
		for _, px := range percents {
			for _, py := range percents {
				in := types.RelativePoint{XPercent: px, YPercent: py}
				mapped, err := ToCanvasPixel(in, sz[0], sz[1], 1024)
				if err != nil {
					t.Fatalf("ToCanvasPixel failed: %v", err)
				}
				out := region.Relative(mapped)
				if math.Abs(out.XPercent-px) > 1e-9 || math.Abs(out.YPercent-py) > 1e-9 {
					t.Errorf("%dx%d: %v -> %v -> %v", sz[0], sz[1], in, mapped, out)
				}
			}
		}
	}
}

func TestMapDoesNotClamp(t *testing.T) {
	box, _ := Fit(1600, 900, 1024)
	p := box.Map(types.RelativePoint{XPercent: 150, YPercent: -10})
	if p.X <= float64(box.X+box.Width) || p.Y >= float64(box.Y) {
		t.Errorf("Expected out-of-range input to map outside the box, got %+v", p)
	}
}

func BenchmarkFit(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Fit(1920, 1080, 1024)
	}
}
