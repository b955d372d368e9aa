package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-fusion/pkg/types"
)

// Default encoding parameters for intermediate images sent to the models.
const (
	DefaultQuality  = 95
	DefaultMimeType = "image/jpeg"
)

// Processor decodes, normalizes, marks and encodes images
type Processor struct {
	quality    int
	httpClient *http.Client
}

// Options configures a Processor
type Options struct {
	// Quality is the JPEG quality used for every re-encoded intermediate.
	Quality    int
	HTTPClient *http.Client
}

// NewProcessor creates a new image processor with default options
func NewProcessor() *Processor {
	return NewProcessorWithOptions(Options{})
}

// NewProcessorWithOptions creates a processor with custom options
func NewProcessorWithOptions(opts Options) *Processor {
	quality := opts.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Processor{quality: quality, httpClient: httpClient}
}

// Quality returns the JPEG quality used for re-encoding
func (p *Processor) Quality() int {
	return p.quality
}

// Decode decodes PNG, JPEG, WebP, BMP or TIFF bytes, honoring EXIF orientation.
// Undecodable data and zero-sized images fail with types.ErrDecode.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", types.ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// Fallback: libwebp handles a few encodings x/image/webp rejects
		webpImg, webpErr := webp.Decode(bytes.NewReader(data))
		if webpErr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrDecode, err)
		}
		img = webpImg
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has zero dimensions %dx%d", types.ErrDecode, b.Dx(), b.Dy())
	}
	return img, nil
}

// LoadImage reads and decodes an image file
func (p *Processor) LoadImage(path string) (types.ImageData, image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.ImageData{}, nil, fmt.Errorf("failed to read image file: %w", err)
	}
	img, err := p.Decode(data)
	if err != nil {
		return types.ImageData{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return types.ImageData{Data: data, MimeType: DetectMimeType(data)}, img, nil
}

// LoadImageFromURL downloads an image over http(s). Cancelling ctx aborts the download.
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (types.ImageData, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return types.ImageData{}, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.ImageData{}, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return types.ImageData{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Image-Fusion/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.ImageData{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.ImageData{}, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return types.ImageData{}, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.ImageData{}, fmt.Errorf("failed to read image data: %v", err)
	}
	return types.ImageData{Data: data, MimeType: DetectMimeType(data)}, nil
}

// LoadSource loads image bytes from either a file path or URL
func (p *Processor) LoadSource(ctx context.Context, source string) (types.ImageData, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return types.ImageData{}, fmt.Errorf("failed to read image file: %w", err)
	}
	return types.ImageData{Data: data, MimeType: DetectMimeType(data)}, nil
}

// DetectMimeType sniffs an image MIME type, defaulting to JPEG
func DetectMimeType(data []byte) string {
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !strings.HasPrefix(mime, "image/") {
		return DefaultMimeType
	}
	return mime
}

// EncodeJPEG encodes an image as JPEG at the processor's quality
func (p *Processor) EncodeJPEG(img image.Image) (types.ImageData, error) {
	return Encode(img, "jpg", p.quality, false)
}

// Encode encodes img as jpg, png or webp
func Encode(img image.Image, format string, quality int, lossless bool) (types.ImageData, error) {
	var buf bytes.Buffer
	var mime string

	switch strings.ToLower(format) {
	case "webp":
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return types.ImageData{}, fmt.Errorf("%w: webp encode: %v", types.ErrRendering, err)
		}
		mime = "image/webp"
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return types.ImageData{}, fmt.Errorf("%w: png encode: %v", types.ErrRendering, err)
		}
		mime = "image/png"
	default: // jpg/jpeg
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return types.ImageData{}, fmt.Errorf("%w: jpeg encode: %v", types.ErrRendering, err)
		}
		mime = DefaultMimeType
	}
	return types.ImageData{Data: buf.Bytes(), MimeType: mime}, nil
}

// ExtensionFor returns the file extension for a MIME type
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpeg"
	}
}
