// Package imagefusion places a product photo into a scene photo at a chosen
// point using a generative image model.
//
// A run normalizes both images onto a square canvas, marks the chosen point
// on a copy of the scene, asks a vision model to describe what lies under the
// marker, then asks an image model to compose the product into the clean
// scene using that description. The generated square is cropped back to the
// scene's aspect ratio.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//
//		imagefusion "github.com/menta2k/image-fusion"
//		"github.com/menta2k/image-fusion/pkg/gemini"
//		"github.com/menta2k/image-fusion/pkg/types"
//	)
//
//	func main() {
//		gem := gemini.New(gemini.Options{APIKey: "..."})
//		fusion, err := imagefusion.New(gem, gem)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		point := types.RelativePoint{XPercent: 40, YPercent: 70}
//		res, err := fusion.Compose(context.Background(), "lamp.png", "living-room.jpg", point, nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if _, err := fusion.SaveResult(res, "./output"); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
// 1. Processing (pkg/processing): decoding, normalization, the marker and encoding
// 2. Geometry (pkg/geometry): the content box shared by normalization, mapping and cropping
// 3. Placement (pkg/placement): the description and composition prompts
// 4. Pipeline (pkg/pipeline): stage orchestration, progress and single-flight runs
// 5. Backends (pkg/gemini, pkg/ollama, pkg/llamacpp): model clients
package imagefusion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/menta2k/image-fusion/internal/config"
	"github.com/menta2k/image-fusion/internal/httpclient"
	"github.com/menta2k/image-fusion/pkg/client"
	"github.com/menta2k/image-fusion/pkg/cropper"
	"github.com/menta2k/image-fusion/pkg/gemini"
	"github.com/menta2k/image-fusion/pkg/llamacpp"
	"github.com/menta2k/image-fusion/pkg/ollama"
	"github.com/menta2k/image-fusion/pkg/pipeline"
	"github.com/menta2k/image-fusion/pkg/processing"
	"github.com/menta2k/image-fusion/pkg/result"
	"github.com/menta2k/image-fusion/pkg/types"
)

// Version of the image fusion library
const Version = "1.0.0"

// ImageFusion provides a high-level interface for compositing images
type ImageFusion struct {
	processor *processing.Processor
	runner    *pipeline.Runner
	editor    *pipeline.Editor
	dimension int
}

// New creates an ImageFusion with default pipeline settings. description may be nil.
func New(composition client.CompositionService, description client.DescriptionService) (*ImageFusion, error) {
	return NewWithOptions(pipeline.Options{
		Composition: composition,
		Description: description,
	})
}

// NewWithOptions creates an ImageFusion with custom pipeline options
func NewWithOptions(opts pipeline.Options) (*ImageFusion, error) {
	if opts.Processor == nil {
		opts.Processor = processing.NewProcessor()
	}
	orch, err := pipeline.New(opts)
	if err != nil {
		return nil, err
	}
	editor, err := pipeline.NewEditor(pipeline.EditorOptions{
		Composition: opts.Composition,
		Timeout:     opts.ComposeTimeout,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &ImageFusion{
		processor: opts.Processor,
		runner:    pipeline.NewRunner(orch),
		editor:    editor,
		dimension: orch.Dimension(),
	}, nil
}

// NewFromConfig wires the Gemini composition backend and the configured
// description backend.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*ImageFusion, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.HTTP.PreferIPv4,
		Timeout:    cfg.HTTP.Timeout(),
	})

	gem := gemini.New(gemini.Options{
		APIKey:           cfg.Gemini.APIKey,
		BaseURL:          cfg.Gemini.BaseURL,
		APIVersion:       cfg.Gemini.APIVersion,
		DescriptionModel: cfg.Gemini.DescriptionModel,
		CompositionModel: cfg.Gemini.CompositionModel,
		HTTPClient:       httpClient,
		Logger:           logger,
	})

	description, err := newDescriptionService(cfg.Backend, gem, httpClient)
	if err != nil {
		return nil, err
	}

	marker := processing.DefaultMarkerStyle()
	marker.RadiusRatio = cfg.Pipeline.MarkerRadiusRatio
	marker.MinRadius = cfg.Pipeline.MarkerMinRadius

	return NewWithOptions(pipeline.Options{
		Processor: processing.NewProcessorWithOptions(processing.Options{
			Quality:    cfg.Pipeline.Quality,
			HTTPClient: httpClient,
		}),
		Cropper: cropper.NewWithConfig(cropper.CropConfig{
			RescaleSquare:       cfg.Pipeline.RescaleSquare,
			RestoreOriginalSize: cfg.Pipeline.RestoreOriginalSize,
		}),
		Description:       description,
		Composition:       gem,
		Dimension:         cfg.Pipeline.Dimension,
		MarkerStyle:       marker,
		DescriptionPrompt: cfg.Pipeline.DescriptionPrompt,
		Fallback:          cfg.Pipeline.FallbackDescription,
		DescribeTimeout:   cfg.Pipeline.DescribeTimeout(),
		ComposeTimeout:    cfg.Pipeline.ComposeTimeout(),
		OutputFormat:      cfg.Output.Format,
		OutputQuality:     cfg.Output.Quality,
		Lossless:          cfg.Output.Lossless,
		Logger:            logger,
	})
}

func newDescriptionService(cfg config.BackendConfig, gem *gemini.Client, httpClient *http.Client) (client.DescriptionService, error) {
	switch cfg.Describer {
	case "", "gemini":
		return gem, nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		c, err := ollama.NewClient(url, cfg.Model, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		c, err := llamacpp.NewClient(cfg.URL, cfg.Model, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown describer %q", cfg.Describer)
}

// Compose runs the pipeline on a product and a scene given as file paths or
// http(s) URLs. onProgress may be nil.
func (f *ImageFusion) Compose(ctx context.Context, productSource, sceneSource string, point types.RelativePoint, onProgress pipeline.ProgressFunc) (*types.CompositionResult, error) {
	product, err := f.processor.LoadSource(ctx, productSource)
	if err != nil {
		return nil, fmt.Errorf("failed to load product image: %w", err)
	}
	scene, err := f.processor.LoadSource(ctx, sceneSource)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene image: %w", err)
	}
	return f.run(ctx, product, scene, point, onProgress)
}

// ComposeBytes runs the pipeline on encoded image bytes
func (f *ImageFusion) ComposeBytes(ctx context.Context, product, scene []byte, point types.RelativePoint, onProgress pipeline.ProgressFunc) (*types.CompositionResult, error) {
	return f.run(ctx,
		types.ImageData{Data: product, MimeType: processing.DetectMimeType(product)},
		types.ImageData{Data: scene, MimeType: processing.DetectMimeType(scene)},
		point, onProgress)
}

func (f *ImageFusion) run(ctx context.Context, product, scene types.ImageData, point types.RelativePoint, onProgress pipeline.ProgressFunc) (*types.CompositionResult, error) {
	return f.runner.Run(ctx, pipeline.Request{Product: product, Scene: scene, Point: point}, onProgress)
}

// Edit sends the images given as file paths or http(s) URLs to the image
// model together with a free-form instruction.
func (f *ImageFusion) Edit(ctx context.Context, prompt string, sources []string) ([]types.Part, error) {
	images := make([]types.ImageData, 0, len(sources))
	for i, src := range sources {
		img, err := f.processor.LoadSource(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("failed to load image %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return f.editor.Edit(ctx, prompt, images)
}

// EditBytes is Edit for encoded image bytes
func (f *ImageFusion) EditBytes(ctx context.Context, prompt string, images [][]byte) ([]types.Part, error) {
	data := make([]types.ImageData, 0, len(images))
	for _, img := range images {
		data = append(data, types.ImageData{Data: img, MimeType: processing.DetectMimeType(img)})
	}
	return f.editor.Edit(ctx, prompt, data)
}

// SaveParts writes the images and text of an edit response to dir
func (f *ImageFusion) SaveParts(parts []types.Part, dir string) ([]string, error) {
	return result.NewSaver(dir).SaveParts(parts)
}

// SaveResult writes the final image, debug image and prompt to dir
func (f *ImageFusion) SaveResult(r *types.CompositionResult, dir string) (result.SavedFiles, error) {
	return result.NewSaver(dir).Save(r)
}

// Progress returns the stage statuses of the current or last run
func (f *ImageFusion) Progress() []pipeline.StageProgress {
	return f.runner.Progress()
}

// Busy reports whether a composition is in flight
func (f *ImageFusion) Busy() bool {
	return f.runner.Busy()
}

// Dimension returns the normalized canvas side
func (f *ImageFusion) Dimension() int {
	return f.dimension
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
