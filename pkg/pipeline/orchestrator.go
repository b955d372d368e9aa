package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/image-fusion/pkg/client"
	"github.com/menta2k/image-fusion/pkg/cropper"
	"github.com/menta2k/image-fusion/pkg/placement"
	"github.com/menta2k/image-fusion/pkg/processing"
	"github.com/menta2k/image-fusion/pkg/result"
	"github.com/menta2k/image-fusion/pkg/types"
)

// DefaultDimension is the side of the square canvas both images are normalized to.
const DefaultDimension = 1024

// ProgressFunc receives each stage as the pipeline enters it.
type ProgressFunc func(stage types.Stage)

// Request is the input of one pipeline run. Product and Scene hold encoded
// image bytes; Point is relative to the scene's unscaled display.
type Request struct {
	Product types.ImageData
	Scene   types.ImageData
	Point   types.RelativePoint
}

// Options configures an Orchestrator
type Options struct {
	Processor   *processing.Processor
	Cropper     *cropper.Cropper
	Description client.DescriptionService
	Composition client.CompositionService

	// Dimension is the normalized canvas side, DefaultDimension when zero.
	Dimension   int
	MarkerStyle processing.MarkerStyle
	// DescriptionPrompt overrides the location description instruction.
	DescriptionPrompt string
	// Fallback replaces a failed location description.
	Fallback string

	// Zero disables the per-stage timeout.
	DescribeTimeout time.Duration
	ComposeTimeout  time.Duration

	// OutputFormat is jpg, png or webp.
	OutputFormat  string
	OutputQuality int
	Lossless      bool

	Logger *slog.Logger
}

// Orchestrator runs the compositing stages in order
type Orchestrator struct {
	processor   *processing.Processor
	cropper     *cropper.Cropper
	describer   *placement.Describer
	composition client.CompositionService

	dim             int
	marker          processing.MarkerStyle
	describeTimeout time.Duration
	composeTimeout  time.Duration

	outputFormat  string
	outputQuality int
	lossless      bool

	logger *slog.Logger
}

// New creates an orchestrator. A composition service is required; without a
// description service every run uses the fallback description.
func New(opts Options) (*Orchestrator, error) {
	if opts.Composition == nil {
		return nil, errors.New("composition service is required")
	}
	if opts.Dimension < 0 {
		return nil, fmt.Errorf("invalid dimension %d", opts.Dimension)
	}

	o := &Orchestrator{
		processor:       opts.Processor,
		cropper:         opts.Cropper,
		composition:     opts.Composition,
		dim:             opts.Dimension,
		marker:          opts.MarkerStyle,
		describeTimeout: opts.DescribeTimeout,
		composeTimeout:  opts.ComposeTimeout,
		outputFormat:    opts.OutputFormat,
		outputQuality:   opts.OutputQuality,
		lossless:        opts.Lossless,
		logger:          opts.Logger,
	}
	if o.processor == nil {
		o.processor = processing.NewProcessor()
	}
	if o.cropper == nil {
		o.cropper = cropper.New()
	}
	if o.dim == 0 {
		o.dim = DefaultDimension
	}
	if o.marker.RadiusRatio <= 0 && o.marker.MinRadius <= 0 {
		o.marker = processing.DefaultMarkerStyle()
	}
	if o.marker.Color.A == 0 {
		o.marker.Color = processing.MarkerColor
	}
	if o.outputFormat == "" {
		o.outputFormat = "jpg"
	}
	if o.outputQuality < 1 || o.outputQuality > 100 {
		o.outputQuality = o.processor.Quality()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	o.describer = placement.NewDescriber(opts.Description,
		placement.WithPrompt(opts.DescriptionPrompt),
		placement.WithFallback(opts.Fallback))
	return o, nil
}

// Dimension returns the normalized canvas side
func (o *Orchestrator) Dimension() int {
	return o.dim
}

// Run executes one composition. onProgress may be nil.
//
// Failures are returned as *types.StageError. A cancelled ctx is reported as
// an error matching types.ErrAborted no matter which stage observed it.
func (o *Orchestrator) Run(ctx context.Context, req Request, onProgress ProgressFunc) (*types.CompositionResult, error) {
	if onProgress == nil {
		onProgress = func(types.Stage) {}
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Abort(err)
	}
	if err := req.Point.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	run := &runState{o: o, ctx: ctx, onProgress: onProgress}

	// RESIZING
	if err := run.enter(types.StageResizing); err != nil {
		return nil, err
	}
	var product, scene *processing.NormalizedImage
	var g errgroup.Group
	g.Go(func() error {
		n, err := o.processor.NormalizeBytes(req.Product.Data, o.dim)
		if err != nil {
			return fmt.Errorf("product image: %w", err)
		}
		product = n
		return nil
	})
	g.Go(func() error {
		n, err := o.processor.NormalizeBytes(req.Scene.Data, o.dim)
		if err != nil {
			return fmt.Errorf("scene image: %w", err)
		}
		scene = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, run.fail(err)
	}

	// MARKING
	if err := run.enter(types.StageMarking); err != nil {
		return nil, err
	}
	mapped := scene.Box.Map(req.Point)
	marked, err := o.processor.DrawMarker(scene, mapped, o.marker)
	if err != nil {
		return nil, run.fail(err)
	}
	debug := marked.Encoded
	run.debug = &debug
	o.logger.Debug("marker drawn",
		"x_percent", req.Point.XPercent, "y_percent", req.Point.YPercent,
		"x", mapped.X, "y", mapped.Y, "box", scene.Box)

	// DESCRIBING
	if err := run.enter(types.StageDescribing); err != nil {
		return nil, err
	}
	describeCtx, cancelDescribe := withOptionalTimeout(ctx, o.describeTimeout)
	description, descErr := o.describer.Describe(describeCtx, debug)
	cancelDescribe()
	if err := ctx.Err(); err != nil {
		return nil, types.Abort(err)
	}
	if descErr != nil {
		o.logger.Warn("location description failed, using fallback", "err", descErr)
	}

	// COMPOSING
	if err := run.enter(types.StageComposing); err != nil {
		return nil, err
	}
	prompt := placement.BuildCompositionPrompt(description)
	composeCtx, cancelCompose := withOptionalTimeout(ctx, o.composeTimeout)
	parts, err := o.composition.Compose(composeCtx, prompt, []types.ImageData{product.Encoded, scene.Encoded})
	cancelCompose()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, types.Abort(ctxErr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && o.composeTimeout > 0 {
			err = fmt.Errorf("composition timed out after %s: %w", o.composeTimeout, err)
		}
		return nil, run.fail(err)
	}
	generated, err := firstImage(parts)
	if err != nil {
		return nil, run.fail(err)
	}

	// CROPPING
	if err := run.enter(types.StageCropping); err != nil {
		return nil, err
	}
	genImg, err := o.processor.Decode(generated.Data)
	if err != nil {
		return nil, run.fail(fmt.Errorf("generated image: %w", err))
	}
	cropped, err := o.cropper.CropToOriginalAspect(genImg, scene.OriginalWidth, scene.OriginalHeight, o.dim)
	if err != nil {
		return nil, run.fail(err)
	}
	final, err := processing.Encode(cropped.Image, o.outputFormat, o.outputQuality, o.lossless)
	if err != nil {
		return nil, run.fail(err)
	}

	onProgress(types.StageDone)
	o.logger.Info("composition finished",
		"duration", time.Since(started).Round(time.Millisecond),
		"width", cropped.Image.Bounds().Dx(), "height", cropped.Image.Bounds().Dy(),
		"rescaled", cropped.Rescaled, "fallback_description", descErr != nil)

	return result.Package(&debug, &final, prompt)
}

type runState struct {
	o          *Orchestrator
	ctx        context.Context
	onProgress ProgressFunc
	stage      types.Stage
	debug      *types.ImageData
}

func (r *runState) enter(stage types.Stage) error {
	if err := r.ctx.Err(); err != nil {
		r.o.logger.Debug("run aborted", "stage", stage)
		return types.Abort(err)
	}
	r.stage = stage
	r.o.logger.Debug("stage started", "stage", stage)
	r.onProgress(stage)
	return nil
}

func (r *runState) fail(err error) error {
	r.o.logger.Error("composition failed", "stage", r.stage, "err", err)
	return &types.StageError{Stage: r.stage, Err: err, Debug: r.debug}
}

// firstImage returns the first inline image of a composition response. A
// response without one becomes a *types.GenerationError carrying the text.
func firstImage(parts []types.Part) (types.ImageData, error) {
	var texts []string
	for _, p := range parts {
		if p.Image != nil && !p.Image.Empty() {
			return *p.Image, nil
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return types.ImageData{}, &types.GenerationError{ModelText: strings.Join(texts, "\n")}
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
