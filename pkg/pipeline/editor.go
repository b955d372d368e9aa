package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/menta2k/image-fusion/pkg/client"
	"github.com/menta2k/image-fusion/pkg/types"
)

// EditorOptions configures an Editor
type EditorOptions struct {
	Composition client.CompositionService
	// Zero disables the timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Editor sends one or more images with a free-form instruction to the image
// model and returns whatever parts it answers with. Images are passed as-is,
// without normalization or cropping.
type Editor struct {
	composition client.CompositionService
	timeout     time.Duration
	logger      *slog.Logger
}

// NewEditor creates an editor. A composition service is required.
func NewEditor(opts EditorOptions) (*Editor, error) {
	if opts.Composition == nil {
		return nil, errors.New("composition service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Editor{composition: opts.Composition, timeout: opts.Timeout, logger: logger}, nil
}

// Edit runs a single edit request. A cancelled ctx yields an error matching
// types.ErrAborted; an empty response is a *types.GenerationError.
func (e *Editor) Edit(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.Abort(err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: an edit instruction is required", types.ErrPipeline)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required for editing", types.ErrPipeline)
	}
	for i, img := range images {
		if img.Empty() {
			return nil, fmt.Errorf("%w: image %d is empty", types.ErrDecode, i+1)
		}
	}

	started := time.Now()
	editCtx, cancel := withOptionalTimeout(ctx, e.timeout)
	parts, err := e.composition.Compose(editCtx, prompt, images)
	cancel()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, types.Abort(ctxErr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && e.timeout > 0 {
			err = fmt.Errorf("edit timed out after %s: %w", e.timeout, err)
		}
		e.logger.Error("edit failed", "images", len(images), "err", err)
		return nil, err
	}
	if len(parts) == 0 {
		return nil, &types.GenerationError{}
	}

	e.logger.Info("edit finished",
		"duration", time.Since(started).Round(time.Millisecond),
		"images", len(images), "parts", len(parts))
	return parts, nil
}
