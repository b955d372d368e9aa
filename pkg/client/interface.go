package client

import (
	"context"

	"github.com/menta2k/image-fusion/pkg/types"
)

// DescriptionService turns an image plus an instruction into text.
type DescriptionService interface {
	Describe(ctx context.Context, prompt string, img types.ImageData) (string, error)
}

// CompositionService sends images and a prompt to an image-capable model and
// returns every response part, text and inline images alike.
type CompositionService interface {
	Compose(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error)
}

// DescriptionFunc adapts a function to DescriptionService.
type DescriptionFunc func(ctx context.Context, prompt string, img types.ImageData) (string, error)

func (f DescriptionFunc) Describe(ctx context.Context, prompt string, img types.ImageData) (string, error) {
	return f(ctx, prompt, img)
}

// CompositionFunc adapts a function to CompositionService.
type CompositionFunc func(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error)

func (f CompositionFunc) Compose(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error) {
	return f(ctx, prompt, images)
}
