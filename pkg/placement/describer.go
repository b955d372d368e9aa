package placement

import (
	"context"
	"errors"
	"strings"

	"github.com/menta2k/image-fusion/pkg/client"
	"github.com/menta2k/image-fusion/pkg/types"
)

// Describer asks a vision model for a semantic description of the marked location
type Describer struct {
	service  client.DescriptionService
	prompt   string
	fallback string
}

// Option configures a Describer
type Option func(*Describer)

// WithPrompt overrides DescriptionPrompt
func WithPrompt(prompt string) Option {
	return func(d *Describer) {
		if strings.TrimSpace(prompt) != "" {
			d.prompt = prompt
		}
	}
}

// WithFallback overrides FallbackDescription
func WithFallback(fallback string) Option {
	return func(d *Describer) {
		if strings.TrimSpace(fallback) != "" {
			d.fallback = fallback
		}
	}
}

// NewDescriber creates a describer backed by service. A nil service always
// yields the fallback.
func NewDescriber(service client.DescriptionService, opts ...Option) *Describer {
	d := &Describer{
		service:  service,
		prompt:   DescriptionPrompt,
		fallback: FallbackDescription,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fallback returns the phrase used when no description is available
func (d *Describer) Fallback() string {
	return d.fallback
}

// Describe always returns usable text. When the model call fails or replies
// with nothing, the fallback is returned together with a *types.DescriptionError.
func (d *Describer) Describe(ctx context.Context, marked types.ImageData) (string, error) {
	if d.service == nil {
		return d.fallback, &types.DescriptionError{Err: errors.New("no description backend configured")}
	}

	text, err := d.service.Describe(ctx, d.prompt, marked)
	if err != nil {
		return d.fallback, &types.DescriptionError{Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return d.fallback, &types.DescriptionError{Err: errors.New("empty description")}
	}
	return text, nil
}
