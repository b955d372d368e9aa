package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecode marks input bytes that cannot be decoded into an image.
	ErrDecode = errors.New("decode error")
	// ErrRendering marks a failure to draw or encode an off-screen image.
	ErrRendering = errors.New("rendering error")
	// ErrDescription marks a failed location description. It is never fatal.
	ErrDescription = errors.New("description error")
	// ErrGeneration marks a composition response without an image.
	ErrGeneration = errors.New("generation error")
	// ErrAborted marks a run cancelled by the caller.
	ErrAborted = errors.New("aborted by user")
	// ErrPipeline marks an internal contract violation between stages.
	ErrPipeline = errors.New("pipeline error")
	// ErrBusy is returned when a run is requested while another is in flight.
	ErrBusy = errors.New("a composition is already running")
)

// GenerationError reports that the model returned no image part.
type GenerationError struct {
	ModelText string
}

func (e *GenerationError) Error() string {
	text := strings.TrimSpace(e.ModelText)
	if text == "" {
		return "the AI model did not return an image, please try again"
	}
	return fmt.Sprintf("the AI model did not return an image; the model said: %s", text)
}

func (e *GenerationError) Unwrap() error { return ErrGeneration }

// DescriptionError wraps a failed description call.
type DescriptionError struct {
	Err error
}

func (e *DescriptionError) Error() string {
	if e.Err == nil {
		return ErrDescription.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDescription, e.Err)
}

func (e *DescriptionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDescription}
	}
	return []error{ErrDescription, e.Err}
}

// StageError is a fatal failure inside a pipeline stage. Debug holds the
// marked scene when the failure happened after marking.
type StageError struct {
	Stage Stage
	Err   error
	Debug *ImageData
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Abort builds the error returned for an observed cancellation.
func Abort(cause error) error {
	if cause == nil {
		return ErrAborted
	}
	return fmt.Errorf("%w: %w", ErrAborted, cause)
}

// IsAbort reports whether err is a user cancellation rather than a failure.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}
