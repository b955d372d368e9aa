package result

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/menta2k/image-fusion/internal/utils"
	"github.com/menta2k/image-fusion/pkg/processing"
	"github.com/menta2k/image-fusion/pkg/types"
)

// Labels of the two result parts.
const (
	DebugLabel        = "Debug View (with marker)"
	FinalLabel        = "Final Result"
	promptSeparator   = "|PROMPT|"
	DefaultFilePrefix = "image-fusion"
)

// Package assembles an immutable result. The final image is required.
func Package(debug, final *types.ImageData, prompt string) (*types.CompositionResult, error) {
	if final == nil || final.Empty() {
		return nil, fmt.Errorf("%w: no final image to package", types.ErrPipeline)
	}
	r := &types.CompositionResult{
		FinalImage:  cloneImage(*final),
		FinalPrompt: prompt,
	}
	if debug != nil {
		r.DebugImage = cloneImage(*debug)
	}
	return r, nil
}

// Parts returns the debug and final images as labelled parts. The debug
// label carries the prompt after a "|PROMPT|" separator.
func Parts(r *types.CompositionResult) []types.Part {
	if r == nil {
		return nil
	}
	debug := r.DebugImage
	final := r.FinalImage
	parts := make([]types.Part, 0, 2)
	if !debug.Empty() {
		parts = append(parts, types.Part{Text: DebugLabel + promptSeparator + r.FinalPrompt, Image: &debug})
	}
	parts = append(parts, types.Part{Text: FinalLabel, Image: &final})
	return parts
}

// SplitLabel separates a part label from an embedded prompt
func SplitLabel(text string) (label, prompt string) {
	label, prompt, _ = strings.Cut(text, promptSeparator)
	return label, prompt
}

// SavedFiles lists the paths written by Saver.Save
type SavedFiles struct {
	Final  string `json:"final"`
	Debug  string `json:"debug,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// Saver writes results to a directory as <prefix>-<unix-ms>.<ext> with
// -debug and -prompt.txt companions.
type Saver struct {
	dir    string
	prefix string
	now    func() time.Time
}

// NewSaver creates a saver for dir using DefaultFilePrefix
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir, prefix: DefaultFilePrefix, now: time.Now}
}

// Save writes the final image, the debug image and the prompt
func (s *Saver) Save(r *types.CompositionResult) (SavedFiles, error) {
	if r == nil || r.FinalImage.Empty() {
		return SavedFiles{}, fmt.Errorf("%w: nothing to save", types.ErrPipeline)
	}
	if err := utils.EnsureDir(s.dir); err != nil {
		return SavedFiles{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := utils.OutputBaseName(s.prefix, s.now())
	var saved SavedFiles

	saved.Final = utils.GenerateOutputFilename(s.dir, base, "", processing.ExtensionFor(r.FinalImage.MimeType))
	if err := os.WriteFile(saved.Final, r.FinalImage.Data, 0644); err != nil {
		return SavedFiles{}, fmt.Errorf("failed to write final image: %w", err)
	}

	if !r.DebugImage.Empty() {
		saved.Debug = utils.GenerateOutputFilename(s.dir, base, "-debug", processing.ExtensionFor(r.DebugImage.MimeType))
		if err := os.WriteFile(saved.Debug, r.DebugImage.Data, 0644); err != nil {
			return saved, fmt.Errorf("failed to write debug image: %w", err)
		}
	}

	if r.FinalPrompt != "" {
		saved.Prompt = utils.GenerateOutputFilename(s.dir, base, "-prompt", "txt")
		if err := os.WriteFile(saved.Prompt, []byte(r.FinalPrompt), 0644); err != nil {
			return saved, fmt.Errorf("failed to write prompt: %w", err)
		}
	}
	return saved, nil
}

// SaveParts writes every image part of an edit response as
// <prefix>-<unix-ms>-<n>.<ext> and joins the text parts into -text.txt.
func (s *Saver) SaveParts(parts []types.Part) ([]string, error) {
	if err := utils.EnsureDir(s.dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := utils.OutputBaseName(s.prefix, s.now())
	var written []string
	var texts []string
	n := 0
	for _, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		if p.Image == nil || p.Image.Empty() {
			continue
		}
		n++
		path := utils.GenerateOutputFilename(s.dir, base, fmt.Sprintf("-%d", n), processing.ExtensionFor(p.Image.MimeType))
		if err := os.WriteFile(path, p.Image.Data, 0644); err != nil {
			return written, fmt.Errorf("failed to write image %d: %w", n, err)
		}
		written = append(written, path)
	}

	if len(texts) > 0 {
		path := utils.GenerateOutputFilename(s.dir, base, "-text", "txt")
		if err := os.WriteFile(path, []byte(strings.Join(texts, "\n\n")), 0644); err != nil {
			return written, fmt.Errorf("failed to write text: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

func cloneImage(d types.ImageData) types.ImageData {
	data := make([]byte, len(d.Data))
	copy(data, d.Data)
	return types.ImageData{Data: data, MimeType: d.MimeType}
}
