package imagefusion

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-fusion/internal/config"
	"github.com/menta2k/image-fusion/pkg/client"
	"github.com/menta2k/image-fusion/pkg/processing"
	"github.com/menta2k/image-fusion/pkg/types"
)

// createTestImage writes a solid w×h PNG and returns its bytes
func createTestImage(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	data, err := processing.Encode(imaging.New(w, h, c), "png", 0, false)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return data.Data
}

func echoComposition() client.CompositionService {
	return client.CompositionFunc(func(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error) {
		scene := images[1]
		return []types.Part{{Image: &scene}}, nil
	})
}

func TestNew(t *testing.T) {
	fusion, err := New(echoComposition(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if fusion.processor == nil || fusion.runner == nil {
		t.Error("components not initialized")
	}
	if fusion.Dimension() != 1024 {
		t.Errorf("Expected dimension 1024, got %d", fusion.Dimension())
	}

	if _, err := New(nil, nil); err == nil {
		t.Error("Expected error without a composition service")
	}
}

func TestComposeFiles(t *testing.T) {
	dir := t.TempDir()
	productPath := filepath.Join(dir, "product.png")
	scenePath := filepath.Join(dir, "scene.png")
	os.WriteFile(productPath, createTestImage(t, 300, 300, color.White), 0644)
	os.WriteFile(scenePath, createTestImage(t, 600, 800, color.Gray{128}), 0644)

	fusion, err := New(echoComposition(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var stages []types.Stage
	res, err := fusion.Compose(context.Background(), productPath, scenePath,
		types.RelativePoint{XPercent: 10, YPercent: 90},
		func(s types.Stage) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if stages[len(stages)-1] != types.StageDone {
		t.Errorf("Expected done as last stage, got %v", stages)
	}

	img, err := processing.NewProcessor().Decode(res.FinalImage.Data)
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	// 600x800 portrait fits a 768x1024 content box
	if b := img.Bounds(); b.Dx() != 768 || b.Dy() != 1024 {
		t.Errorf("Expected 768x1024, got %dx%d", b.Dx(), b.Dy())
	}
	for _, p := range fusion.Progress() {
		if p.Status != types.StatusCompleted {
			t.Errorf("%s not completed", p.Stage)
		}
	}

	saved, err := fusion.SaveResult(res, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	for _, path := range []string{saved.Final, saved.Debug, saved.Prompt} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
		}
	}
}

func TestComposeMissingFile(t *testing.T) {
	fusion, _ := New(echoComposition(), nil)
	_, err := fusion.Compose(context.Background(), "/nonexistent/p.png", "/nonexistent/s.png", types.RelativePoint{}, nil)
	if err == nil || !strings.Contains(err.Error(), "product image") {
		t.Errorf("Expected product load error, got %v", err)
	}
}

func TestComposeBytes(t *testing.T) {
	fusion, _ := New(echoComposition(), nil)
	res, err := fusion.ComposeBytes(context.Background(),
		createTestImage(t, 100, 50, color.White),
		createTestImage(t, 400, 100, color.Black),
		types.RelativePoint{XPercent: 100, YPercent: 0}, nil)
	if err != nil {
		t.Fatalf("ComposeBytes failed: %v", err)
	}
	if res.FinalImage.Empty() || res.DebugImage.Empty() {
		t.Error("Expected final and debug images")
	}

	_, err = fusion.ComposeBytes(context.Background(), []byte("junk"), createTestImage(t, 10, 10, color.Black), types.RelativePoint{}, nil)
	if !errors.Is(err, types.ErrDecode) {
		t.Errorf("Expected ErrDecode, got %v", err)
	}
	if fusion.Progress() != nil {
		t.Error("Progress should be cleared after failure")
	}
}

// fakeGemini answers describe calls with text and compose calls with the
// second inline image it received.
func TestEditFiles(t *testing.T) {
	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	for i, p := range paths {
		if err := os.WriteFile(p, createTestImage(t, 30+i, 20, color.White), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var received []types.ImageData
	fusion, err := New(client.CompositionFunc(func(_ context.Context, prompt string, images []types.ImageData) ([]types.Part, error) {
		received = images
		first := images[0]
		return []types.Part{{Text: "Merged: " + prompt}, {Image: &first}}, nil
	}), nil)
	if err != nil {
		t.Fatal(err)
	}

	parts, err := fusion.Edit(context.Background(), "merge these", paths)
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if len(received) != 2 || received[0].MimeType != "image/png" {
		t.Errorf("Unexpected images sent %+v", received)
	}
	if len(parts) != 2 || parts[0].Text != "Merged: merge these" {
		t.Errorf("Unexpected parts %+v", parts)
	}

	written, err := fusion.SaveParts(parts, filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("SaveParts failed: %v", err)
	}
	if len(written) != 2 || !strings.HasSuffix(written[0], "-1.png") || !strings.HasSuffix(written[1], "-text.txt") {
		t.Errorf("Unexpected files %v", written)
	}

	if _, err := fusion.Edit(context.Background(), "merge", []string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("Expected error for a missing image")
	}
}

func fakeGemini(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			Contents []struct {
				Parts []json.RawMessage `json:"parts"`
			} `json:"contents"`
			GenerationConfig *json.RawMessage `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if req.GenerationConfig == nil {
			w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"on the grey floor"}]}}]}`))
			return
		}
		parts := req.Contents[0].Parts
		w.Write([]byte(`{"candidates":[{"content":{"parts":[` + string(parts[1]) + `]}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewFromConfig(t *testing.T) {
	srv := fakeGemini(t)

	cfg := config.Default()
	cfg.Gemini.APIKey = "test-key"
	cfg.Gemini.BaseURL = srv.URL
	cfg.Pipeline.Dimension = 256
	cfg.Output.Format = "png"

	fusion, err := NewFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	res, err := fusion.ComposeBytes(context.Background(),
		createTestImage(t, 64, 64, color.White),
		createTestImage(t, 320, 180, color.Gray{90}),
		types.RelativePoint{XPercent: 50, YPercent: 50}, nil)
	if err != nil {
		t.Fatalf("ComposeBytes failed: %v", err)
	}
	if !strings.Contains(res.FinalPrompt, "on the grey floor") {
		t.Error("Description from backend missing from prompt")
	}
	if res.FinalImage.MimeType != "image/png" {
		t.Errorf("Expected png output, got %s", res.FinalImage.MimeType)
	}
	img, err := processing.NewProcessor().Decode(res.FinalImage.Data)
	if err != nil {
		t.Fatalf("decode final: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 144 {
		t.Errorf("Expected 256x144, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestNewFromConfigErrors(t *testing.T) {
	cfg := config.Default()
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Error("Expected error without API key")
	}

	cfg.Gemini.APIKey = "k"
	cfg.Backend.Describer = "ollama"
	cfg.Backend.URL = "no-scheme"
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Error("Expected error for invalid ollama URL")
	}

	cfg.Backend.Describer = "bogus"
	if _, err := NewFromConfig(cfg, nil); err == nil {
		t.Error("Expected error for unknown describer")
	}

	for _, d := range []string{"none", "llamacpp", "ollama"} {
		cfg.Backend.Describer = d
		cfg.Backend.URL = ""
		if _, err := NewFromConfig(cfg, nil); err != nil {
			t.Errorf("Describer %s: %v", d, err)
		}
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected version %s, got %s", Version, GetVersion())
	}
}
