package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	imagefusion "github.com/menta2k/image-fusion"
	"github.com/menta2k/image-fusion/internal/config"
	"github.com/menta2k/image-fusion/internal/utils"
	"github.com/menta2k/image-fusion/pkg/processing"
	"github.com/menta2k/image-fusion/pkg/types"
)

func main() {
	var product, scene, editPrompt, configPath, outDir, backend, format string
	var x, y float64
	var debug, restore bool

	flag.StringVar(&product, "product", "", "product image path or URL (jpg/png/webp)")
	flag.StringVar(&scene, "scene", "", "scene image path or URL (jpg/png/webp)")
	flag.Float64Var(&x, "x", 50, "drop point, percent of scene width (0-100)")
	flag.Float64Var(&y, "y", 50, "drop point, percent of scene height (0-100)")
	flag.StringVar(&editPrompt, "edit", "", "edit mode: instruction applied to the images given as arguments")
	flag.StringVar(&configPath, "config", "", "JSON config file (default: none, env only)")
	flag.StringVar(&outDir, "out", "", "output directory (overrides config)")
	flag.StringVar(&backend, "backend", "", "description backend: gemini|ollama|llamacpp|none (overrides config)")
	flag.StringVar(&format, "ext", "", "output format: jpg|png|webp (overrides config)")
	flag.BoolVar(&restore, "restore", false, "resample the result to the scene's original size")
	flag.BoolVar(&debug, "debug", false, "debug logging")
	flag.Parse()

	inputs := []string{product, scene}
	if editPrompt != "" {
		inputs = flag.Args()
		if len(inputs) == 0 {
			log.Fatalf("usage: %s -edit \"instruction\" image1.png [image2.png ...]", filepath.Base(os.Args[0]))
		}
	} else if product == "" || scene == "" {
		log.Fatalf("usage: %s -product product.png -scene scene.jpg [-x 50 -y 50] [-config config.json] [-out dir] [-backend gemini|ollama|llamacpp|none] [-ext jpg|png|webp]", filepath.Base(os.Args[0]))
	}
	checkInputs(inputs)

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if backend != "" {
		cfg.Backend.Describer = backend
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if restore {
		cfg.Pipeline.RestoreOriginalSize = true
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger := newLogger(cfg.Log)

	fusion, err := imagefusion.NewFromConfig(cfg, logger)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if editPrompt != "" {
		runEdit(ctx, fusion, editPrompt, inputs, cfg.Output.OutputDir)
		return
	}

	point := types.RelativePoint{XPercent: x, YPercent: y}.Clamp()
	started := time.Now()
	res, err := fusion.Compose(ctx, product, scene, point, func(s types.Stage) {
		log.Printf("[%s] %s", time.Since(started).Round(time.Millisecond), s)
	})
	if err != nil {
		if types.IsAbort(err) {
			log.Printf("aborted")
			os.Exit(130)
		}
		var stageErr *types.StageError
		if errors.As(err, &stageErr) && stageErr.Debug != nil {
			path := filepath.Join(cfg.Output.OutputDir, "failed-debug.jpeg")
			if utils.EnsureDir(cfg.Output.OutputDir) == nil && os.WriteFile(path, stageErr.Debug.Data, 0o644) == nil {
				log.Printf("wrote %s", path)
			}
		}
		log.Fatal(err)
	}

	saved, err := fusion.SaveResult(res, cfg.Output.OutputDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, path := range []string{saved.Final, saved.Debug, saved.Prompt} {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		log.Printf("wrote %s (%s)", path, utils.FormatFileSize(info.Size()))
	}
	fmt.Println(saved.Final)
}

// checkInputs decodes local inputs up front so a bad file fails before any model call
func checkInputs(inputs []string) {
	proc := processing.NewProcessor()
	for _, in := range inputs {
		if utils.IsRemote(in) {
			continue
		}
		if !utils.FileExists(in) {
			log.Fatalf("input not found: %s", in)
		}
		if !utils.IsImageFile(in) {
			log.Fatalf("unsupported input file: %s", in)
		}
		_, img, err := proc.LoadImage(in)
		if err != nil {
			log.Fatalf("cannot decode input: %v", err)
		}
		b := img.Bounds()
		log.Printf("%s: %dx%d", in, b.Dx(), b.Dy())
	}
}

func runEdit(ctx context.Context, fusion *imagefusion.ImageFusion, prompt string, inputs []string, outDir string) {
	parts, err := fusion.Edit(ctx, prompt, inputs)
	if err != nil {
		if types.IsAbort(err) {
			log.Printf("aborted")
			os.Exit(130)
		}
		log.Fatal(err)
	}
	written, err := fusion.SaveParts(parts, outDir)
	if err != nil {
		log.Fatal(err)
	}
	for _, path := range written {
		fmt.Println(path)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
