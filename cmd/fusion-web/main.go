package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	imagefusion "github.com/menta2k/image-fusion"
	"github.com/menta2k/image-fusion/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FUSION_CONFIG"))
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	fusion, err := imagefusion.NewFromConfig(cfg, logger)
	if err != nil {
		panic(err)
	}

	s := newServer(fusion, logger, int64(cfg.HTTP.MaxUploadMB)<<20)

	srv := &http.Server{
		Addr:              cfg.HTTP.WebAddr,
		Handler:           withLogging(s.routes(), logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.HTTP.Timeout() + time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("web started", "addr", cfg.HTTP.WebAddr, "describer", cfg.Backend.Describer, "dimension", cfg.Pipeline.Dimension)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}
