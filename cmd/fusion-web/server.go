package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/menta2k/image-fusion/pkg/gemini"
	"github.com/menta2k/image-fusion/pkg/pipeline"
	"github.com/menta2k/image-fusion/pkg/result"
	"github.com/menta2k/image-fusion/pkg/types"
)

type composer interface {
	ComposeBytes(ctx context.Context, product, scene []byte, point types.RelativePoint, onProgress pipeline.ProgressFunc) (*types.CompositionResult, error)
	EditBytes(ctx context.Context, prompt string, images [][]byte) ([]types.Part, error)
	Progress() []pipeline.StageProgress
	Busy() bool
}

type server struct {
	fusion         composer
	logger         *slog.Logger
	maxUploadBytes int64
}

type apiError struct {
	Error         string `json:"error"`
	DebugImageURL string `json:"debugImageUrl,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

type responsePart struct {
	Text     string `json:"text,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type composeResponse struct {
	FinalImageURL string                   `json:"finalImageUrl"`
	DebugImageURL string                   `json:"debugImageUrl"`
	FinalPrompt   string                   `json:"finalPrompt"`
	Parts         []responsePart           `json:"parts"`
	Stages        []pipeline.StageProgress `json:"stages"`
}

type editResponse struct {
	Parts []responsePart `json:"parts"`
}

type progressResponse struct {
	Busy   bool                     `json:"busy"`
	Stages []pipeline.StageProgress `json:"stages"`
}

func newServer(fusion composer, logger *slog.Logger, maxUploadBytes int64) *server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &server{fusion: fusion, logger: logger, maxUploadBytes: maxUploadBytes}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/compose", s.handleCompose)
	mux.HandleFunc("/api/edit", s.handleEdit)
	mux.HandleFunc("/api/progress", s.handleProgress)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (s *server) handleCompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	product, err := readFormFile(r, "product")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: formFileError("product image", err)})
		return
	}
	scene, err := readFormFile(r, "scene")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: formFileError("scene image", err)})
		return
	}

	point := types.RelativePoint{
		XPercent: parsePercent(r.FormValue("x")),
		YPercent: parsePercent(r.FormValue("y")),
	}.Clamp()

	res, err := s.fusion.ComposeBytes(r.Context(), product, scene, point, func(stage types.Stage) {
		s.logger.Debug("compose progress", "stage", stage)
	})
	if err != nil {
		s.writeError(w, "compose", err)
		return
	}

	parts := result.Parts(res)
	out := make([]responsePart, 0, len(parts))
	for _, p := range parts {
		label, prompt := result.SplitLabel(p.Text)
		out = append(out, responsePart{Text: label, Prompt: prompt, ImageURL: p.Image.DataURL()})
	}

	writeJSON(w, http.StatusOK, composeResponse{
		FinalImageURL: res.FinalImageURL(),
		DebugImageURL: res.DebugImageURL(),
		FinalPrompt:   res.FinalPrompt,
		Parts:         out,
		Stages:        s.fusion.Progress(),
	})
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	images, err := readFormFiles(r, "image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: formFileError("image", err)})
		return
	}

	parts, err := s.fusion.EditBytes(r.Context(), r.FormValue("prompt"), images)
	if err != nil {
		s.writeError(w, "edit", err)
		return
	}

	out := make([]responsePart, 0, len(parts))
	for _, p := range parts {
		rp := responsePart{Text: p.Text}
		if p.Image != nil {
			rp.ImageURL = p.Image.DataURL()
		}
		out = append(out, rp)
	}
	writeJSON(w, http.StatusOK, editResponse{Parts: out})
}

func (s *server) writeError(w http.ResponseWriter, op string, err error) {
	if types.IsAbort(err) {
		// the client went away, nobody is left to read a response
		s.logger.Info(op+" aborted", "err", err)
		return
	}

	resp := apiError{Error: err.Error()}
	var stageErr *types.StageError
	if errors.As(err, &stageErr) && stageErr.Debug != nil {
		resp.DebugImageURL = stageErr.Debug.DataURL()
	}
	// only the inputs can be the client's fault
	clientInput := stageErr == nil || stageErr.Stage == types.StageResizing

	var apiErr *gemini.APIError
	isAPIErr := errors.As(err, &apiErr)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrBusy):
		status = http.StatusTooManyRequests
		resp.Retryable = true
	case isAPIErr && apiErr.Quota():
		status = http.StatusTooManyRequests
		resp.Retryable = true
	case errors.Is(err, types.ErrDecode) && clientInput, errors.Is(err, types.ErrPipeline) && stageErr == nil:
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrGeneration), isAPIErr, errors.Is(err, context.DeadlineExceeded), errors.Is(err, types.ErrDecode):
		status = http.StatusBadGateway
		resp.Retryable = (isAPIErr && apiErr.Temporary()) || errors.Is(err, context.DeadlineExceeded)
	}
	s.logger.Warn(op+" failed", "status", status, "err", err)
	writeJSON(w, status, resp)
}

func (s *server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Busy: s.fusion.Busy(), Stages: s.fusion.Progress()})
}

// readFormFile reads an uploaded file, or a data URL sent as a plain field.
// An absent field yields http.ErrMissingFile.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		if value := r.FormValue(field); value != "" {
			img, perr := types.ParseDataURL(value, "")
			if perr != nil {
				return nil, perr
			}
			return img.Data, nil
		}
		return nil, err
	}
	defer func(f multipart.File) { _ = f.Close() }(file)
	return io.ReadAll(file)
}

// readFormFiles collects every upload and data URL sent under field
func readFormFiles(r *http.Request, field string) ([][]byte, error) {
	var out [][]byte
	if r.MultipartForm == nil {
		return nil, http.ErrMissingFile
	}
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	for _, value := range r.MultipartForm.Value[field] {
		img, err := types.ParseDataURL(value, "")
		if err != nil {
			return nil, err
		}
		out = append(out, img.Data)
	}
	if len(out) == 0 {
		return nil, http.ErrMissingFile
	}
	return out, nil
}

func formFileError(what string, err error) string {
	if errors.Is(err, http.ErrMissingFile) {
		return "missing " + what
	}
	return "invalid " + what + ": " + err.Error()
}

// parsePercent reads a percentage, treating missing or malformed values as the center
func parsePercent(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 50
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
