package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/menta2k/image-fusion/pkg/types"
)

const (
	DefaultBaseURL          = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion       = "v1beta"
	DefaultDescriptionModel = "gemini-2.5-flash"
	DefaultCompositionModel = "gemini-2.5-flash-image"
)

type Options struct {
	APIKey           string
	BaseURL          string
	APIVersion       string
	DescriptionModel string
	CompositionModel string
	HTTPClient       *http.Client
	Logger           *slog.Logger
}

type Client struct {
	apiKey           string
	baseURL          string
	apiVersion       string
	descriptionModel string
	compositionModel string
	httpClient       *http.Client
	logger           *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		apiKey:           opts.APIKey,
		baseURL:          baseURL,
		apiVersion:       apiVersion,
		descriptionModel: orDefault(opts.DescriptionModel, DefaultDescriptionModel),
		compositionModel: orDefault(opts.CompositionModel, DefaultCompositionModel),
		httpClient:       httpClient,
		logger:           logger,
	}
}

// Describe sends the instruction followed by the image to the text model.
func (c *Client) Describe(ctx context.Context, prompt string, img types.ImageData) (string, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}, inlinePart(img)},
		}},
	}

	parts, err := c.generateContent(ctx, c.descriptionModel, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

// Compose sends the images in order followed by the prompt to the image
// model, asking for both image and text output.
func (c *Client) Compose(ctx context.Context, prompt string, images []types.ImageData) ([]types.Part, error) {
	if len(images) == 0 {
		return nil, errors.New("at least one image is required")
	}

	parts := make([]part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, inlinePart(img))
	}
	parts = append(parts, part{Text: prompt})

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	return c.generateContent(ctx, c.compositionModel, req)
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) ([]types.Part, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	c.logger.Debug("gemini request", "model", model, "bytes", len(body))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, newAPIError(httpResp.StatusCode, rawBody)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	parts, err := extractParts(decoded)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("gemini response", "model", model, "parts", len(parts))
	return parts, nil
}

func extractParts(resp generateContentResponse) ([]types.Part, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, nil
	}

	var out []types.Part
	for _, p := range resp.Candidates[0].Content.Parts {
		var rp types.Part
		rp.Text = p.Text
		if p.InlineData != nil && p.InlineData.Data != "" {
			if p.InlineData.MimeType == "" {
				return nil, errors.New("image part is missing its mimeType")
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			rp.Image = &types.ImageData{Data: data, MimeType: p.InlineData.MimeType}
		}
		if rp.Text == "" && rp.Image == nil {
			continue
		}
		out = append(out, rp)
	}
	return out, nil
}

func inlinePart(img types.ImageData) part {
	mime := img.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return part{InlineData: &blob{
		Data:     base64.StdEncoding.EncodeToString(img.Data),
		MimeType: mime,
	}}
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature        float64  `json:"temperature,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content content `json:"content"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
