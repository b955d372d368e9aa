package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/image-fusion/pkg/types"
)

const (
	DefaultServerURL = "http://localhost:8080"
	completionsPath  = "/v1/chat/completions"
	requestTimeout   = 300 * time.Second
)

// Client describes marked scenes through a llama.cpp server's
// OpenAI-compatible chat endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type requestMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	TopP        float64          `json:"top_p,omitempty"`
	Stream      bool             `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content replyContent `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
}

// replyContent accepts either a plain string or an array of typed parts.
type replyContent string

func (r *replyContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = replyContent(s)
		return nil
	}

	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("unsupported content shape: %w", err)
	}
	for _, p := range parts {
		if p.Text != "" {
			*r = replyContent(p.Text)
			return nil
		}
	}
	*r = ""
	return nil
}

func NewClient(serverURL, model string, httpClient *http.Client) (*Client, error) {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &Client{
		baseURL:    strings.TrimRight(serverURL, "/"),
		model:      model,
		httpClient: httpClient,
	}, nil
}

// Describe asks the served vision model about the image and returns its reply.
func (c *Client) Describe(ctx context.Context, prompt string, img types.ImageData) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	parts := []ContentPart{{Type: "text", Text: prompt}}
	if !img.Empty() {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: types.EncodeDataURL(mime, img.Data)},
		})
	}

	body, err := c.post(ctx, ChatCompletionRequest{
		Model:       c.model,
		Messages:    []requestMessage{{Role: "user", Content: parts}},
		Temperature: 0.4,
		MaxTokens:   1024,
		TopP:        0.9,
	})
	if err != nil {
		return "", err
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llama.cpp returned no choices")
	}

	text := strings.TrimSpace(string(resp.Choices[0].Message.Content))
	if text == "" {
		return "", errors.New("llama.cpp returned no text")
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, payload ChatCompletionRequest) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llama.cpp request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llama.cpp returned status %d: %s", resp.StatusCode, serverMessage(body))
	}
	return body, nil
}

// serverMessage pulls the message out of an OpenAI-style error envelope.
func serverMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
