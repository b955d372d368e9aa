package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/image-fusion/pkg/types"
)

func TestDescribe(t *testing.T) {
	var got ChatCompletionRequest
	var rawParts []ContentPart
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []ContentPart `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		got.Model = body.Model
		if len(body.Messages) > 0 {
			rawParts = body.Messages[0].Content
		}
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"On the sofa cushion."}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "minicpm", srv.Client())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := c.Describe(context.Background(), "describe", types.ImageData{Data: []byte("img"), MimeType: "image/png"})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "On the sofa cushion." {
		t.Errorf("Unexpected text %q", text)
	}
	if got.Model != "minicpm" {
		t.Errorf("Expected model minicpm, got %q", got.Model)
	}
	if len(rawParts) != 2 || rawParts[0].Text != "describe" || rawParts[1].ImageURL == nil {
		t.Fatalf("Unexpected content parts %+v", rawParts)
	}
	if !strings.HasPrefix(rawParts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("Unexpected image URL %q", rawParts[1].ImageURL.URL)
	}
}

func TestDescribeArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"near the sink"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "m", srv.Client())
	text, err := c.Describe(context.Background(), "p", types.ImageData{Data: []byte("x")})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "near the sink" {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestDescribeErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `boom`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"empty text", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"   "}}]}`},
		{"bad json", http.StatusOK, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewClient(srv.URL, "m", srv.Client())
			if _, err := c.Describe(context.Background(), "p", types.ImageData{Data: []byte("x")}); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestDescribeErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"image input is not supported by this model"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "m", srv.Client())
	_, err := c.Describe(context.Background(), "p", types.ImageData{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "image input is not supported") {
		t.Errorf("Expected server message in error, got %v", err)
	}
}
