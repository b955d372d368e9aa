package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/image-fusion/pkg/types"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient("not a url", "", nil); err == nil {
		t.Error("Expected error for URL without scheme")
	}

	c, err := NewClient("http://localhost:11434/api/chat", "", nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.Model() != DefaultModel {
		t.Errorf("Expected default model %s, got %s", DefaultModel, c.Model())
	}
}

func TestDescribe(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"  on the wooden table  "},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "llava", srv.Client())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := c.Describe(context.Background(), "where is the dot?", types.ImageData{Data: []byte{1, 2, 3}, MimeType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "on the wooden table" {
		t.Errorf("Unexpected text %q", text)
	}

	if got["model"] != "llava" {
		t.Errorf("Expected model llava, got %v", got["model"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("Expected one message, got %v", got["messages"])
	}
	msg := msgs[0].(map[string]any)
	if !strings.Contains(msg["content"].(string), "dot") {
		t.Errorf("Prompt not forwarded: %v", msg["content"])
	}
	if imgs, _ := msg["images"].([]any); len(imgs) != 1 {
		t.Errorf("Expected one image, got %v", msg["images"])
	}
}

func TestDescribeErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "llava", srv.Client())
	if _, err := c.Describe(context.Background(), "p", types.ImageData{Data: []byte{1}}); err == nil {
		t.Error("Expected error for empty response")
	}
	if _, err := c.Describe(context.Background(), "p", types.ImageData{}); err == nil {
		t.Error("Expected error for missing image")
	}
}
