package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	if c.Timeout != DefaultTimeout {
		t.Errorf("Expected default timeout %s, got %s", DefaultTimeout, c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Expected *http.Transport, got %T", c.Transport)
	}
	if tr.ResponseHeaderTimeout != DefaultTimeout {
		t.Errorf("Header timeout should follow the request timeout, got %s", tr.ResponseHeaderTimeout)
	}
}

func TestNewHeaderTimeoutCapped(t *testing.T) {
	c := New(Options{Timeout: 30 * time.Second, ResponseHeaderTimeout: time.Minute})
	tr := c.Transport.(*http.Transport)
	if tr.ResponseHeaderTimeout != 30*time.Second {
		t.Errorf("Header timeout should be capped at the request timeout, got %s", tr.ResponseHeaderTimeout)
	}
}

func TestClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	for _, ipv4 := range []bool{false, true} {
		c := New(Options{PreferIPv4: ipv4, Timeout: 5 * time.Second})
		resp, err := c.Get(srv.URL)
		if err != nil {
			t.Fatalf("PreferIPv4=%v: request failed: %v", ipv4, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("Unexpected status %d", resp.StatusCode)
		}
	}
}
