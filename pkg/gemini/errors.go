package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	switch {
	case e.Quota():
		return "API quota exceeded. You have made too many requests or your free trial has ended. Please check your Google AI plan and billing details."
	case e.NotFound():
		return fmt.Sprintf("the requested model or resource was not found: %s", e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("gemini API %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini API %d: %s", e.StatusCode, e.Message)
}

// Quota reports a rate limit or exhausted quota.
func (e *APIError) Quota() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}

// NotFound reports an unknown model or expired resource.
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Status == "NOT_FOUND"
}

// Temporary reports whether retrying later may succeed.
func (e *APIError) Temporary() bool {
	return e.Quota() || e.StatusCode >= 500
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	if strings.Contains(apiErr.Message, "RESOURCE_EXHAUSTED") {
		apiErr.Status = "RESOURCE_EXHAUSTED"
	}
	return apiErr
}
