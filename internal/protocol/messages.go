// Package protocol defines the JSON bodies exchanged between the chat client
// and the chat API, plus the helpers both sides use to encode and decode
// them. Errors always travel as an ErrorResponse with a machine-readable code.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Route paths served by the chat API.
const (
	PathHealth      = "/health"
	PathMetrics     = "/metrics"
	PathMe          = "/auth/me"
	PathMessages    = "/chat/messages"
	PathTyping      = "/chat/typing"
	PathTypingAlias = "/chat/typing-indicators"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeUnauthorized   = "unauthorized"
	CodeInvalidBody    = "invalid_body"
	CodeInvalidMessage = "invalid_message"
	CodeRateLimited    = "rate_limited"
	CodeMuted          = "muted"
	CodeInternal       = "internal_error"
	CodeNotFound       = "not_found"
)

// MaxRequestBytes bounds every JSON request body.
const MaxRequestBytes = 16 << 10

// SendMessageRequest is the body of POST /chat/messages.
type SendMessageRequest struct {
	Body string `json:"body"`
}

// SetTypingRequest is the body of POST /chat/typing.
type SetTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// ErrorResponse is returned by the API for every non-2xx status.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"` // seconds, for rate_limited and muted
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("protocol: encode response: %w", err)
	}
	return nil
}

// WriteError sends a structured error response.
func WriteError(w http.ResponseWriter, status int, code, message string) error {
	return WriteJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// DecodeJSON decodes a single JSON object from r into v. Unknown fields and
// trailing data are rejected so that clients notice contract drift early.
func DecodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("protocol: decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("protocol: decode body: unexpected trailing data")
	}
	return nil
}

// DecodeError reads an ErrorResponse from a failed response body. Bodies that
// are not JSON produce an ErrorResponse carrying the raw text.
func DecodeError(r io.Reader) ErrorResponse {
	raw, _ := io.ReadAll(io.LimitReader(r, MaxRequestBytes))
	var e ErrorResponse
	if err := json.Unmarshal(raw, &e); err != nil || e.Code == "" {
		return ErrorResponse{Message: string(raw)}
	}
	return e
}
