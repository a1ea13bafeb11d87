package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the backend's JSON response wrapper. Non-2xx responses still
// carry an envelope with an error message.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Response is a fully-read HTTP response. Non-2xx statuses are returned to
// the caller, not converted to errors.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Envelope parses the response body as the standard envelope.
func (r *Response) Envelope() (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(r.Body, &env); err != nil {
		return nil, fmt.Errorf("malformed response envelope: %w", err)
	}
	return &env, nil
}

// ErrorMessage extracts the backend's error message, falling back to the
// HTTP status text.
func (r *Response) ErrorMessage() string {
	if env, err := r.Envelope(); err == nil && env.Message != "" {
		return env.Message
	}
	return http.StatusText(r.StatusCode)
}
