// Package apperr defines the error taxonomy surfaced by the HTTP API and the
// JSON envelope handled errors are rendered with.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Error struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`

	// Set only for insufficient_credits.
	Required  int `json:"required,omitempty"`
	Available int `json:"available,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(msg string) *Error {
	return &Error{Code: "validation_error", Message: msg, Status: http.StatusBadRequest}
}

func Auth(msg string) *Error {
	return &Error{Code: "auth_error", Message: msg, Status: http.StatusUnauthorized}
}

func NotFound(msg string) *Error {
	return &Error{Code: "not_found", Message: msg, Status: http.StatusNotFound}
}

func InvalidTransition(msg string) *Error {
	return &Error{Code: "invalid_transition", Message: msg, Status: http.StatusBadRequest}
}

func InsufficientCredits(required, available int) *Error {
	return &Error{
		Code:      "insufficient_credits",
		Message:   fmt.Sprintf("insufficient credits: required %d, available %d", required, available),
		Status:    http.StatusForbidden,
		Required:  required,
		Available: available,
	}
}

// Upstream wraps a failure from an external provider. The status should be one
// of 429 (rate limited), 503 (network/unavailable) or 504 (timeout).
func Upstream(msg string, status int, cause error) *Error {
	return &Error{Code: "upstream_error", Message: msg, Status: status, cause: cause}
}

func UpstreamRateLimited(cause error) *Error {
	return Upstream("rate limit exceeded, please try again later", http.StatusTooManyRequests, cause)
}

func UpstreamUnavailable(cause error) *Error {
	return Upstream("a network error occurred while calling an external provider", http.StatusServiceUnavailable, cause)
}

func UpstreamTimeout(cause error) *Error {
	return Upstream("the external provider timed out", http.StatusGatewayTimeout, cause)
}

func Internal(cause error) *Error {
	return &Error{
		Code:    "internal_error",
		Message: "an unexpected error occurred",
		Status:  http.StatusInternalServerError,
		cause:   cause,
	}
}

// From extracts an *Error from err, converting unclassified errors to
// Internal so callers never leak raw error text.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

type envelope struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
	Required  *int   `json:"required,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// Render writes err as a structured JSON envelope with the HTTP status of its
// failure class. Credit counters are included only for insufficient_credits,
// where a zero balance still has to be spelled out.
func Render(w http.ResponseWriter, requestID string, err error) {
	ae := From(err)
	env := envelope{
		Code:      ae.Code,
		Message:   ae.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
	if ae.Code == "insufficient_credits" {
		env.Required = &ae.Required
		env.Available = &ae.Available
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(env)
}
