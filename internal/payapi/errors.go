package payapi

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is the structured error returned by the payment backend.
// Message is safe to surface to the user; Code identifies the business rule.
type APIError struct {
	Status  int    `json:"-"`
	ErrCode string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("payapi: %s (%s)", e.Message, e.ErrCode)
	}
	return fmt.Sprintf("payapi: %s (status %d)", e.Message, e.Status)
}

// Code satisfies the router's error-code derivation for handler summaries.
func (e *APIError) Code() string { return e.ErrCode }

// UserMessage returns the backend-provided message or a generic fallback.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return "The payment service rejected the request"
}

// IsAuthError reports whether the error means the token is no longer valid.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

// AsAPIError extracts a structured backend error, if present.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
