package domain

import "errors"

// Common errors used throughout the application.
var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnknownRole         = errors.New("unknown role")
	ErrUnknownRealm        = errors.New("unknown realm")
	ErrUpstreamUnavailable = errors.New("identity management upstream unavailable")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// APIError represents an error response from the API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}
