package core

import "errors"

// Error codes sent to clients in error events and HTTP bodies.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeExpired         = "expired"
	ErrCodeDeviceConflict  = "device_conflict"
	ErrCodeForbidden       = "forbidden"
	ErrCodePayloadTooLarge = "payload_too_large"
	ErrCodeNotFound        = "not_found"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal_error"
)

var (
	// ErrInvalidInput is returned for malformed or missing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned for unknown sessions or bad credentials.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrExpired is returned for stale credentials.
	ErrExpired = errors.New("expired")
	// ErrDeviceConflict is returned when an identity is bound to a different device.
	ErrDeviceConflict = errors.New("identity is bound to another device")
	// ErrForbidden is returned when a permission check fails.
	ErrForbidden = errors.New("forbidden")
	// ErrPayloadTooLarge is returned when message content exceeds its bound.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrNotFound is returned when an operation references a missing message or room.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned when a challenge cannot be issued right now.
	ErrRateLimited = errors.New("rate limited")
	// ErrNamespaceExhausted is returned when no free pseudonym could be found.
	ErrNamespaceExhausted = errors.New("pseudonym namespace exhausted")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorCode maps a domain error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeBadRequest
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeUnauthorized
	case errors.Is(err, ErrExpired):
		return ErrCodeExpired
	case errors.Is(err, ErrDeviceConflict):
		return ErrCodeDeviceConflict
	case errors.Is(err, ErrForbidden):
		return ErrCodeForbidden
	case errors.Is(err, ErrPayloadTooLarge):
		return ErrCodePayloadTooLarge
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimited
	default:
		return ErrCodeInternal
	}
}
