package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// GatewayError represents an error that can be returned to clients.
type GatewayError struct {
	Code       int    `json:"-"`
	Kind       string `json:"error"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *GatewayError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
// Base errors (no request ID) use pre-serialized JSON to avoid allocations.
func (e *GatewayError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Error kinds matching the gateway's error taxonomy.
var (
	ErrValidation = &GatewayError{
		Code:    http.StatusBadRequest,
		Kind:    "validation_error",
		Message: "Invalid request",
	}

	ErrAuthFailure = &GatewayError{
		Code:    http.StatusUnauthorized,
		Kind:    "auth_failure",
		Message: "Authentication required",
	}

	ErrForbidden = &GatewayError{
		Code:    http.StatusForbidden,
		Kind:    "forbidden",
		Message: "Insufficient permissions",
	}

	ErrNotFound = &GatewayError{
		Code:    http.StatusNotFound,
		Kind:    "not_found",
		Message: "Not found",
	}

	ErrPayloadTooLarge = &GatewayError{
		Code:    http.StatusRequestEntityTooLarge,
		Kind:    "payload_too_large",
		Message: "Request body exceeds the maximum allowed size",
	}

	ErrRateLimited = &GatewayError{
		Code:    http.StatusTooManyRequests,
		Kind:    "rate_limited",
		Message: "Too many requests, please retry later",
	}

	ErrIntegrityFailed = &GatewayError{
		Code:    http.StatusBadRequest,
		Kind:    "integrity_failed",
		Message: "Request signature verification failed",
	}

	ErrCSRF = &GatewayError{
		Code:    http.StatusForbidden,
		Kind:    "csrf_failure",
		Message: "CSRF token missing or invalid",
	}

	ErrInternal = &GatewayError{
		Code:    http.StatusInternalServerError,
		Kind:    "internal_error",
		Message: "Internal server error",
	}

	ErrUnavailable = &GatewayError{
		Code:    http.StatusServiceUnavailable,
		Kind:    "unavailable",
		Message: "Service unavailable",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*GatewayError][]byte

func init() {
	bases := []*GatewayError{
		ErrValidation, ErrAuthFailure, ErrForbidden, ErrNotFound,
		ErrPayloadTooLarge, ErrRateLimited, ErrIntegrityFailed,
		ErrCSRF, ErrInternal, ErrUnavailable,
	}
	preSerialized = make(map[*GatewayError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new GatewayError.
func New(code int, kind, message string) *GatewayError {
	return &GatewayError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap wraps an error with a client-visible status and message.
func Wrap(err error, code int, kind, message string) *GatewayError {
	return &GatewayError{
		Code:       code,
		Kind:       kind,
		Message:    message,
		underlying: err,
	}
}

// WithMessage returns a copy of the error with a more specific message.
func (e *GatewayError) WithMessage(message string) *GatewayError {
	return &GatewayError{
		Code:       e.Code,
		Kind:       e.Kind,
		Message:    message,
		RequestID:  e.RequestID,
		underlying: e.underlying,
	}
}

// WithRequestID returns a copy of the error carrying the request ID.
func (e *GatewayError) WithRequestID(requestID string) *GatewayError {
	return &GatewayError{
		Code:       e.Code,
		Kind:       e.Kind,
		Message:    e.Message,
		RequestID:  requestID,
		underlying: e.underlying,
	}
}

// AsGatewayError checks if an error is a GatewayError.
func AsGatewayError(err error) (*GatewayError, bool) {
	if ge, ok := err.(*GatewayError); ok {
		return ge, true
	}
	return nil, false
}
