package errors

import (
	"errors"
	"net/http"
)

// AppError is an error with a stable code and the HTTP status it renders as. Internal is
// logged but never sent to clients.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return e.Message + ": " + e.Internal.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches on code and status, so derived copies compare equal to their sentinel.
func (e *AppError) Is(target error) bool {
	other, ok := target.(*AppError)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code && e.StatusCode == other.StatusCode
}

// WithInternal returns a copy carrying err as its cause.
func (e *AppError) WithInternal(err error) *AppError {
	return e.derive(func(cpy *AppError) { cpy.Internal = err })
}

// WithMessage returns a copy with a caller supplied client message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.derive(func(cpy *AppError) { cpy.Message = message })
}

func (e *AppError) derive(apply func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	apply(&cpy)
	return &cpy
}

// New declares an error kind.
func New(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

var (
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrValidation     = New("VALIDATION_FAILED", "Validation failed", http.StatusBadRequest)
	ErrUnauthorized   = New("UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	ErrForbidden      = New("FORBIDDEN", "Permission denied", http.StatusForbidden)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrRateLimit      = New("RATE_LIMIT_EXCEEDED", "Too many requests, please slow down", http.StatusTooManyRequests)
	ErrPersistence    = New("PERSISTENCE_FAILED", "Failed to store notification", http.StatusInternalServerError)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)
)

// FromError finds the AppError in err's chain, or classifies err as an internal failure.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest reports input that could not be decoded.
func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}

// NewValidation reports a payload that parsed but broke a field rule.
func NewValidation(message string) *AppError {
	return ErrValidation.WithMessage(message)
}
