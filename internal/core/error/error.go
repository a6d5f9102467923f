package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal error"
	// ValidationErrorMessage describes input rejected before any state mutation.
	ValidationErrorMessage = "invalid input"
	// TransportErrorMessage describes a failed call to the answering service.
	TransportErrorMessage = "assistant request failed"
	// ContractErrorMessage describes a response that omits a required field.
	ContractErrorMessage = "assistant response violated the contract"
	// CapabilityErrorMessage describes an operation the environment cannot perform.
	CapabilityErrorMessage = "capability unavailable"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// AppError wraps an underlying error with an HTTP-style status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// Validation marks input rejected at the boundary, before any state changed.
func Validation(err error) *AppError {
	return New(err, http.StatusBadRequest, ValidationErrorMessage)
}

// WrapTransport wraps a non-2xx or network failure from the answering service.
func WrapTransport(err error) *AppError {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, TransportErrorMessage)
}

// Contract marks a successful call whose payload omits a required field.
func Contract(err error) *AppError {
	return New(err, http.StatusBadGateway, ContractErrorMessage)
}

// Capability marks an operation the execution environment cannot perform.
func Capability(err error) *AppError {
	return New(err, http.StatusNotImplemented, CapabilityErrorMessage)
}

// HasStatus reports whether err carries the given status anywhere in its chain.
func HasStatus(err error, status int) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status == status
	}
	return false
}
