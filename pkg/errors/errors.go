package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches AppError values by code so sentinel comparisons survive WithInternal copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Common request-level errors.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

// Origin (GitHub API) failure taxonomy surfaced by the origin client.
var (
	ErrOriginNotFound = &AppError{
		Code:       "ORIGIN_NOT_FOUND",
		Message:    "Resource not found on GitHub",
		StatusCode: http.StatusNotFound,
	}

	ErrOriginRateLimited = &AppError{
		Code:       "ORIGIN_RATE_LIMITED",
		Message:    "GitHub API rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrOriginUnauthorized = &AppError{
		Code:       "ORIGIN_UNAUTHORIZED",
		Message:    "GitHub rejected the configured credentials",
		StatusCode: http.StatusUnauthorized,
	}

	ErrOriginUnavailable = &AppError{
		Code:       "ORIGIN_UNAVAILABLE",
		Message:    "GitHub is unreachable, retry later",
		StatusCode: http.StatusBadGateway,
	}

	ErrOriginUnknown = &AppError{
		Code:       "ORIGIN_ERROR",
		Message:    "Unexpected GitHub API error",
		StatusCode: http.StatusBadGateway,
	}

	ErrOriginUnconfigured = &AppError{
		Code:       "ORIGIN_UNCONFIGURED",
		Message:    "GitHub token is not configured",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// Cache and synchronizer errors.
var (
	ErrStoreUnavailable = &AppError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "Cache store is unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrAlreadySyncing = &AppError{
		Code:       "ALREADY_SYNCING",
		Message:    "A sync cycle is already running",
		StatusCode: http.StatusConflict,
	}

	ErrNoLinkedRepo = &AppError{
		Code:       "NO_LINKED_REPO",
		Message:    "Project has no linked GitHub repository",
		StatusCode: http.StatusBadRequest,
	}

	ErrProjectNotFound = &AppError{
		Code:       "PROJECT_NOT_FOUND",
		Message:    "Project not found",
		StatusCode: http.StatusNotFound,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
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

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}
