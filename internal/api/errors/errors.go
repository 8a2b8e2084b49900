// Package errors provides structured error types and response helpers for the API.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/narvanalabs/resque/internal/auth"
	"github.com/narvanalabs/resque/internal/models"
	"github.com/narvanalabs/resque/internal/service"
	"github.com/narvanalabs/resque/internal/store"
)

// Error codes for structured API responses.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeConflict        = "CONFLICT"
	CodeUnprocessable   = "UNPROCESSABLE"
)

var statusByCode = map[string]int{
	CodeValidationError: http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeUnauthorized:    http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeConflict:        http.StatusConflict,
	CodeUnprocessable:   http.StatusUnprocessableEntity,
}

// APIError is the body of every non-2xx response.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy carrying details.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	c := *e
	c.Details = details
	return &c
}

// WithRequestID returns a copy carrying requestID.
func (e *APIError) WithRequestID(requestID string) *APIError {
	c := *e
	c.RequestID = requestID
	return &c
}

// HTTPStatusCode returns the status for the error code. Unknown codes are 500.
func (e *APIError) HTTPStatusCode() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates an APIError.
func New(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

// NewValidationError creates a 400 error.
func NewValidationError(message string) *APIError {
	return New(CodeValidationError, message)
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(message string) *APIError {
	return New(CodeUnauthorized, message)
}

// NewInternalError creates a 500 error.
func NewInternalError(message string) *APIError {
	return New(CodeInternalError, message)
}

// mapping turns an error class into a response. Entries are tried in order.
type mapping struct {
	match   func(error) bool
	code    string
	message string
}

func is(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

var mappings = []mapping{
	{is(store.ErrNotFound), CodeNotFound, "resource not found"},
	{is(service.ErrEmailTaken), CodeConflict, service.ErrEmailTaken.Error()},
	{is(store.ErrAlreadyExists), CodeConflict, "resource already exists"},
	{is(store.ErrConflict), CodeConflict, "resource was modified concurrently, retry"},
	{is(auth.ErrInvalidCredentials), CodeUnauthorized, auth.ErrInvalidCredentials.Error()},
	{is(auth.ErrExpiredToken), CodeUnauthorized, "token has expired"},
	{is(auth.ErrInvalidToken, auth.ErrInvalidSignature, auth.ErrMissingClaims), CodeUnauthorized, "invalid token"},
}

// FromError maps a command or store error onto an APIError. Domain errors
// keep their code under details.reason. Anything unrecognised becomes an
// internal error without leaking its message.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var de *models.Error
	if errors.As(err, &de) {
		code := CodeUnprocessable
		switch {
		case errors.Is(err, models.ErrPermissionDenied), errors.Is(err, models.ErrCommentEditPermission):
			code = CodeForbidden
		case de.Kind == models.KindValidation:
			code = CodeValidationError
		}
		return New(code, de.Message).WithDetails(map[string]any{"reason": de.Code})
	}

	for _, m := range mappings {
		if m.match(err) {
			return New(m.code, m.message)
		}
	}
	return NewInternalError("an unexpected error occurred")
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes err with its status code.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// WriteErrorWithRequestID writes err tagged with requestID.
func WriteErrorWithRequestID(w http.ResponseWriter, err *APIError, requestID string) {
	WriteError(w, err.WithRequestID(requestID))
}
