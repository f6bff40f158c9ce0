// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dataset-attach/agent/internal/backend"
	"github.com/dataset-attach/agent/internal/dataset"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUnsupportedFormatError creates a 415 error for files that are not
// CSV or Excel.
func NewUnsupportedFormatError(fileName string) *APIError {
	return &APIError{
		Status:  http.StatusUnsupportedMediaType,
		Code:    "UNSUPPORTED_FORMAT",
		Message: fmt.Sprintf("%s is not a supported dataset file", fileName),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code, message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUpstreamError creates a 502 error wrapping a failure reported by the
// analytics backend.
func NewUpstreamError(apiErr *backend.APIError) *APIError {
	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    "BACKEND_ERROR",
		Message: apiErr.Message,
		Details: fmt.Sprintf("backend returned status %d", apiErr.StatusCode),
	}
}

// fromDatasetError maps state-machine errors onto API responses. Unmapped
// errors fall through to the upstream/internal buckets.
func fromDatasetError(err error) *APIError {
	switch {
	case errors.Is(err, dataset.ErrInvalidFormat):
		return &APIError{
			Status:  http.StatusUnsupportedMediaType,
			Code:    "UNSUPPORTED_FORMAT",
			Message: err.Error(),
		}
	case errors.Is(err, dataset.ErrNoUpload),
		errors.Is(err, dataset.ErrNotAwaitingSheet),
		errors.Is(err, dataset.ErrUnknownSheet):
		return NewConflictError("INVALID_UPLOAD_STATE", err.Error())
	case errors.Is(err, dataset.ErrMissingMetadata):
		return NewBadRequestError(err.Error(), nil)
	case errors.Is(err, dataset.ErrStaleHandle):
		return NewConflictError("STALE_FILE_HANDLE", err.Error())
	case errors.Is(err, dataset.ErrNoMismatch):
		return NewConflictError("NO_MISMATCH", err.Error())
	case errors.Is(err, dataset.ErrNeedsFileSelection):
		return NewConflictError("NEEDS_FILE_SELECTION", err.Error())
	case errors.Is(err, dataset.ErrGenerationInProgress):
		return NewConflictError("GENERATION_IN_PROGRESS", err.Error())
	}

	if apiErr, ok := backend.AsAPIError(err); ok {
		return NewUpstreamError(apiErr)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = fromDatasetError(err)
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}
