package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and gateways use these instead of
// hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidLat   ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon   ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationInvalidYear  ErrorCode = "validation_invalid_year"
	ErrCodeValidationInvalidMonth ErrorCode = "validation_invalid_month"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationFailed       ErrorCode = "validation_failed"

	// Method Not Allowed (405)
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Not Found (404)
	ErrCodeNotFoundArtifact ErrorCode = "not_found_artifact"
	ErrCodeNotFoundLedger   ErrorCode = "not_found_report_ledger"
	ErrCodeNotFoundRoute    ErrorCode = "not_found_route"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalStorage    ErrorCode = "internal_storage_error"
	ErrCodeInternalModel      ErrorCode = "internal_model_error"
	ErrCodeInternalRender     ErrorCode = "internal_render_error"

	// Upstream (502)
	ErrCodeUpstreamClimate     ErrorCode = "upstream_climate_unavailable"
	ErrCodeUpstreamFeatures    ErrorCode = "upstream_features_unavailable"
	ErrCodeUpstreamImagery     ErrorCode = "upstream_imagery_unavailable"
	ErrCodeUpstreamLLM         ErrorCode = "upstream_llm_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case c == ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusServiceUnavailable
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard error type used throughout the service. Gateways,
// evaluators and handlers express failures as AppError so the HTTP layer can
// map them consistently.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
