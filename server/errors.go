package server

import (
	"fmt"
	"maps"
	"net/http"
)

// Error codes shared by every handler.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeTooManyRequests    = "TOO_MANY_REQUESTS"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeTenantNotFound     = "TENANT_NOT_FOUND"
)

// BaseAPIError provides a basic implementation of IAPIError.
type BaseAPIError struct {
	code       string
	message    string
	httpStatus int
	details    map[string]any
}

// NewBaseAPIError creates a new base API error.
func NewBaseAPIError(code, message string, httpStatus int) *BaseAPIError {
	return &BaseAPIError{
		code:       code,
		message:    message,
		httpStatus: httpStatus,
		details:    make(map[string]any),
	}
}

// ErrorCode returns the error code.
func (e *BaseAPIError) ErrorCode() string {
	return e.code
}

// Message returns the error message.
func (e *BaseAPIError) Message() string {
	return e.message
}

// HTTPStatus returns the HTTP status code.
func (e *BaseAPIError) HTTPStatus() int {
	return e.httpStatus
}

// Details returns a copy of the error details.
func (e *BaseAPIError) Details() map[string]any {
	if len(e.details) == 0 {
		return nil
	}
	cp := make(map[string]any, len(e.details))
	maps.Copy(cp, e.details)
	return cp
}

// WithDetails adds details to the error.
func (e *BaseAPIError) WithDetails(key string, value any) *BaseAPIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

func (e *BaseAPIError) Error() string {
	if e == nil {
		return ""
	}
	if e.code == "" {
		return e.message
	}
	return e.code + ": " + e.message
}

// NotFoundError represents resource not found errors.
type NotFoundError struct {
	*BaseAPIError
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{
		BaseAPIError: NewBaseAPIError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound),
	}
}

// ConflictError represents resource conflict errors.
type ConflictError struct {
	*BaseAPIError
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{
		BaseAPIError: NewBaseAPIError(CodeConflict, message, http.StatusConflict),
	}
}

// InternalServerError represents internal server errors.
type InternalServerError struct {
	*BaseAPIError
}

// NewInternalServerError creates a new internal server error.
func NewInternalServerError(message string) *InternalServerError {
	if message == "" {
		message = "An internal error occurred"
	}
	return &InternalServerError{
		BaseAPIError: NewBaseAPIError(CodeInternal, message, http.StatusInternalServerError),
	}
}

// BadRequestError represents bad request errors.
type BadRequestError struct {
	*BaseAPIError
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string) *BadRequestError {
	return &BadRequestError{
		BaseAPIError: NewBaseAPIError(CodeBadRequest, message, http.StatusBadRequest),
	}
}

// ForbiddenError is returned when the client may not use an endpoint at all.
type ForbiddenError struct {
	*BaseAPIError
}

func NewForbiddenError(message string) *ForbiddenError {
	if message == "" {
		message = "Access denied"
	}
	return &ForbiddenError{
		BaseAPIError: NewBaseAPIError(CodeForbidden, message, http.StatusForbidden),
	}
}

// ServiceUnavailableError represents service unavailable errors.
type ServiceUnavailableError struct {
	*BaseAPIError
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(message string) *ServiceUnavailableError {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return &ServiceUnavailableError{
		BaseAPIError: NewBaseAPIError(CodeServiceUnavailable, message, http.StatusServiceUnavailable),
	}
}

// TooManyRequestsError represents rate limiting errors.
type TooManyRequestsError struct {
	*BaseAPIError
}

// NewTooManyRequestsError creates a new too many requests error.
func NewTooManyRequestsError(message string) *TooManyRequestsError {
	if message == "" {
		message = "Rate limit exceeded"
	}
	return &TooManyRequestsError{
		BaseAPIError: NewBaseAPIError(CodeTooManyRequests, message, http.StatusTooManyRequests),
	}
}

// TenantNotFoundError is returned when a request carries no signal that resolves to an
// active tenant. The checked strategies are only exposed in development responses.
type TenantNotFoundError struct {
	*BaseAPIError
}

// NewTenantNotFoundError creates the error for a failed resolution.
func NewTenantNotFoundError(checked []string) *TenantNotFoundError {
	base := NewBaseAPIError(CodeTenantNotFound, "Tenant not found", http.StatusBadRequest)
	if checked == nil {
		checked = []string{}
	}
	_ = base.WithDetails("checked", checked)
	return &TenantNotFoundError{BaseAPIError: base}
}

var _ IAPIError = (*BaseAPIError)(nil)
