package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/propagation"

	"github.com/hyvewellness/tenantgate/config"
)

// HeaderTraceParent is the W3C trace context header.
const HeaderTraceParent = "traceparent"

// IAPIError defines the interface for API errors with structured information.
type IAPIError interface {
	ErrorCode() string
	Message() string
	HTTPStatus() int
	Details() map[string]any
}

// APIResponse represents the standardized API response format.
type APIResponse struct {
	Data  any               `json:"data,omitempty"`
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse represents the error portion of an API response.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func responseMeta(c echo.Context) map[string]any {
	return map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"traceId":   getTraceID(c),
	}
}

// formatSuccessResponse writes data with the given status inside the standard envelope.
func formatSuccessResponse(c echo.Context, data any, status int, headers http.Header) error {
	if status == 0 {
		status = http.StatusOK
	}
	for k, vals := range headers {
		for _, v := range vals {
			c.Response().Header().Add(k, v)
		}
	}
	if status == http.StatusNoContent {
		return c.NoContent(http.StatusNoContent)
	}
	ensureTraceParentHeader(c)
	return c.JSON(status, APIResponse{Data: data, Meta: responseMeta(c)})
}

// formatErrorResponse writes apiErr inside the standard envelope. Details are only
// included in development.
func formatErrorResponse(c echo.Context, apiErr IAPIError, cfg *config.Config) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}
	if cfg != nil && cfg.IsDevelopment() {
		errorResp.Details = apiErr.Details()
	}

	ensureTraceParentHeader(c)
	return c.JSON(apiErr.HTTPStatus(), APIResponse{Error: errorResp, Meta: responseMeta(c)})
}

// getTraceID extracts or generates a correlation id for the request.
func getTraceID(c echo.Context) string {
	if requestID := c.Request().Header.Get(echo.HeaderXRequestID); requestID != "" {
		return requestID
	}
	if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
		return requestID
	}
	newID := uuid.New().String()
	c.Response().Header().Set(echo.HeaderXRequestID, newID)
	return newID
}

// ensureTraceParentHeader writes the traceparent of the active span, falling back to the
// inbound header when tracing is disabled.
func ensureTraceParentHeader(c echo.Context) {
	header := c.Response().Header()
	if header.Get(HeaderTraceParent) != "" {
		return
	}
	propagation.TraceContext{}.Inject(c.Request().Context(), propagation.HeaderCarrier(header))
	if header.Get(HeaderTraceParent) != "" {
		return
	}
	if tp := c.Request().Header.Get(HeaderTraceParent); tp != "" {
		header.Set(HeaderTraceParent, tp)
	}
}
