package server

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/tenant"
)

// HandlerFunc is the typed handler signature used by modules: it receives a bound and
// validated request and returns either a response or an API error.
type HandlerFunc[T any, R any] func(request T, ctx HandlerContext) (R, IAPIError)

// HandlerContext gives handlers access to the request beyond the bound struct.
type HandlerContext struct {
	Echo   echo.Context
	Config *config.Config
}

// Tenant returns the tenant resolved for the request, if any.
func (hc HandlerContext) Tenant() (*tenant.Tenant, bool) {
	return tenant.FromContext(hc.Echo.Request().Context())
}

// Resolution returns the full resolution for the request, if any.
func (hc HandlerContext) Resolution() (*tenant.Resolution, bool) {
	return tenant.ResolutionFromContext(hc.Echo.Request().Context())
}

// Router is the route registration surface shared by *echo.Echo and *echo.Group.
type Router interface {
	Add(method, path string, handler echo.HandlerFunc, middleware ...echo.MiddlewareFunc) *echo.Route
}

// HandlerRegistry binds typed handlers to routes.
type HandlerRegistry struct {
	cfg *config.Config
}

// NewHandlerRegistry creates a registry whose handlers format responses for cfg.
func NewHandlerRegistry(cfg *config.Config) *HandlerRegistry {
	return &HandlerRegistry{cfg: cfg}
}

// WrapHandler adapts a typed handler into an Echo handler. It binds the JSON body and
// the param/query/header tagged fields, validates the result and wraps the response in
// the standard envelope.
func WrapHandler[T any, R any](handler HandlerFunc[T, R], cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var request T

		if err := bindRequest(c, &request); err != nil {
			return formatErrorResponse(c, NewBadRequestError("Invalid request data").WithDetails("error", err.Error()), cfg)
		}

		if err := c.Validate(&request); err != nil {
			vErr := NewBadRequestError("Request validation failed")
			var ve *ValidationError
			if errors.As(err, &ve) {
				_ = vErr.WithDetails("validationErrors", ve.Errors)
			} else {
				_ = vErr.WithDetails("error", err.Error())
			}
			return formatErrorResponse(c, vErr, cfg)
		}

		response, apiErr := handler(request, HandlerContext{Echo: c, Config: cfg})
		if apiErr != nil {
			return formatErrorResponse(c, apiErr, cfg)
		}

		if rl, ok := any(response).(ResultLike); ok {
			status, headers, data := rl.ResultMeta()
			return formatSuccessResponse(c, data, status, headers)
		}
		return formatSuccessResponse(c, response, http.StatusOK, nil)
	}
}

// RegisterHandler registers a typed handler on r.
func RegisterHandler[T any, R any](hr *HandlerRegistry, r Router, method, path string, handler HandlerFunc[T, R], middleware ...echo.MiddlewareFunc) {
	r.Add(method, path, WrapHandler(handler, hr.cfg), middleware...)
}

func GET[T any, R any](hr *HandlerRegistry, r Router, path string, handler HandlerFunc[T, R], m ...echo.MiddlewareFunc) {
	RegisterHandler(hr, r, http.MethodGet, path, handler, m...)
}

func POST[T any, R any](hr *HandlerRegistry, r Router, path string, handler HandlerFunc[T, R], m ...echo.MiddlewareFunc) {
	RegisterHandler(hr, r, http.MethodPost, path, handler, m...)
}

func PUT[T any, R any](hr *HandlerRegistry, r Router, path string, handler HandlerFunc[T, R], m ...echo.MiddlewareFunc) {
	RegisterHandler(hr, r, http.MethodPut, path, handler, m...)
}

func DELETE[T any, R any](hr *HandlerRegistry, r Router, path string, handler HandlerFunc[T, R], m ...echo.MiddlewareFunc) {
	RegisterHandler(hr, r, http.MethodDelete, path, handler, m...)
}

// ResultLike lets a handler choose the status code and headers of a success response.
type ResultLike interface {
	ResultMeta() (status int, headers http.Header, data any)
}

// Result carries a response body with an explicit status.
type Result[R any] struct {
	Status  int
	Headers http.Header
	Data    R
}

func (r Result[R]) ResultMeta() (status int, headers http.Header, data any) {
	return r.Status, r.Headers, r.Data
}

// Created wraps data in a 201 response.
func Created[R any](data R) Result[R] {
	return Result[R]{Status: http.StatusCreated, Data: data}
}

// NoContentResult produces an empty 204 response.
type NoContentResult struct{}

func (NoContentResult) ResultMeta() (status int, headers http.Header, data any) {
	return http.StatusNoContent, nil, nil
}

// NoContent returns a 204 result.
func NoContent() NoContentResult { return NoContentResult{} }

// bindRequest binds the JSON body, then path params, query params and headers named by
// struct tags.
func bindRequest(c echo.Context, target any) error {
	targetValue := reflect.ValueOf(target).Elem()
	if targetValue.Kind() != reflect.Struct {
		return nil
	}
	targetType := targetValue.Type()

	if ct := c.Request().Header.Get(echo.HeaderContentType); ct != "" && c.Request().ContentLength != 0 {
		if mt, _, _ := mime.ParseMediaType(ct); mt == echo.MIMEApplicationJSON || strings.HasSuffix(mt, "+json") {
			if err := (&echo.DefaultBinder{}).BindBody(c, target); err != nil {
				return fmt.Errorf("failed to bind JSON body: %w", err)
			}
		}
	}

	for i := 0; i < targetType.NumField(); i++ {
		field := targetType.Field(i)
		fieldValue := targetValue.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		if name := field.Tag.Get("param"); name != "" {
			if value := c.Param(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set path param %s: %w", name, err)
				}
			}
		}

		if name := field.Tag.Get("query"); name != "" {
			if value := c.QueryParam(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set query param %s: %w", name, err)
				}
			}
		}

		if name := field.Tag.Get("header"); name != "" {
			if value := c.Request().Header.Get(name); value != "" {
				if err := setFieldValue(fieldValue, value); err != nil {
					return fmt.Errorf("failed to set header %s: %w", name, err)
				}
			}
		}
	}
	return nil
}

func setFieldValue(fieldValue reflect.Value, value string) error {
	if fieldValue.Kind() == reflect.Ptr {
		if fieldValue.IsNil() {
			fieldValue.Set(reflect.New(fieldValue.Type().Elem()))
		}
		return setFieldValue(fieldValue.Elem(), value)
	}

	switch fieldValue.Kind() {
	case reflect.String:
		fieldValue.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, fieldValue.Type().Bits())
		if err != nil {
			return err
		}
		fieldValue.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		fieldValue.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", fieldValue.Kind())
	}
	return nil
}
