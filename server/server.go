// Package server provides the HTTP server built on Echo: the middleware chain, the
// tenant middleware, typed handlers and the standard response envelope.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
)

const readinessTimeout = 5 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server represents an HTTP server instance with Echo framework.
type Server struct {
	echo       *echo.Echo
	cfg        *config.Config
	log        logger.Logger
	basePath   string
	healthPath string
	readyPath  string

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
	names  []string
}

// normalizeBasePath ensures the base path starts with "/" and doesn't end with "/".
func normalizeBasePath(basePath string) string {
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(basePath, "/")
}

func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

// New creates the server with its middleware chain, error handler and probe endpoints.
func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Nop()
	}
	v, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = v
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg, log)
	}

	s := &Server{
		echo:     e,
		cfg:      cfg,
		log:      log,
		basePath: normalizeBasePath(cfg.Server.Path.Base),
		checks:   make(map[string]ReadinessCheck),
	}
	s.healthPath = s.fullPath(normalizeRoutePath(cfg.Server.Path.Health, "/health"))
	s.readyPath = s.fullPath(normalizeRoutePath(cfg.Server.Path.Ready, "/ready"))

	SetupMiddlewares(e, log, cfg, s.healthPath, s.readyPath)

	e.GET(s.healthPath, s.healthCheck)
	e.GET(s.readyPath, s.readyCheck)

	log.Debug().
		Str("base_path", s.basePath).
		Str("health_path", s.healthPath).
		Str("ready_path", s.readyPath).
		Msg("Server paths configured")
	return s, nil
}

func (s *Server) fullPath(route string) string {
	if s.basePath == "" {
		return route
	}
	if route == "/" {
		return s.basePath
	}
	return s.basePath + route
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Group returns a route group under the configured base path.
func (s *Server) Group(prefix string, middleware ...echo.MiddlewareFunc) *echo.Group {
	return s.echo.Group(s.fullPath(normalizeRoutePath(prefix, "/")), middleware...)
}

// AddReadinessCheck registers a named check run by the ready endpoint. Registering a
// name twice replaces the earlier check.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.checks[name]; !ok {
		s.names = append(s.names, name)
	}
	s.checks[name] = check
}

// Start listens on the configured address and blocks until the server stops.
// http.ErrServerClosed is returned after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.log.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server...")

	return s.echo.StartServer(&http.Server{
		Addr:         addr,
		ReadTimeout:  s.cfg.Server.Timeout.Read,
		WriteTimeout: s.cfg.Server.Timeout.Write,
		IdleTimeout:  s.cfg.Server.Timeout.Idle,
	})
}

// Shutdown gracefully shuts down the HTTP server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	s.mu.RLock()
	names := append([]string(nil), s.names...)
	checks := make([]ReadinessCheck, len(names))
	for i, n := range names {
		checks[i] = s.checks[n]
	}
	s.mu.RUnlock()

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for i, name := range names {
		if err := checks[i](ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			s.log.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{
		"status": "ready",
		"checks": results,
		"time":   time.Now().Unix(),
	}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	return c.JSON(status, body)
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config, log logger.Logger) {
	if c.Response().Committed {
		return
	}

	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		_ = formatErrorResponse(c, apiErr, cfg)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		_ = formatErrorResponse(c, NewServiceUnavailableError("Request timed out"), cfg)
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Unhandled error")
		if !cfg.App.Debug {
			msg = "An error occurred while processing your request"
		}
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status)
	if cfg.IsDevelopment() {
		_ = base.WithDetails("error", err.Error())
	}
	_ = formatErrorResponse(c, base, cfg)
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return CodeBadRequest
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	case http.StatusServiceUnavailable:
		return CodeServiceUnavailable
	default:
		return CodeInternal
	}
}
