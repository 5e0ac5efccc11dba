package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

var (
	hyve = tenant.Tenant{ID: 1, Slug: "hyve", Name: "Hyve Wellness", Domain: "wellness.hyve.com", IsActive: true}
	demo = tenant.Tenant{ID: 2, Slug: "demo", Name: "Demo Clinic", IsActive: true}
	gone = tenant.Tenant{ID: 3, Slug: "gone", Name: "Retired", Domain: "gone.hyve.com", IsActive: false}
)

func testConfig(env string) *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "tenantgate-test", Version: "test", Env: env},
		Server: config.ServerConfig{
			BodyLimit: "1M",
			Timeout:   config.TimeoutConfig{Middleware: 2 * time.Second},
		},
		Tenancy: config.TenancyConfig{Header: tenant.DefaultHeader},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	return s
}

func testChain(tenants ...tenant.Tenant) *tenant.Chain {
	if len(tenants) == 0 {
		tenants = []tenant.Tenant{hyve, demo, gone}
	}
	dir := tenant.NewCachedDirectory(tenant.StaticSource(tenants))
	return tenant.NewChain(dir, tenant.ChainConfig{}, nil)
}

type resolverFunc func(ctx context.Context, r *http.Request) (*tenant.Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, r *http.Request) (*tenant.Resolution, error) {
	return f(ctx, r)
}

func failingResolver(err error) Resolver {
	return resolverFunc(func(context.Context, *http.Request) (*tenant.Resolution, error) {
		return nil, err
	})
}

var errBoom = errors.New("boom")

// envelope mirrors APIResponse with loosely typed data for assertions.
type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Error *APIErrorResponse `json:"error"`
	Meta  map[string]any    `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func serve(e *echo.Echo, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		lines = append(lines, m)
	}
	return lines
}
