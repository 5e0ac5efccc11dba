package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
)

func tenantEcho(t *testing.T, cfg *config.Config, resolver Resolver) *echo.Echo {
	t.Helper()
	s := newTestServer(t, cfg)
	g := s.Group("/api/v1", TenantMiddleware(resolver, logger.Nop()))
	g.GET("/whoami", func(c echo.Context) error {
		res, ok := tenant.ResolutionFromContext(c.Request().Context())
		if !ok {
			return fmt.Errorf("handler ran without a tenant")
		}
		return c.JSON(http.StatusOK, map[string]any{
			"slug":     res.Tenant.Slug,
			"strategy": res.Strategy,
		})
	})
	return s.Echo()
}

func TestTenantMiddlewareResolvesHeader(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), testChain())

	rec := serve(e, http.MethodGet, "/api/v1/whoami", map[string]string{"X-Tenant-ID": "demo"}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"slug":"demo","strategy":"header"}`, rec.Body.String())
}

func TestTenantMiddlewareResolvesHost(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), testChain())

	req := map[string]string{"X-Forwarded-Host": "wellness.hyve.com, proxy.internal"}
	rec := serve(e, http.MethodGet, "/api/v1/whoami", req, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"slug":"hyve","strategy":"forwarded_host"}`, rec.Body.String())
}

func TestTenantMiddlewareRejectsUnknownTenant(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvDevelopment), testChain())

	rec := serve(e, http.MethodGet, "/api/v1/whoami", map[string]string{"X-Tenant-ID": "nobody"}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeTenantNotFound, env.Error.Code)
	assert.Equal(t, []any{"header", "host"}, env.Error.Details["checked"])
}

func TestTenantMiddlewareHidesCheckedOutsideDevelopment(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), testChain())

	rec := serve(e, http.MethodGet, "/api/v1/whoami", map[string]string{"X-Tenant-ID": "nobody"}, "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeTenantNotFound, env.Error.Code)
	assert.Nil(t, env.Error.Details)
}

func TestTenantMiddlewareInactiveLooksLikeUnknown(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), testChain())

	inactive := serve(e, http.MethodGet, "/api/v1/whoami", map[string]string{"X-Tenant-ID": "gone"}, "")
	unknown := serve(e, http.MethodGet, "/api/v1/whoami", map[string]string{"X-Tenant-ID": "nobody"}, "")

	assert.Equal(t, unknown.Code, inactive.Code)
	assert.Equal(t, decodeEnvelope(t, unknown).Error, decodeEnvelope(t, inactive).Error)
}

func TestTenantMiddlewareDirectoryUnavailable(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction),
		failingResolver(fmt.Errorf("%w: %w", tenant.ErrDirectoryUnavailable, errBoom)))

	rec := serve(e, http.MethodGet, "/api/v1/whoami", nil, "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeServiceUnavailable, decodeEnvelope(t, rec).Error.Code)
}

func TestTenantMiddlewareUnexpectedError(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), failingResolver(errBoom))

	rec := serve(e, http.MethodGet, "/api/v1/whoami", nil, "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeEnvelope(t, rec).Error.Code)
}

func TestTenantMiddlewareWithoutResolver(t *testing.T) {
	e := tenantEcho(t, testConfig(config.EnvProduction), nil)

	rec := serve(e, http.MethodGet, "/api/v1/whoami", nil, "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireTenant(t *testing.T) {
	s := newTestServer(t, testConfig(config.EnvProduction))
	e := s.Echo()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	e.GET("/unscoped", ok, RequireTenant())
	e.GET("/scoped", ok, TenantMiddleware(testChain(), nil), RequireTenant())

	rec := serve(e, http.MethodGet, "/unscoped", map[string]string{"X-Tenant-ID": "hyve"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeTenantNotFound, decodeEnvelope(t, rec).Error.Code)

	rec = serve(e, http.MethodGet, "/scoped", map[string]string{"X-Tenant-ID": "hyve"}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
