package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
)

func testConfig() *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "tenantgate-test", Env: config.EnvProduction},
		Server: config.ServerConfig{Host: "127.0.0.1"},
		Tenancy: config.TenancyConfig{
			Source:    config.SourceStatic,
			Header:    tenant.DefaultHeader,
			Directory: config.DirectoryConfig{TTL: time.Hour},
			Tenants: []config.TenantConfig{
				{ID: 1, Slug: "hyve", Name: "Hyve Wellness", Domain: "wellness.hyve.com"},
			},
		},
	}
}

// countingSource counts how often the directory reads it.
type countingSource struct {
	loads atomic.Int32
	err   error
}

func (s *countingSource) Tenants(context.Context) ([]tenant.Tenant, error) {
	s.loads.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return []tenant.Tenant{{ID: 1, Slug: "hyve", Name: "Hyve", IsActive: true}}, nil
}

func newTestApp(t *testing.T, cfg *config.Config, opts *Options) *App {
	t.Helper()
	a, err := NewWithOptions(context.Background(), cfg, logger.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func serve(a *App, method, target, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	if remote != "" {
		req.RemoteAddr = remote
	}
	rec := httptest.NewRecorder()
	a.Server().Echo().ServeHTTP(rec, req)
	return rec
}

func TestNewUsesStaticTenantsFromConfig(t *testing.T) {
	a := newTestApp(t, testConfig(), nil)

	got, rule, err := a.Directory().ByIdentifier(context.Background(), "hyve")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, tenant.RuleSlug, rule)
	assert.IsType(t, &invalidation.Local{}, a.Bus())
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := NewWithOptions(context.Background(), nil, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestDatabaseSourceNeedsDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Tenancy.Source = config.SourceDatabase

	_, err := NewWithOptions(context.Background(), cfg, logger.Nop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a database")
}

func TestReadinessReflectsDirectory(t *testing.T) {
	src := &countingSource{err: errors.New("source down")}
	a := newTestApp(t, testConfig(), &Options{Source: src})

	assert.Equal(t, http.StatusServiceUnavailable, serve(a, http.MethodGet, "/ready", "").Code)

	ok := newTestApp(t, testConfig(), nil)
	assert.Equal(t, http.StatusOK, serve(ok, http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, serve(ok, http.MethodGet, "/health", "").Code)
}

func TestInvalidationEventReloadsDirectory(t *testing.T) {
	src := &countingSource{}
	a := newTestApp(t, testConfig(), &Options{Source: src})
	ctx := context.Background()

	require.NoError(t, a.Directory().Ready(ctx))
	require.NoError(t, a.Directory().Ready(ctx))
	assert.Equal(t, int32(1), src.loads.Load())

	require.NoError(t, a.Bus().Publish(ctx, invalidation.NewEvent(1, invalidation.KindUpdated)))
	require.NoError(t, a.Directory().Ready(ctx))
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestSchedulerRegistersDirectoryRefresh(t *testing.T) {
	cfg := testConfig()
	cfg.Tenancy.Directory.Refresh = time.Hour
	a := newTestApp(t, cfg, nil)

	jobs := a.Scheduler().Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "tenant-directory-refresh", jobs[0].JobID)

	assert.Equal(t, http.StatusOK, serve(a, http.MethodGet, "/admin/jobs", "127.0.0.1:4000").Code)
	assert.Equal(t, http.StatusForbidden, serve(a, http.MethodGet, "/admin/jobs", "198.51.100.7:4000").Code)
}

func TestNoRefreshJobWhenDisabled(t *testing.T) {
	a := newTestApp(t, testConfig(), nil)
	assert.Empty(t, a.Scheduler().Jobs())
}

func TestSiteRoutesRequireTenant(t *testing.T) {
	a := newTestApp(t, testConfig(), nil)
	a.site.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", http.NoBody)
	req.Header.Set(tenant.DefaultHeader, "hyve")
	rec := httptest.NewRecorder()
	a.Server().Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusBadRequest, serve(a, http.MethodGet, "/api/v1/ping", "").Code)
}

func TestShutdownRunsOnce(t *testing.T) {
	a, err := NewWithOptions(context.Background(), testConfig(), logger.Nop(), nil)
	require.NoError(t, err)

	require.NoError(t, a.Shutdown(context.Background()))
	assert.ErrorIs(t, a.Shutdown(context.Background()), ErrAlreadyShutdown)
	assert.ErrorIs(t, a.Bus().Publish(context.Background(), invalidation.NewEvent(1, invalidation.KindUpdated)), invalidation.ErrClosed)
}

func TestRunStopsWhenContextIsCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)
	a, err := NewWithOptions(context.Background(), cfg, logger.Nop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsServerError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := testConfig()
	cfg.Server.Port = l.Addr().(*net.TCPAddr).Port
	a, err := NewWithOptions(context.Background(), cfg, logger.Nop(), nil)
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app: server")
}

func TestStaticTenants(t *testing.T) {
	inactive := false
	got := staticTenants([]config.TenantConfig{
		{ID: 1, Slug: "hyve", Name: "Hyve", Template: 7, Domains: []string{"*.hyve.com"}},
		{ID: 2, Slug: "demo", Active: &inactive},
	})

	require.Len(t, got, 2)
	assert.True(t, got[0].IsActive)
	require.NotNil(t, got[0].TemplateID)
	assert.Equal(t, int64(7), *got[0].TemplateID)
	assert.Equal(t, []string{"*.hyve.com"}, got[0].Domains)

	assert.False(t, got[1].IsActive)
	assert.Nil(t, got[1].TemplateID)
	assert.Equal(t, "demo", got[1].Name)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
