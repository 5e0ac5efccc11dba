package site

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/app"
	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/server"
	"github.com/hyvewellness/tenantgate/tenant"
)

const selectPages = "SELECT id, tenant_id, slug, title, body, is_published, updated_at FROM pages WHERE pages.tenant_id = $1"

var pageColumns = []string{"id", "tenant_id", "slug", "title", "body", "is_published", "updated_at"}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "tenantgate-test", Env: config.EnvProduction},
		Tenancy: config.TenancyConfig{
			Source:    config.SourceStatic,
			Header:    tenant.DefaultHeader,
			Directory: config.DirectoryConfig{TTL: time.Minute},
		},
	}
}

func testTenants() tenant.StaticSource {
	template := int64(7)
	return tenant.StaticSource{
		{ID: 1, Slug: "hyve", Name: "Hyve Wellness", Domain: "wellness.hyve.com", IsActive: true, TemplateID: &template,
			Settings: map[string]any{"theme": "sage"}},
		{ID: 2, Slug: "demo", Name: "Demo Clinic", Domain: "demo.hyve.com", IsActive: true},
	}
}

func newTestApp(t *testing.T, withDB bool) (*echo.Echo, sqlmock.Sqlmock) {
	t.Helper()
	opts := &app.Options{Source: testTenants()}

	var mock sqlmock.Sqlmock
	if withDB {
		db, m, err := sqlmock.New()
		require.NoError(t, err)
		mock = m
		t.Cleanup(func() {
			assert.NoError(t, mock.ExpectationsWereMet())
			_ = db.Close()
		})
		opts.Database = database.New(db, database.PostgreSQL, logger.Nop(), time.Second)
	}

	a, err := app.NewWithOptions(context.Background(), testConfig(), logger.Nop(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	require.NoError(t, a.RegisterModule(NewModule()))
	return a.Server().Echo(), mock
}

func q(sql string) string {
	return "^" + regexp.QuoteMeta(sql) + "$"
}

func request(e *echo.Echo, method, target, tenantSlug, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tenantSlug != "" {
		req.Header.Set(tenant.DefaultHeader, tenantSlug)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var env struct {
		Data  T                        `json:"data"`
		Error *server.APIErrorResponse `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Data
}

func TestCurrentTenant(t *testing.T) {
	e, _ := newTestApp(t, false)

	rec := request(e, http.MethodGet, "/api/v1/tenant", "hyve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[TenantResponse](t, rec)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, "hyve", got.Slug)
	assert.Equal(t, tenant.StrategyHeader, got.Strategy)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, int64(7), *got.TemplateID)
	assert.Equal(t, "sage", got.Settings["theme"])
}

func TestCurrentTenantByHost(t *testing.T) {
	e, _ := newTestApp(t, false)

	req := httptest.NewRequest(http.MethodGet, "http://demo.hyve.com/api/v1/tenant", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[TenantResponse](t, rec)
	assert.Equal(t, "demo", got.Slug)
	assert.Equal(t, tenant.StrategyHost, got.Strategy)
}

func TestUnknownTenantIsRejected(t *testing.T) {
	e, _ := newTestApp(t, true)

	rec := request(e, http.MethodGet, "/api/v1/pages", "nobody", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), server.CodeTenantNotFound)
}

func TestPageRoutesNeedDatabase(t *testing.T) {
	e, _ := newTestApp(t, false)

	rec := request(e, http.MethodGet, "/api/v1/pages", "hyve", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPagesIsScopedToResolvedTenant(t *testing.T) {
	e, mock := newTestApp(t, true)
	now := time.Now()

	mock.ExpectQuery(q(selectPages + " AND is_published = $2 ORDER BY slug LIMIT 20")).
		WithArgs(int64(2), true).
		WillReturnRows(sqlmock.NewRows(pageColumns).AddRow(4, 2, "about", "About", "Hello", true, now))

	rec := request(e, http.MethodGet, "/api/v1/pages", "demo", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[ListPagesResponse](t, rec)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, int64(2), got.Pages[0].TenantID)
	assert.Equal(t, 20, got.Limit)
}

func TestListPagesPagination(t *testing.T) {
	e, mock := newTestApp(t, true)

	mock.ExpectQuery(q(selectPages + " AND is_published = $2 ORDER BY slug LIMIT 5 OFFSET 10")).
		WithArgs(int64(1), true).
		WillReturnRows(sqlmock.NewRows(pageColumns))

	rec := request(e, http.MethodGet, "/api/v1/pages?limit=5&offset=10", "hyve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ListPagesResponse](t, rec)
	assert.Empty(t, got.Pages)
	assert.NotNil(t, got.Pages)

	// Oversized limits are clamped rather than rejected.
	mock.ExpectQuery(q(selectPages + " AND is_published = $2 ORDER BY slug LIMIT 100")).
		WithArgs(int64(1), true).
		WillReturnRows(sqlmock.NewRows(pageColumns))

	rec = request(e, http.MethodGet, "/api/v1/pages?limit=500", "hyve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 100, decode[ListPagesResponse](t, rec).Limit)

	rec = request(e, http.MethodGet, "/api/v1/pages?limit=-1", "hyve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPage(t *testing.T) {
	e, mock := newTestApp(t, true)
	now := time.Now()

	mock.ExpectQuery(q(selectPages + " AND slug = $2")).
		WithArgs(int64(1), "about").
		WillReturnRows(sqlmock.NewRows(pageColumns).AddRow(3, 1, "about", "About", "Hi", true, now))
	mock.ExpectQuery(q(selectPages + " AND slug = $2")).
		WithArgs(int64(1), "draft").
		WillReturnRows(sqlmock.NewRows(pageColumns).AddRow(4, 1, "draft", "Draft", "", false, now))
	mock.ExpectQuery(q(selectPages + " AND slug = $2")).
		WithArgs(int64(1), "missing").
		WillReturnRows(sqlmock.NewRows(pageColumns))

	rec := request(e, http.MethodGet, "/api/v1/pages/about", "hyve", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "About", decode[struct {
		Title string `json:"title"`
	}](t, rec).Title)

	assert.Equal(t, http.StatusNotFound, request(e, http.MethodGet, "/api/v1/pages/draft", "hyve", "").Code)
	assert.Equal(t, http.StatusNotFound, request(e, http.MethodGet, "/api/v1/pages/missing", "hyve", "").Code)
	assert.Equal(t, http.StatusBadRequest, request(e, http.MethodGet, "/api/v1/pages/Not_A_Slug", "hyve", "").Code)
}

func TestSettings(t *testing.T) {
	e, mock := newTestApp(t, true)

	mock.ExpectQuery(q("SELECT setting_key, setting_value FROM settings WHERE settings.tenant_id = $1 ORDER BY setting_key")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"setting_key", "setting_value"}).AddRow("theme", "sage"))

	rec := request(e, http.MethodGet, "/api/v1/settings", "demo", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]string{"theme": "sage"}, decode[SettingsResponse](t, rec).Settings)
}

func TestPutSetting(t *testing.T) {
	e, mock := newTestApp(t, true)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE settings SET setting_value = $1, updated_at = NOW() WHERE settings.tenant_id = $2 AND setting_key = $3")).
		WithArgs("dark", int64(2), "theme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := request(e, http.MethodPut, "/api/v1/settings/theme", "demo", `{"value":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, SettingResponse{Key: "theme", Value: "dark"}, decode[SettingResponse](t, rec))
}

func TestStoreFailureIsHidden(t *testing.T) {
	e, mock := newTestApp(t, true)

	mock.ExpectQuery(q("SELECT setting_key, setting_value FROM settings WHERE settings.tenant_id = $1 ORDER BY setting_key")).
		WithArgs(int64(1)).
		WillReturnError(assert.AnError)

	rec := request(e, http.MethodGet, "/api/v1/settings", "hyve", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
