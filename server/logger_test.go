package server

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/logger"
)

func loggedServer(t *testing.T, buf *bytes.Buffer) *echo.Echo {
	t.Helper()
	s, err := New(testConfig(config.EnvProduction), logger.NewWithWriter(buf, "info", false))
	require.NoError(t, err)
	s.Group("/api", TenantMiddleware(testChain(), logger.NewWithWriter(buf, "info", false))).
		GET("/pages", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return s.Echo()
}

func TestRequestLogIncludesTenant(t *testing.T) {
	var buf bytes.Buffer
	e := loggedServer(t, &buf)

	serve(e, http.MethodGet, "/api/pages", map[string]string{"X-Tenant-ID": "hyve"}, "")

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "action", line["log.type"])
	assert.Equal(t, float64(1), line["tenant_id"])
	assert.Equal(t, "hyve", line["tenant_slug"])
	assert.Equal(t, "header", line["tenant_strategy"])
	assert.Equal(t, "/api/pages", line["http.route"])
	assert.Equal(t, float64(http.StatusOK), line["http.response.status_code"])
}

func TestRequestLogOnResolutionFailure(t *testing.T) {
	var buf bytes.Buffer
	e := loggedServer(t, &buf)

	serve(e, http.MethodGet, "/api/pages", map[string]string{"X-Tenant-ID": "nobody"}, "")

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "Tenant resolution failed", lines[0]["message"])
	assert.Equal(t, []any{"header", "host"}, lines[0]["checked"])

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, float64(http.StatusBadRequest), lines[1]["http.response.status_code"])
	assert.NotContains(t, lines[1], "tenant_id")
}

func TestRequestLogSkipsProbes(t *testing.T) {
	var buf bytes.Buffer
	e := loggedServer(t, &buf)

	serve(e, http.MethodGet, "/health", nil, "")
	serve(e, http.MethodGet, "/ready", nil, "")

	assert.Empty(t, buf.String())
}

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		latency   time.Duration
		err       error
		wantLevel string
		wantCode  string
	}{
		{"ok", http.StatusOK, time.Millisecond, nil, "info", "INFO"},
		{"slow", http.StatusOK, 2 * time.Second, nil, "info", "WARN"},
		{"client error", http.StatusBadRequest, time.Millisecond, nil, "warn", "WARN"},
		{"server error", http.StatusInternalServerError, time.Millisecond, nil, "error", "ERROR"},
		{"error without status", 0, time.Millisecond, errBoom, "error", "ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, code := determineSeverity(tt.status, tt.latency, time.Second, tt.err)
			assert.Equal(t, tt.wantLevel, level)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
