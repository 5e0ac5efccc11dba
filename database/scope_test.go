package database

import (
	"context"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/tenant"
)

func mustScope(t *testing.T, id int64) Scope {
	t.Helper()
	s, err := NewScope(id)
	require.NoError(t, err)
	return s
}

func TestNewScopeRejectsMissingTenant(t *testing.T) {
	for _, id := range []int64{0, -3} {
		_, err := NewScope(id)
		assert.ErrorIs(t, err, ErrMissingTenant)
	}
	assert.False(t, Scope{}.Valid())
}

func TestScopeFromContext(t *testing.T) {
	_, err := ScopeFromContext(context.Background())
	require.ErrorIs(t, err, ErrMissingTenant)

	ctx := tenant.WithTenant(context.Background(), &tenant.Tenant{ID: 42, Slug: "hyve", IsActive: true})
	s, err := ScopeFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.TenantID())
}

func TestTenantSelectAlwaysFiltersByTenant(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	q, err := qb.TenantSelect(mustScope(t, 7), "pages", "id", "slug")
	require.NoError(t, err)
	sql, args, err := q.Where(squirrel.Eq{"slug": "home"}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, slug FROM pages WHERE pages.tenant_id = $1 AND slug = $2", sql)
	assert.Equal(t, []any{int64(7), "home"}, args)
}

func TestTenantSelectWithAlias(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	q, err := qb.TenantSelect(mustScope(t, 7), "pages p", "p.id")
	require.NoError(t, err)
	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT p.id FROM pages p WHERE p.tenant_id = $1", sql)
}

func TestTenantSelectOracleUsesColonPlaceholders(t *testing.T) {
	qb := NewQueryBuilder(Oracle)

	q, err := qb.TenantSelect(mustScope(t, 3), "settings", "setting_key")
	require.NoError(t, err)
	sql, args, err := qb.Paginate(q, 10, 20).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT setting_key FROM settings WHERE settings.tenant_id = :1 OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY", sql)
	assert.Equal(t, []any{int64(3)}, args)
}

func TestTenantInsertOverridesTenantID(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	q, err := qb.TenantInsert(mustScope(t, 5), "pages", map[string]any{
		"slug":      "about",
		"tenant_id": int64(99),
	})
	require.NoError(t, err)
	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t, "INSERT INTO pages (slug,tenant_id) VALUES ($1,$2)", sql)
	assert.Equal(t, []any{"about", int64(5)}, args)
}

func TestTenantUpdateNeverRewritesOwner(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	q, err := qb.TenantUpdate(mustScope(t, 5), "pages", map[string]any{
		"title":     "About us",
		"tenant_id": int64(99),
	})
	require.NoError(t, err)
	sql, args, err := q.Where(squirrel.Eq{"slug": "about"}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE pages SET title = $1 WHERE pages.tenant_id = $2 AND slug = $3", sql)
	assert.Equal(t, []any{"About us", int64(5), "about"}, args)

	_, err = qb.TenantUpdate(mustScope(t, 5), "pages", map[string]any{"tenant_id": int64(1)})
	assert.ErrorIs(t, err, ErrNoValues)
}

func TestTenantDelete(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	q, err := qb.TenantDelete(mustScope(t, 8), "pages")
	require.NoError(t, err)
	sql, args, err := q.Where(squirrel.Eq{"id": 3}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM pages WHERE pages.tenant_id = $1 AND id = $2", sql)
	assert.Equal(t, []any{int64(8), 3}, args)
}

func TestTenantBuildersRejectZeroScope(t *testing.T) {
	qb := NewQueryBuilder(PostgreSQL)

	_, err := qb.TenantSelect(Scope{}, "pages", "id")
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, err = qb.TenantInsert(Scope{}, "pages", map[string]any{"slug": "x"})
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, err = qb.TenantUpdate(Scope{}, "pages", map[string]any{"slug": "x"})
	assert.ErrorIs(t, err, ErrMissingTenant)
	_, err = qb.TenantDelete(Scope{}, "pages")
	assert.ErrorIs(t, err, ErrMissingTenant)
}

func TestAdminScope(t *testing.T) {
	_, err := NewAdminScope("", 1)
	require.Error(t, err)
	_, err = NewAdminScope("copy pages")
	require.ErrorIs(t, err, ErrMissingTenant)
	_, err = NewAdminScope("copy pages", 1, 0)
	require.ErrorIs(t, err, ErrMissingTenant)

	admin, err := NewAdminScope("copy pages", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "copy pages", admin.Reason())
	assert.Equal(t, []int64{1, 2}, admin.Tenants())

	s, err := admin.ScopeFor(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s.TenantID())

	_, err = admin.ScopeFor(3)
	assert.ErrorIs(t, err, ErrOutsideAdminScope)
}
