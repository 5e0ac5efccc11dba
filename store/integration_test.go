//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyvewellness/tenantgate/config"
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/logger"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
	"github.com/hyvewellness/tenantgate/testing/containers"
)

func TestPostgresTenantIsolation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	dsn := containers.StartPostgres(ctx, t)
	conn, err := database.Open(ctx, &config.DatabaseConfig{
		Type:             database.PostgreSQL,
		ConnectionString: dsn,
		Pool:             config.PoolConfig{Max: 5, Idle: 1},
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, Migrate(ctx, conn, logger.Nop()))
	require.NoError(t, Migrate(ctx, conn, logger.Nop()), "migrations are idempotent")

	bus := invalidation.NewLocal()
	tenants := NewTenantRepository(conn, bus, logger.Nop())
	pages := NewPageRepository(conn, logger.Nop())
	settings := NewSettingRepository(conn)

	hyve := &tenant.Tenant{Slug: "hyve", Name: "Hyve", Domain: "wellness.hyve.com", Domains: []string{"*.hyve.net"}, IsActive: true}
	demo := &tenant.Tenant{Slug: "demo", Name: "Demo", IsActive: true}
	require.NoError(t, tenants.Create(ctx, hyve))
	require.NoError(t, tenants.Create(ctx, demo))
	require.ErrorIs(t, tenants.Create(ctx, &tenant.Tenant{Slug: "hyve", Name: "Dup", IsActive: true}), ErrConflict)

	hyveScope, err := database.NewScope(hyve.ID)
	require.NoError(t, err)
	demoScope, err := database.NewScope(demo.ID)
	require.NoError(t, err)

	require.NoError(t, pages.Create(ctx, hyveScope, &Page{Slug: "about", Title: "About Hyve", IsPublished: true}))
	require.NoError(t, pages.Create(ctx, demoScope, &Page{Slug: "about", Title: "About Demo"}))

	got, err := pages.GetBySlug(ctx, demoScope, "about")
	require.NoError(t, err)
	assert.Equal(t, "About Demo", got.Title)

	hyvePages, err := pages.List(ctx, hyveScope, ListOptions{})
	require.NoError(t, err)
	require.Len(t, hyvePages, 1)
	assert.Equal(t, hyve.ID, hyvePages[0].TenantID)

	require.NoError(t, settings.Put(ctx, hyveScope, "theme", "sage"))
	require.NoError(t, settings.Put(ctx, hyveScope, "theme", "dark"))
	_, err = settings.Get(ctx, demoScope, "theme")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, pages.Create(ctx, hyveScope, &Page{Slug: "contact", Title: "Contact"}))
	admin, err := database.NewAdminScope("integration copy", hyve.ID, demo.ID)
	require.NoError(t, err)
	copied, err := pages.CopyPages(ctx, admin, hyve.ID, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, copied)

	require.NoError(t, tenants.Deactivate(ctx, demo.ID))
	dir := tenant.NewCachedDirectory(tenants)
	_, _, err = dir.ByIdentifier(ctx, "demo")
	assert.ErrorIs(t, err, tenant.ErrTenantInactive)

	found, rule, err := dir.ByDomain(ctx, "shop.hyve.net")
	require.NoError(t, err)
	assert.Equal(t, hyve.ID, found.ID)
	assert.Equal(t, tenant.RuleWildcard, rule)
}
