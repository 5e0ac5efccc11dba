//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartPostgres runs postgres:17-alpine and returns a DSN for database "tenantgate".
func StartPostgres(ctx context.Context, t *testing.T) string {
	t.Helper()
	skipWithoutDocker(ctx, t)

	c, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("tenantgate"),
		postgres.WithUsername("tenantgate"),
		postgres.WithPassword("tenantgate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	terminateOnCleanup(t, "postgres", c)

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return dsn
}
