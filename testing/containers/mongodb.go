//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartMongoDB runs mongo:8.0 with authentication and returns its connection URI.
func StartMongoDB(ctx context.Context, t *testing.T) string {
	t.Helper()
	skipWithoutDocker(ctx, t)

	c, err := mongodb.Run(ctx, "mongo:8.0",
		mongodb.WithUsername("tenantgate"),
		mongodb.WithPassword("tenantgate"),
		testcontainers.WithWaitStrategy(wait.ForLog("Waiting for connections").WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		t.Fatalf("start mongodb container: %v", err)
	}
	terminateOnCleanup(t, "mongodb", c)

	uri, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("mongodb connection string: %v", err)
	}
	return uri
}
