//go:build integration

// Package containers starts throwaway backing services for integration tests. Every
// helper skips the calling test when no Docker daemon is reachable and terminates its
// container through t.Cleanup.
package containers

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

const startupTimeout = 90 * time.Second

func dockerAvailable(ctx context.Context) bool {
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func skipWithoutDocker(ctx context.Context, t *testing.T) {
	t.Helper()
	if !dockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
	}
}

func terminateOnCleanup(t *testing.T, name string, c testcontainers.Container) {
	t.Helper()
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate %s container: %v", name, err)
		}
	})
}
