//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis is a running Redis container.
type Redis struct {
	Host string
	Port int
}

// StartRedis runs redis:7-alpine for the duration of the test.
func StartRedis(ctx context.Context, t *testing.T) *Redis {
	t.Helper()
	skipWithoutDocker(ctx, t)

	c, err := redis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Ready to accept connections").WithStartupTimeout(startupTimeout)),
	)
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	terminateOnCleanup(t, "redis", c)

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return &Redis{Host: host, Port: port.Int()}
}
