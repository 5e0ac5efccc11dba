//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// StartRabbitMQ runs rabbitmq:3.13-management-alpine and returns its AMQP URL.
func StartRabbitMQ(ctx context.Context, t *testing.T) string {
	t.Helper()
	skipWithoutDocker(ctx, t)

	c, err := rabbitmq.Run(ctx, "rabbitmq:3.13-management-alpine",
		rabbitmq.WithAdminUsername("guest"),
		rabbitmq.WithAdminPassword("guest"),
	)
	if err != nil {
		t.Fatalf("start rabbitmq container: %v", err)
	}
	terminateOnCleanup(t, "rabbitmq", c)

	url, err := c.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("rabbitmq url: %v", err)
	}
	return url
}
