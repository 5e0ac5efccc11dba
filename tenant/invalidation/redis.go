package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyvewellness/tenantgate/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "tenantgate:tenants:invalidate"

// RedisConfig holds the connection settings for RedisBus.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string //nolint:gosec // loaded from env
	Database    int
	Channel     string
	DialTimeout time.Duration
}

// Address returns host:port.
func (c RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisBus fans events out over Redis PUBLISH/SUBSCRIBE. Redis delivers a published
// message to every subscriber including the publishing instance, which keeps the
// local directory on the same invalidation path as its peers.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     logger.Logger
	closed  atomic.Bool

	mu   sync.Mutex
	subs []*redis.PubSub
}

// DialRedis connects to Redis and verifies the connection with PING.
func DialRedis(ctx context.Context, cfg RedisConfig, log logger.Logger) (*RedisBus, error) {
	if cfg.Host == "" {
		return nil, errors.New("invalidation: redis host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 6379
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address(),
		Password:    cfg.Password,
		DB:          cfg.Database,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("invalidation: redis ping %s: %w", cfg.Address(), err)
	}
	return NewRedisBus(client, cfg.Channel, log), nil
}

// NewRedisBus wraps an existing client. The bus owns the client and closes it on Close.
func NewRedisBus(client *redis.Client, channel string, log logger.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisBus{client: client, channel: channel, log: log}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("invalidation: redis publish: %w", err)
	}
	return nil
}

// Subscribe implements Bus. Undecodable messages are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	if b.closed.Load() {
		return ErrClosed
	}

	ps := b.client.Subscribe(ctx, b.channel)
	// The first reply confirms the subscription; messages published before it are lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("invalidation: redis subscribe: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	go b.consume(ctx, ps, h)
	return nil
}

func (b *RedisBus) consume(ctx context.Context, ps *redis.PubSub, h Handler) {
	defer ps.Close()

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			ev, err := decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping invalid invalidation message")
				continue
			}
			h(ctx, ev)
		}
	}
}

// Close ends all subscriptions and closes the client.
func (b *RedisBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	return b.client.Close()
}
