package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hyvewellness/tenantgate/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the fanout exchange used when none is configured.
const DefaultExchange = "tenantgate.tenants.invalidate"

// amqpConnection and amqpChannel cover the parts of amqp091 the bus uses, so tests can
// run without a broker.
type amqpConnection interface {
	Channel() (amqpChannel, error)
	Close() error
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type realConnection struct{ c *amqp.Connection }

func (r realConnection) Channel() (amqpChannel, error) { return r.c.Channel() }
func (r realConnection) Close() error                  { return r.c.Close() }

var amqpDial = func(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return realConnection{c: conn}, nil
}

// AMQPBus publishes events to a durable fanout exchange. Each subscription binds its own
// exclusive, auto-deleted queue, so every instance sees every event.
type AMQPBus struct {
	conn     amqpConnection
	exchange string
	log      logger.Logger

	mu       sync.Mutex
	pub      amqpChannel
	channels []amqpChannel
	closed   bool
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(brokerURL, exchange string, log logger.Logger) (*AMQPBus, error) {
	if brokerURL == "" {
		return nil, errors.New("invalidation: amqp broker url is required")
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = logger.Nop()
	}

	conn, err := amqpDial(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalidation: amqp dial: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("invalidation: amqp channel: %w", err)
	}
	if err := pub.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("invalidation: declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("broker_url", brokerURL).Str("exchange", exchange).Msg("Connected tenant invalidation bus")
	return &AMQPBus{conn: conn, exchange: exchange, log: log, pub: pub}, nil
}

// Publish implements Bus.
func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	err = b.pub.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   ev.At,
		Type:        string(ev.Kind),
		Body:        payload,
	})
	if err != nil {
		return fmt.Errorf("invalidation: amqp publish: %w", err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *AMQPBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.mu.Unlock()

	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("invalidation: amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("invalidation: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("invalidation: bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("invalidation: consume %s: %w", q.Name, err)
	}

	b.mu.Lock()
	b.channels = append(b.channels, ch)
	b.mu.Unlock()

	go b.consume(ctx, ch, deliveries, h)
	return nil
}

func (b *AMQPBus) consume(ctx context.Context, ch amqpChannel, deliveries <-chan amqp.Delivery, h Handler) {
	defer func() { _ = ch.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.log.Warn().Str("exchange", b.exchange).Msg("Invalidation deliveries closed")
				return
			}
			ev, err := decode(d.Body)
			if err != nil {
				b.log.Warn().Err(err).Str("message_id", d.MessageId).Msg("Dropping invalid invalidation message")
				continue
			}
			h(ctx, ev)
		}
	}
}

// Close closes every channel and the connection.
func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true

	for _, ch := range b.channels {
		_ = ch.Close()
	}
	b.channels = nil
	_ = b.pub.Close()
	return b.conn.Close()
}
