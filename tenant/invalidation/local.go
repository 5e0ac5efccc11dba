package invalidation

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a bus after Close.
var ErrClosed = errors.New("invalidation: bus closed")

// Local delivers events synchronously to subscribers in the same process. It is the
// transport for single-instance deployments and tests.
type Local struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	closed   bool
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[int]Handler)}
}

// Publish calls every current subscriber before returning.
func (l *Local) Publish(ctx context.Context, ev Event) error {
	if _, err := encode(ev); err != nil {
		return err
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return nil
}

// Subscribe implements Bus.
func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	id := l.next
	l.next++
	l.handlers[id] = h
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}()
	return nil
}

// Subscribers returns the number of registered handlers.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// Close drops all subscribers.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	clear(l.handlers)
	return nil
}
