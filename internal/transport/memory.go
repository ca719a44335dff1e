package transport

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for operations on a closed bus.
var ErrClosed = errors.New("transport: bus closed")

// DefaultDispatchLimit bounds concurrent handler executions when the caller
// passes no explicit limit.
const DefaultDispatchLimit = 64

// MemoryBus is the in-process fallback transport: a topic registry guarded by
// a single mutex, with handler execution bounded by a weighted semaphore.
// Publish never blocks past the registry lookup: every handler invocation is
// spawned immediately and waits for an execution permit inside its own
// goroutine. Handlers may therefore publish back into the bus without risking
// a dispatch deadlock.
type MemoryBus struct {
	mu       sync.Mutex // guards handlers
	handlers map[string][]Handler

	stateMu sync.RWMutex // guards closed against in-progress publishes
	closed  bool

	sem    *semaphore.Weighted
	wg     sync.WaitGroup // in-flight handler invocations
	logger *zap.Logger
}

// NewMemoryBus creates a bus with the given execution concurrency bound.
// limit <= 0 selects DefaultDispatchLimit.
func NewMemoryBus(limit int64, logger *zap.Logger) *MemoryBus {
	if limit <= 0 {
		limit = DefaultDispatchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBus{
		handlers: make(map[string][]Handler),
		sem:      semaphore.NewWeighted(limit),
		logger:   logger,
	}
}

// invoke runs one handler under an execution permit, containing panics so a
// failing subscriber cannot take down the publisher or starve other handlers.
func (b *MemoryBus) invoke(handler Handler, payload []byte) {
	defer b.wg.Done()
	if err := b.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer b.sem.Release(1)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked", zap.Any("panic", r))
		}
	}()
	handler(payload)
}

// Subscribe registers a handler for exact-topic delivery.
func (b *MemoryBus) Subscribe(topic string, handler Handler) error {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	b.mu.Unlock()
	return nil
}

// Unsubscribe drops every handler registered for the topic.
func (b *MemoryBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	delete(b.handlers, topic)
	b.mu.Unlock()
	return nil
}

// Publish delivers payload to every handler subscribed to topic. Delivery is
// asynchronous; each handler invocation is an independent unit of work. A
// topic with no subscribers is not an error.
func (b *MemoryBus) Publish(topic string, payload []byte) error {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	b.mu.Lock()
	snapshot := make([]Handler, len(b.handlers[topic]))
	copy(snapshot, b.handlers[topic])
	b.mu.Unlock()

	for _, h := range snapshot {
		b.wg.Add(1)
		go b.invoke(h, payload)
	}
	return nil
}

// Drain blocks until every pending and in-flight handler invocation finishes.
// Intended for one-shot pipelines and tests.
func (b *MemoryBus) Drain() {
	b.wg.Wait()
}

// Close drops all subscriptions and waits for in-flight work to complete.
func (b *MemoryBus) Close() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return nil
	}
	b.closed = true
	b.stateMu.Unlock()

	b.mu.Lock()
	b.handlers = make(map[string][]Handler)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
