package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Disabled is the Publisher used when no broker is configured. Publishes
// fail fast so durability-critical callers notice immediately.
type Disabled struct{}

func (Disabled) Publish(_ context.Context, exchange, routingKey string, _ interface{}) error {
	return fmt.Errorf("no broker configured, cannot publish to %s/%s", exchange, routingKey)
}

type binding struct {
	exchange   string
	routingKey string
}

// InMemory is a broker fake for tests and broker-less local runs. It keeps
// the at-least-once contract: a handler error requeues the delivery, so the
// same body can be observed more than once.
type InMemory struct {
	mu       sync.Mutex
	bindings map[binding][]string
	queues   map[string][][]byte
	handlers map[string]Handler

	// Redeliveries counts requeues caused by handler failures.
	Redeliveries int
}

func NewInMemory() *InMemory {
	return &InMemory{
		bindings: make(map[binding][]string),
		queues:   make(map[string][][]byte),
		handlers: make(map[string]Handler),
	}
}

// Bind routes messages published to exchange under routingKey into queue.
func (b *InMemory) Bind(exchange, routingKey, queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := binding{exchange, routingKey}
	b.bindings[k] = append(b.bindings[k], queue)
}

func (b *InMemory) Publish(_ context.Context, exchange, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.bindings[binding{exchange, routingKey}] {
		b.queues[q] = append(b.queues[q], body)
	}
	return nil
}

// Consume registers handler for queue. Deliveries happen synchronously in
// Drain, not in a background goroutine.
func (b *InMemory) Consume(_ context.Context, queue string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[queue] = handler
	return nil
}

// Drain delivers pending messages to their handlers until every queue is
// empty, requeueing failures. It returns the number of successful
// deliveries. The attempt cap keeps a permanently failing handler from
// looping forever.
func (b *InMemory) Drain(ctx context.Context) int {
	const maxAttempts = 1000
	succeeded := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		queue, body, ok := b.next()
		if !ok {
			return succeeded
		}
		handler := b.handlerFor(queue)
		if handler == nil {
			// No consumer; put it back and stop so the caller can attach one.
			b.requeue(queue, body)
			return succeeded
		}
		if err := handler(ctx, body); err != nil {
			b.mu.Lock()
			b.Redeliveries++
			b.mu.Unlock()
			b.requeue(queue, body)
			continue
		}
		succeeded++
	}
	return succeeded
}

func (b *InMemory) next() (string, []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for q, msgs := range b.queues {
		if len(msgs) == 0 {
			continue
		}
		body := msgs[0]
		b.queues[q] = msgs[1:]
		return q, body, true
	}
	return "", nil, false
}

func (b *InMemory) requeue(queue string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], body)
}

func (b *InMemory) handlerFor(queue string) Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[queue]
}

// Pending reports the number of undelivered messages in queue.
func (b *InMemory) Pending(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}
