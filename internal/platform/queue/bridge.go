// Package queue is the durable event transport between the web process and
// background workers, backed by RabbitMQ. Publishes are persistent and
// consumed at-least-once: a handler failure requeues the delivery, so
// handlers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one delivery body. A non-nil error triggers
// negative-acknowledge with requeue.
type Handler func(ctx context.Context, body []byte) error

// Publisher publishes domain events onto an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, v interface{}) error
}

// Consumer attaches a handler to a queue's delivery stream.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler Handler) error
}

// QueueSpec binds one durable queue to an exchange under a routing key.
type QueueSpec struct {
	Name       string
	Exchange   string
	RoutingKey string
	// DeadLetter, when set, routes rejected-without-requeue deliveries to
	// this exchange. Retry-count limiting is deployment configuration
	// layered on top of it.
	DeadLetter string
}

// Topology declares the exchanges and queues the bridge manages.
type Topology struct {
	TopicExchanges  []string
	DirectExchanges []string
	Queues          []QueueSpec
}

const (
	prefetchCount  = 8
	reconnectDelay = 5 * time.Second
)

// Bridge is the RabbitMQ-backed implementation of Publisher and Consumer.
type Bridge struct {
	url      string
	topology Topology
	logger   zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel // publish channel; consumers open their own
}

// Dial connects to the broker and declares the topology.
func Dial(url string, topology Topology, logger zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		url:      url,
		topology: topology,
		logger:   logger.With().Str("component", "queue").Logger(),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

// connect (re)establishes the connection, the publish channel, and the
// declared topology. Callers must hold no locks other than via Publish.
func (b *Bridge) connect() error {
	// Release the previous connection first; a half-dead conn keeps its
	// heartbeat goroutines alive until closed.
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
		b.ch = nil
	}

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch, b.topology); err != nil {
		conn.Close()
		return fmt.Errorf("declare topology: %w", err)
	}
	b.conn = conn
	b.ch = ch
	return nil
}

func declareTopology(ch *amqp.Channel, t Topology) error {
	for _, ex := range t.TopicExchanges {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare topic exchange %s: %w", ex, err)
		}
	}
	for _, ex := range t.DirectExchanges {
		if err := ch.ExchangeDeclare(ex, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare direct exchange %s: %w", ex, err)
		}
	}
	for _, q := range t.Queues {
		var args amqp.Table
		if q.DeadLetter != "" {
			args = amqp.Table{"x-dead-letter-exchange": q.DeadLetter}
		}
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		if err := ch.QueueBind(q.Name, q.RoutingKey, q.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.Name, err)
		}
	}
	return nil
}

// Publish serializes v and publishes it persistently. If the connection is
// down it attempts one transparent reconnect before failing; an error after
// the retry propagates to the caller so durability-critical flows can react.
func (b *Bridge) Publish(ctx context.Context, exchange, routingKey string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		if err := b.connect(); err != nil {
			return fmt.Errorf("reconnect before publish: %w", err)
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := b.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		// One retry over a fresh connection.
		if rerr := b.connect(); rerr != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}
		if err := b.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
			return fmt.Errorf("publish to %s/%s after reconnect: %w", exchange, routingKey, err)
		}
	}
	return nil
}

// Consume processes deliveries from queue until ctx is canceled. Handler
// success acknowledges the delivery; handler failure requeues it. The loop
// survives connection loss, reconnecting with a fixed backoff.
func (b *Bridge) Consume(ctx context.Context, queue string, handler Handler) error {
	for {
		if err := b.consumeOnce(ctx, queue, handler); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error().Err(err).Str("queue", queue).Msg("consume loop failed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *Bridge) consumeOnce(ctx context.Context, queue string, handler Handler) error {
	b.mu.Lock()
	if b.conn == nil || b.conn.IsClosed() {
		if err := b.connect(); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	conn := b.conn
	b.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consumer on %s: %w", queue, err)
	}

	b.logger.Info().Str("queue", queue).Msg("consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", queue)
			}
			if err := handler(ctx, d.Body); err != nil {
				b.logger.Warn().Err(err).Str("queue", queue).Msg("handler failed, requeueing")
				if nerr := d.Nack(false, true); nerr != nil {
					b.logger.Error().Err(nerr).Str("queue", queue).Msg("nack failed")
				}
				continue
			}
			if aerr := d.Ack(false); aerr != nil {
				b.logger.Error().Err(aerr).Str("queue", queue).Msg("ack failed")
			}
		}
	}
}

// Healthy reports whether the broker connection is currently open.
func (b *Bridge) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && !b.conn.IsClosed()
}

// Close shuts the connection down. In-flight unacknowledged deliveries are
// redelivered by the broker.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
