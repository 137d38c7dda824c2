// Package channel provides the in-memory delivery fan-out used for live
// notification streaming. A Registry maps a recipient key to one broadcast
// Channel; every subscriber attached to a Channel observes every value
// published to it. Channels hold no history: a value published while no
// subscriber is attached is gone from the channel (callers recover missed
// items through the database backlog replay, not from here).
package channel

import (
	"context"
	"sync"
)

// GlobalKey is the sentinel recipient key for broadcast-audience values.
const GlobalKey = "*"

// Channel is a multi-subscriber broadcast queue for a single recipient key.
// Publishing never blocks: each subscriber owns an unbounded queue drained
// by its own pump goroutine.
type Channel[T any] struct {
	mu   sync.Mutex
	subs map[*subscriber[T]]struct{}
}

type subscriber[T any] struct {
	mu    sync.Mutex
	queue []T
	wake  chan struct{}
}

func newChannel[T any]() *Channel[T] {
	return &Channel[T]{subs: make(map[*subscriber[T]]struct{})}
}

// Subscribe attaches a new subscriber and returns a receive channel that
// yields each subsequently published value in publish order. When ctx is
// canceled the subscriber detaches and the channel is closed.
func (c *Channel[T]) Subscribe(ctx context.Context) <-chan T {
	s := &subscriber[T]{wake: make(chan struct{}, 1)}

	c.mu.Lock()
	c.subs[s] = struct{}{}
	c.mu.Unlock()

	out := make(chan T)
	go func() {
		defer func() {
			c.detach(s)
			close(out)
		}()
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				select {
				case <-ctx.Done():
					return
				case <-s.wake:
				}
				continue
			}
			v := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Publish enqueues v for every currently attached subscriber.
func (c *Channel[T]) Publish(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subs {
		s.mu.Lock()
		s.queue = append(s.queue, v)
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (c *Channel[T]) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel[T]) detach(s *subscriber[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

// Registry maps recipient keys to their broadcast channels. Channels are
// created lazily on first access and kept for the process lifetime.
type Registry[T any] struct {
	mu       sync.RWMutex
	channels map[string]*Channel[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{channels: make(map[string]*Channel[T])}
}

// Get returns the channel for key, creating and registering it atomically if
// it does not exist. Concurrent calls for the same key always observe the
// same channel.
func (r *Registry[T]) Get(key string) *Channel[T] {
	r.mu.RLock()
	ch, ok := r.channels[key]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[key]; ok {
		return ch
	}
	ch = newChannel[T]()
	r.channels[key] = ch
	return ch
}

// Broadcast delivers v to every subscriber currently attached to key's
// channel.
func (r *Registry[T]) Broadcast(key string, v T) {
	r.Get(key).Publish(v)
}

// Len returns the number of registered channels.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
