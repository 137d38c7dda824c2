package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/platform/channel"
)

// backlogLimit caps the replay portion of a subscription.
const backlogLimit = 100

type Service struct {
	repo     Repository
	registry *channel.Registry[*Notification]
	logger   zerolog.Logger
}

func NewService(repo Repository, registry *channel.Registry[*Notification], logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		logger:   logger.With().Str("component", "notification").Logger(),
	}
}

// Registry exposes the delivery channel registry so other services (chat,
// workers) can fan out through the same channels.
func (s *Service) Registry() *channel.Registry[*Notification] {
	return s.registry
}

// Create validates, persists, and broadcasts a notification. A nil
// RecipientID addresses every recipient. If persistence fails the
// notification is still returned for the caller's immediate view, but it is
// not broadcast; subscribers recover persisted items only.
func (s *Service) Create(ctx context.Context, n *Notification) (*Notification, error) {
	if n.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if n.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if n.Type == "" {
		n.Type = TypeInfo
	}
	n.ID = uuid.New()

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("id", n.ID.String()).Msg("persist notification failed")
		return n, nil
	}

	s.registry.Broadcast(s.channelKey(n), n)
	return n, nil
}

func (s *Service) channelKey(n *Notification) string {
	if n.RecipientID == nil {
		return channel.GlobalKey
	}
	return *n.RecipientID
}

// ListFor returns notifications visible to recipientID, newest first. A
// store failure degrades to an empty list.
func (s *Service) ListFor(ctx context.Context, recipientID string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > backlogLimit {
		limit = backlogLimit
	}
	items, err := s.repo.ListFor(ctx, recipientID, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("recipient", recipientID).Msg("list notifications failed")
		return []*Notification{}, nil
	}
	if items == nil {
		items = []*Notification{}
	}
	return items, nil
}

// UnreadCount returns the number of unread notifications visible to
// recipientID.
func (s *Service) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	return s.repo.CountUnreadFor(ctx, recipientID)
}

// MarkRead marks one notification read. Marking a missing or already-read
// notification is a no-op reported through the bool.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) (bool, error) {
	return s.repo.MarkRead(ctx, id, recipientID)
}

// MarkAllRead marks every unread notification visible to recipientID and
// returns the number affected.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

// Subscribe streams notifications for recipientID: first the persisted
// backlog oldest-first, then live notifications from the recipient's channel
// and the global channel as they arrive. The stream ends, and both channel
// attachments are released, when ctx is canceled. A backlog load failure
// degrades to an empty replay so the live tail still flows.
//
// Items created between the backlog read and the live attachment can be
// missed; clients reconcile via ListFor on reconnect.
func (s *Service) Subscribe(ctx context.Context, recipientID string) <-chan *Notification {
	backlog, err := s.repo.ListFor(ctx, recipientID, backlogLimit)
	if err != nil {
		s.logger.Error().Err(err).Str("recipient", recipientID).Msg("load backlog failed, replaying empty")
		backlog = nil
	}

	own := s.registry.Get(recipientID).Subscribe(ctx)
	global := s.registry.Get(channel.GlobalKey).Subscribe(ctx)

	out := make(chan *Notification)
	go func() {
		defer close(out)

		// Backlog is newest-first from the store; replay oldest-first.
		for i := len(backlog) - 1; i >= 0; i-- {
			select {
			case out <- backlog[i]:
			case <-ctx.Done():
				return
			}
		}

		for {
			var n *Notification
			var ok bool
			select {
			case n, ok = <-own:
			case n, ok = <-global:
			case <-ctx.Done():
				return
			}
			if !ok {
				return
			}
			// Channels are keyed by audience already; the filter guards
			// against misrouted publishes.
			if !n.For(recipientID) {
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
