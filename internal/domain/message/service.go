package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/domain/notification"
	"github.com/aura-health/aura/internal/platform/channel"
)

type Service struct {
	repo     Repository
	registry *channel.Registry[*notification.Notification]
	logger   zerolog.Logger
}

func NewService(repo Repository, registry *channel.Registry[*notification.Notification], logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		logger:   logger.With().Str("component", "message").Logger(),
	}
}

// Send persists a direct message and signals both participants' delivery
// channels so open subscriptions see the new message immediately. The signal
// is ephemeral; the message row itself is the durable record.
func (s *Service) Send(ctx context.Context, senderID, recipientID, content string) (*Message, error) {
	if recipientID == "" {
		return nil, fmt.Errorf("recipient_id is required")
	}
	if recipientID == senderID {
		return nil, fmt.Errorf("cannot message yourself")
	}
	if content == "" {
		return nil, fmt.Errorf("content is required")
	}

	m := &Message{
		ID:             uuid.New(),
		ConversationID: ConversationKey(senderID, recipientID),
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	s.signal(m)
	return m, nil
}

func (s *Service) signal(m *Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal message signal")
		return
	}
	for _, participant := range []string{m.RecipientID, m.SenderID} {
		s.registry.Broadcast(participant, &notification.Notification{
			ID:          m.ID,
			RecipientID: &participant,
			Title:       "New message",
			Message:     m.Content,
			Type:        notification.TypeChatMessage,
			Payload:     payload,
			CreatedAt:   m.SentAt,
		})
	}
}

// ListConversation returns the thread between readerID and peerID, oldest
// first, and marks the messages addressed to readerID as read.
func (s *Service) ListConversation(ctx context.Context, readerID, peerID string, limit, offset int) ([]*Message, int, error) {
	conversationID := ConversationKey(readerID, peerID)
	items, total, err := s.repo.ListConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if _, err := s.repo.MarkConversationRead(ctx, conversationID, readerID); err != nil {
		s.logger.Error().Err(err).Str("conversation", conversationID).Msg("mark conversation read failed")
	}
	if items == nil {
		items = []*Message{}
	}
	return items, total, nil
}

// Conversations returns the caller's conversation index, most recently
// active first.
func (s *Service) Conversations(ctx context.Context, participantID string) ([]*Conversation, error) {
	convs, err := s.repo.Conversations(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*Conversation{}
	}
	return convs, nil
}
