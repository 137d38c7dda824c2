package message

import "context"

// Repository persists direct messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	// ListConversation returns the messages in a conversation, oldest first,
	// up to limit.
	ListConversation(ctx context.Context, conversationID string, limit, offset int) ([]*Message, int, error)
	// Conversations returns the conversation index for a participant, most
	// recently active first.
	Conversations(ctx context.Context, participantID string) ([]*Conversation, error)
	// MarkConversationRead stamps read_at on every unread message addressed
	// to readerID in the conversation and returns the number affected.
	MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error)
}
