// Package message implements direct messaging between two participants
// (patient/doctor chat). Conversations are identified by a key derived from
// the participant pair, so both sides resolve the same thread.
package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one direct message inside a conversation.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	RecipientID    string     `json:"recipient_id"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Conversation is one entry in a participant's conversation index.
type Conversation struct {
	ID          string    `json:"id"`
	PeerID      string    `json:"peer_id"`
	LastMessage string    `json:"last_message"`
	LastSentAt  time.Time `json:"last_sent_at"`
	Unread      int       `json:"unread"`
}

// ConversationKey derives the conversation id for a participant pair. The
// participant ids are sorted first, so the key is identical regardless of
// which side initiates.
func ConversationKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strings.Join([]string{a, b}, ":")
}
