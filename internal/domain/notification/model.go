// Package notification is the real-time notification core: persisted
// notifications addressed to a single recipient or to everyone, fanned out
// live to open subscriptions through the channel registry.
package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Known notification types. The type field is free-form for forward
// compatibility; these are the ones the platform itself emits.
const (
	TypeInfo             = "info"
	TypeAnalysisComplete = "analysis_complete"
	TypeAppointment      = "appointment"
	TypePayment          = "payment"
	TypeChatMessage      = "chat_message"
)

// Notification is one notification row. RecipientID nil means global: the
// notification is addressed to every recipient.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	RecipientID *string         `json:"recipient_id,omitempty"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Read        bool            `json:"read"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Global reports whether the notification is addressed to every recipient.
func (n *Notification) Global() bool {
	return n.RecipientID == nil
}

// For reports whether the notification should be visible to recipientID,
// either addressed to them directly or global.
func (n *Notification) For(recipientID string) bool {
	return n.RecipientID == nil || *n.RecipientID == recipientID
}
