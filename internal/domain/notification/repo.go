package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	// ListFor returns the notifications visible to recipientID (their own
	// plus global ones), newest first, up to limit.
	ListFor(ctx context.Context, recipientID string, limit int) ([]*Notification, error)
	// CountUnreadFor returns the number of unread notifications visible to
	// recipientID.
	CountUnreadFor(ctx context.Context, recipientID string) (int, error)
	// MarkRead flips one notification to read if it is visible to
	// recipientID. It reports whether a row changed state; marking an
	// already-read notification changes nothing and returns false, nil.
	MarkRead(ctx context.Context, id uuid.UUID, recipientID string) (bool, error)
	// MarkAllRead flips every unread notification visible to recipientID and
	// returns the number of rows changed.
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}
