package notification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const notifCols = `id, recipient_id, title, message, type, payload, read, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type,
		&n.Payload, &n.Read, &n.CreatedAt)
	return &n, err
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO notification (id, recipient_id, title, message, type, payload)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING read, created_at`,
		n.ID, n.RecipientID, n.Title, n.Message, n.Type, n.Payload,
	).Scan(&n.Read, &n.CreatedAt)
}

func (r *repoPG) ListFor(ctx context.Context, recipientID string, limit int) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notifCols+` FROM notification
		WHERE recipient_id = $1 OR recipient_id IS NULL
		ORDER BY created_at DESC LIMIT $2`,
		recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (r *repoPG) CountUnreadFor(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notification
		WHERE (recipient_id = $1 OR recipient_id IS NULL) AND read = FALSE`,
		recipientID).Scan(&count)
	return count, err
}

func (r *repoPG) MarkRead(ctx context.Context, id uuid.UUID, recipientID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification SET read = TRUE
		WHERE id = $1 AND (recipient_id = $2 OR recipient_id IS NULL) AND read = FALSE`,
		id, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification SET read = TRUE
		WHERE (recipient_id = $1 OR recipient_id IS NULL) AND read = FALSE`,
		recipientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
