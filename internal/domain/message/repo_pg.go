package message

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const msgCols = `id, conversation_id, sender_id, recipient_id, content, sent_at, read_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID,
		&m.Content, &m.SentAt, &m.ReadAt)
	return &m, err
}

func (r *repoPG) Create(ctx context.Context, m *Message) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO direct_message (id, conversation_id, sender_id, recipient_id, content)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING sent_at`,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Content,
	).Scan(&m.SentAt)
}

func (r *repoPG) ListConversation(ctx context.Context, conversationID string, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM direct_message WHERE conversation_id = $1`, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+msgCols+` FROM direct_message
		WHERE conversation_id = $1
		ORDER BY sent_at ASC LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Conversations(ctx context.Context, participantID string) ([]*Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (conversation_id) conversation_id, sender_id, recipient_id, content, sent_at
		FROM direct_message
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY conversation_id, sent_at DESC`,
		participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		var c Conversation
		var sender, recipient string
		if err := rows.Scan(&c.ID, &sender, &recipient, &c.LastMessage, &c.LastSentAt); err != nil {
			return nil, err
		}
		c.PeerID = sender
		if sender == participantID {
			c.PeerID = recipient
		}
		convs = append(convs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	unread, err := r.unreadByConversation(ctx, participantID)
	if err != nil {
		return nil, err
	}
	for _, c := range convs {
		c.Unread = unread[c.ID]
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastSentAt.After(convs[j].LastSentAt)
	})
	return convs, nil
}

func (r *repoPG) unreadByConversation(ctx context.Context, participantID string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT conversation_id, COUNT(*) FROM direct_message
		WHERE recipient_id = $1 AND read_at IS NULL
		GROUP BY conversation_id`,
		participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	unread := make(map[string]int)
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		unread[id] = count
	}
	return unread, rows.Err()
}

func (r *repoPG) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE direct_message SET read_at = NOW()
		WHERE conversation_id = $1 AND recipient_id = $2 AND read_at IS NULL`,
		conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
