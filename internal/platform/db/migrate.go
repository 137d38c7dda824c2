package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Schema holds the full migration set for the notification core. Statements
// are idempotent only through the version tracking table, so each migration
// runs exactly once per database.
var Schema = []Migration{
	{
		Version: 1,
		Name:    "notification",
		SQL: `
CREATE TABLE IF NOT EXISTS notification (
    id          UUID PRIMARY KEY,
    recipient_id TEXT,
    title       TEXT NOT NULL,
    message     TEXT NOT NULL,
    type        TEXT,
    payload     JSONB,
    read        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notification_recipient
    ON notification (recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notification_unread
    ON notification (recipient_id) WHERE read = FALSE;`,
	},
	{
		Version: 2,
		Name:    "direct_message",
		SQL: `
CREATE TABLE IF NOT EXISTS direct_message (
    id              UUID PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    sender_id       TEXT NOT NULL,
    recipient_id    TEXT NOT NULL,
    content         TEXT NOT NULL,
    sent_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    read_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_direct_message_conversation
    ON direct_message (conversation_id, sent_at);`,
	},
	{
		Version: 3,
		Name:    "analysis_result",
		SQL: `
CREATE TABLE IF NOT EXISTS analysis_result (
    id           UUID PRIMARY KEY,
    patient_id   TEXT NOT NULL,
    image_url    TEXT NOT NULL,
    image_type   TEXT NOT NULL,
    risk_level   TEXT NOT NULL,
    risk_score   DOUBLE PRECISION NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analysis_result_patient
    ON analysis_result (patient_id, completed_at DESC);`,
	},
}

// Migrator applies the embedded schema against a PostgreSQL database,
// tracking applied versions in a _migrations table.
type Migrator struct {
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS _migrations (
    version    INTEGER PRIMARY KEY,
    name       VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}
	return nil
}

// Up applies all pending migrations in version order and returns the number
// applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	applied := make(map[int]bool)
	rows, err := m.pool.Query(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return 0, fmt.Errorf("query applied versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range Schema {
		if applied[mig.Version] {
			continue
		}
		if _, err := m.pool.Exec(ctx, mig.SQL); err != nil {
			return count, fmt.Errorf("apply migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		if _, err := m.pool.Exec(ctx,
			`INSERT INTO _migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			return count, fmt.Errorf("record migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}
