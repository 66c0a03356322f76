package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

const ddlConversationTurns = `
CREATE TABLE IF NOT EXISTS conversation_turns (
    session_id      TEXT         NOT NULL,
    turn_index      INTEGER      NOT NULL,
    user_text       TEXT         NOT NULL,
    assistant_text  TEXT         NOT NULL,
    user_audio      TEXT         NOT NULL DEFAULT '',
    assistant_audio TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (session_id, turn_index)
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_created_at
    ON conversation_turns (created_at);
`

// Migrate creates the conversation_turns table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlConversationTurns); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection and runs
// [Migrate].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// RecordTurn implements [Store].
func (s *PostgresStore) RecordTurn(ctx context.Context, t Turn) error {
	const q = `
		INSERT INTO conversation_turns
		    (session_id, turn_index, user_text, assistant_text, user_audio, assistant_audio, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		ON CONFLICT (session_id, turn_index) DO UPDATE SET
		    user_text       = EXCLUDED.user_text,
		    assistant_text  = EXCLUDED.assistant_text,
		    user_audio      = EXCLUDED.user_audio,
		    assistant_audio = EXCLUDED.assistant_audio,
		    created_at      = EXCLUDED.created_at`

	var createdAt any
	if !t.CreatedAt.IsZero() {
		createdAt = t.CreatedAt
	}
	_, err := s.pool.Exec(ctx, q,
		t.SessionID,
		t.Index,
		t.UserText,
		t.AssistantText,
		t.UserAudio,
		t.AssistantAudio,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("archive: record turn: %w", err)
	}
	return nil
}

// Turns implements [Store].
func (s *PostgresStore) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	const q = `
		SELECT session_id, turn_index, user_text, assistant_text, user_audio, assistant_audio, created_at
		FROM   conversation_turns
		WHERE  session_id = $1
		ORDER  BY turn_index`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("archive: list turns: %w", err)
	}
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var t Turn
		err := row.Scan(&t.SessionID, &t.Index, &t.UserText, &t.AssistantText, &t.UserAudio, &t.AssistantAudio, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan turns: %w", err)
	}
	return turns, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [Store].
func (s *PostgresStore) Close() {
	s.pool.Close()
}
