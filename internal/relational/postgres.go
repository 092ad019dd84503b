package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and ensures the conversations/messages/
// mission_logs schema exists by running idempotent CREATE TABLE IF NOT
// EXISTS statements on first connect.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("relational: parse dsn: %w", err)
	}
	cfg.MaxConns = 15
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.BeforeAcquire = func(ctx context.Context, conn *pgx.Conn) bool {
		return conn.Ping(ctx) == nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("relational: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("relational: ping: %w", err)
	}

	s := &pgStore{pool: pool}
	if err := s.init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *pgStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    id BIGINT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
    id UUID PRIMARY KEY,
    conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS messages_conversation_created_idx ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS mission_logs (
    id UUID PRIMARY KEY,
    conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    query TEXT NOT NULL,
    response TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS mission_logs_conversation_created_idx ON mission_logs(conversation_id, created_at DESC);
`)
	return err
}

func (s *pgStore) EnsureConversation(ctx context.Context, id int64, title string) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
WITH ins AS (
  INSERT INTO conversations (id, title)
  VALUES ($1, $2)
  ON CONFLICT (id) DO NOTHING
  RETURNING id, title, created_at, updated_at
)
SELECT id, title, created_at, updated_at FROM ins
UNION ALL
SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1
LIMIT 1`, id, title)
	var c Conversation
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func (s *pgStore) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, title, created_at, updated_at FROM conversations WHERE id = $1`, id)
	var c Conversation
	if err := row.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	return c, nil
}

func (s *pgStore) AppendMessage(ctx context.Context, msg Message) error {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO messages (id, conversation_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`, id, msg.ConversationID, msg.Role, msg.Content, createdAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, msg.ConversationID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *pgStore) ListMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, role, content, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) CreateMissionLog(ctx context.Context, log MissionLog) (MissionLog, error) {
	id := log.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := log.Status
	if status == "" {
		status = StatusPending
	}
	row := s.pool.QueryRow(ctx, `
INSERT INTO mission_logs (id, conversation_id, query, response, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, query, response, status, created_at`,
		id, log.ConversationID, TruncateQuery(log.Query), log.Response, status)

	var out MissionLog
	if err := row.Scan(&out.ID, &out.ConversationID, &out.Query, &out.Response, &out.Status, &out.CreatedAt); err != nil {
		return MissionLog{}, err
	}
	return out, nil
}

func (s *pgStore) UpdateMissionStatus(ctx context.Context, id string, status MissionStatus, response string) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE mission_logs
SET status = $2, response = $3
WHERE id = $1 AND status NOT IN ($4, $5)`,
		id, status, response, StatusCompleted, StatusFailed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.GetMissionLog(ctx, id); err != nil {
			return err
		}
		return ErrTerminalStatus
	}
	return nil
}

func (s *pgStore) GetMissionLog(ctx context.Context, id string) (MissionLog, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, conversation_id, query, response, status, created_at
FROM mission_logs WHERE id = $1`, id)
	var out MissionLog
	if err := row.Scan(&out.ID, &out.ConversationID, &out.Query, &out.Response, &out.Status, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MissionLog{}, ErrNotFound
		}
		return MissionLog{}, err
	}
	return out, nil
}

func (s *pgStore) ListMissionLogs(ctx context.Context, conversationID int64, limit int) ([]MissionLog, error) {
	query := `
SELECT id, conversation_id, query, response, status, created_at
FROM mission_logs
WHERE conversation_id = $1
ORDER BY created_at DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]MissionLog, 0)
	for rows.Next() {
		var m MissionLog
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Query, &m.Response, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) ListRecentMissionLogs(ctx context.Context, limit int) ([]MissionLog, error) {
	query := `
SELECT id, conversation_id, query, response, status, created_at
FROM mission_logs
ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]MissionLog, 0)
	for rows.Next() {
		var m MissionLog
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Query, &m.Response, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *pgStore) Stats(ctx context.Context) (MissionStats, error) {
	row := s.pool.QueryRow(ctx, `
SELECT
    COUNT(*),
    COUNT(*) FILTER (WHERE status = $1),
    COUNT(*) FILTER (WHERE status = $2)
FROM mission_logs`, StatusCompleted, StatusFailed)

	var stats MissionStats
	if err := row.Scan(&stats.Total, &stats.Completed, &stats.Failed); err != nil {
		return MissionStats{}, err
	}
	return stats, nil
}

func (s *pgStore) Close() error {
	s.pool.Close()
	return nil
}
