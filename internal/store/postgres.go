package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/peerlink/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool
// and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		body TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		reply_to TEXT NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT false,
		read_at TIMESTAMPTZ,
		is_edited BOOLEAN NOT NULL DEFAULT false,
		edited_at TIMESTAMPTZ,
		ts BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(sender_id, receiver_id, content_hash, ts);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, id, name, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, last_seen, created_at
	`, id, name, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID. Returns nil, nil when absent.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, last_seen, created_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpdateLastSeen stamps the user's last-seen time on final disconnect.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, id string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET last_seen = $1 WHERE id = $2
	`, t, id)
	return err
}

// CountUsers returns the total number of users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

const pgMessageColumns = `id, conversation_id, sender_id, receiver_id, body, content_hash, kind, reply_to, is_read, read_at, is_edited, edited_at, ts`

func scanPgMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Body,
		&msg.ContentHash,
		&msg.Kind,
		&msg.ReplyTo,
		&msg.IsRead,
		&msg.ReadAt,
		&msg.IsEdited,
		&msg.EditedAt,
		&msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateMessage persists a message.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, content_hash, kind, reply_to, is_read, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, msg.ContentHash, msg.Kind, msg.ReplyTo, msg.IsRead, msg.Timestamp)
	return err
}

// GetMessage retrieves a message by ID. Returns nil, nil when absent.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanPgMessage(s.pool.QueryRow(ctx, `
		SELECT `+pgMessageColumns+` FROM messages WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// FindRecentMessage returns the newest matching message at or after since.
func (s *PostgresStore) FindRecentMessage(ctx context.Context, senderID, receiverID, contentHash string, since time.Time) (*models.Message, error) {
	msg, err := scanPgMessage(s.pool.QueryRow(ctx, `
		SELECT `+pgMessageColumns+` FROM messages
		WHERE sender_id = $1 AND receiver_id = $2 AND content_hash = $3 AND ts >= $4
		ORDER BY ts DESC LIMIT 1
	`, senderID, receiverID, contentHash, since.UnixMilli()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// MarkMessageRead flips is_read and stamps read_at, once.
func (s *PostgresStore) MarkMessageRead(ctx context.Context, id string, readAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_read = true, read_at = $1 WHERE id = $2 AND is_read = false
	`, readAt, id)
	return err
}

// ConversationMessages retrieves messages for a conversation, newest first.
func (s *PostgresStore) ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + pgMessageColumns + ` FROM messages
		WHERE conversation_id = $1
	`
	args := []any{conversationID}
	if before > 0 {
		query += ` AND ts < $2 ORDER BY ts DESC LIMIT $3`
		args = append(args, before, limit)
	} else {
		query += ` ORDER BY ts DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the total number of persisted messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
