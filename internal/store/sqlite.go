package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/peerlink/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default store
// for development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/peerlink.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/peerlink.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		last_seen DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		body TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		reply_to TEXT DEFAULT '',
		is_read INTEGER DEFAULT 0,
		read_at DATETIME,
		is_edited INTEGER DEFAULT 0,
		edited_at DATETIME,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, ts);
	CREATE INDEX IF NOT EXISTS idx_messages_dedup ON messages(sender_id, receiver_id, content_hash, ts);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, id, name, email string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
	`, id, name, email, time.Now())
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID. Returns nil, nil when absent.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, last_seen, created_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.LastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// UpdateLastSeen stamps the user's last-seen time on final disconnect.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, id string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_seen = ? WHERE id = ?
	`, t, id)
	return err
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

const messageColumns = `id, conversation_id, sender_id, receiver_id, body, content_hash, kind, reply_to, is_read, read_at, is_edited, edited_at, ts`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	msg := &models.Message{}
	var isRead, isEdited int
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Body,
		&msg.ContentHash,
		&msg.Kind,
		&msg.ReplyTo,
		&isRead,
		&msg.ReadAt,
		&isEdited,
		&msg.EditedAt,
		&msg.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	msg.IsRead = isRead == 1
	msg.IsEdited = isEdited == 1
	return msg, nil
}

// CreateMessage persists a message. Body is expected to already be the
// encrypted envelope form.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	isRead := 0
	if msg.IsRead {
		isRead = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, content_hash, kind, reply_to, is_read, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Body, msg.ContentHash, msg.Kind, msg.ReplyTo, isRead, msg.Timestamp)
	return err
}

// GetMessage retrieves a message by ID. Returns nil, nil when absent.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// FindRecentMessage returns the newest matching message at or after since.
func (s *SQLiteStore) FindRecentMessage(ctx context.Context, senderID, receiverID, contentHash string, since time.Time) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND content_hash = ? AND ts >= ?
		ORDER BY ts DESC LIMIT 1
	`, senderID, receiverID, contentHash, since.UnixMilli()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// MarkMessageRead flips is_read and stamps read_at. Idempotent: a message
// that is already read keeps its original read_at.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, id string, readAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1, read_at = ? WHERE id = ? AND is_read = 0
	`, readAt, id)
	return err
}

// ConversationMessages retrieves messages for a conversation, newest
// first. A before of 0 means no upper bound; otherwise only messages
// strictly older than before (Unix ms) are returned.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ?
	`
	args := []any{conversationID}
	if before > 0 {
		query += ` AND ts < ?`
		args = append(args, before)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the total number of persisted messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
