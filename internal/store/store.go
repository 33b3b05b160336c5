package store

import (
	"context"
	"time"

	"github.com/eldtechnologies/peerlink/internal/models"
)

// DataStore is the storage collaborator of the realtime core. Both
// SQLiteStore and PostgresStore implement it; the rest of the platform's
// persistence (profiles, deals, documents) is out of scope and absent.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, id, name, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id string, t time.Time) error
	CountUsers(ctx context.Context) (int64, error)

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// FindRecentMessage returns the newest message from sender to
	// receiver with the given content hash at or after since, or nil.
	// It is the read half of the duplicate-send check.
	FindRecentMessage(ctx context.Context, senderID, receiverID, contentHash string, since time.Time) (*models.Message, error)
	MarkMessageRead(ctx context.Context, id string, readAt time.Time) error
	ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Message, error)
	CountMessages(ctx context.Context) (int64, error)
}
