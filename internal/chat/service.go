// Package chat implements the encrypted direct-message transport. Sends
// arrive from two concurrent entry points, the WebSocket event path and
// the synchronous REST path, and may race to persist the same logical
// message; the content-hash dedup window exists for that race, not as an
// optimization.
package chat

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/crypto"
	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
	"github.com/eldtechnologies/peerlink/internal/store"
)

// DefaultDedupWindow is the trailing window within which a resend of the
// same (sender, receiver, content) tuple is treated as the same message.
const DefaultDedupWindow = 5 * time.Second

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrInvalidKind       = errors.New("unknown message kind")
)

const sendLockStripes = 64

// Service is the message transport. All sends from any entry point go
// through Send so the dedup check stays a single atomic unit per
// (sender, receiver, contentHash) key.
type Service struct {
	store       store.DataStore
	registry    *presence.Registry
	cipher      *crypto.MessageCipher
	dedupWindow time.Duration
	log         zerolog.Logger

	// Striped locks keyed by (sender, receiver, contentHash): the
	// read-then-decide-then-write dedup check must not interleave for
	// the same key, or both racing paths insert.
	sendLocks [sendLockStripes]sync.Mutex
}

func NewService(ds store.DataStore, registry *presence.Registry, cipher *crypto.MessageCipher, dedupWindow time.Duration, log zerolog.Logger) *Service {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Service{
		store:       ds,
		registry:    registry,
		cipher:      cipher,
		dedupWindow: dedupWindow,
		log:         log.With().Str("component", "chat").Logger(),
	}
}

func (s *Service) lockFor(senderID, receiverID, contentHash string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(senderID))
	h.Write([]byte{0})
	h.Write([]byte(receiverID))
	h.Write([]byte{0})
	h.Write([]byte(contentHash))
	return &s.sendLocks[h.Sum32()%sendLockStripes]
}

// Send validates, deduplicates, encrypts, persists and delivers one
// message. The returned message carries the decrypted body. duplicate is
// true when the call matched an existing message inside the dedup window;
// in that case nothing was written or delivered and the existing message
// is returned as-is, so both racing calls observe the same message ID.
func (s *Service) Send(ctx context.Context, senderID, receiverID, content, kind, replyTo string) (msg *models.Message, duplicate bool, err error) {
	if content == "" {
		return nil, false, ErrEmptyContent
	}
	if kind == "" {
		kind = models.KindText
	}
	if !models.ValidKind(kind) {
		return nil, false, ErrInvalidKind
	}

	receiver, err := s.store.GetUserByID(ctx, receiverID)
	if err != nil {
		return nil, false, err
	}
	if receiver == nil {
		return nil, false, ErrRecipientNotFound
	}

	conversationID := ConversationID(senderID, receiverID)
	contentHash := crypto.ContentHash(content)

	lock := s.lockFor(senderID, receiverID, contentHash)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.store.FindRecentMessage(ctx, senderID, receiverID, contentHash, time.Now().Add(-s.dedupWindow))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		metrics.MessagesDeduplicated.Inc()
		s.log.Debug().
			Str("message", existing.ID).
			Str("sender", senderID).
			Msg("duplicate send suppressed")
		decrypted := existing.Clone()
		decrypted.Body = s.cipher.Decrypt(decrypted.Body)
		return decrypted, true, nil
	}

	sealed, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, false, err
	}

	stored := &models.Message{
		ID:             crypto.NewMessageID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Body:           sealed,
		ContentHash:    contentHash,
		Kind:           kind,
		ReplyTo:        replyTo,
		Timestamp:      time.Now().UnixMilli(),
	}
	if err := s.store.CreateMessage(ctx, stored); err != nil {
		return nil, false, err
	}

	// Deliver a decrypted copy, best-effort. An offline receiver gets
	// nothing now and fetches history later; there is no queue.
	delivered := stored.Clone()
	delivered.Body = content
	s.registry.SendToUser(receiverID, models.EventReceiveMessage, delivered)
	s.registry.SendToUser(senderID, models.EventReceiveMessage, delivered)
	s.registry.SendToUser(senderID, models.EventMessageSent, delivered)

	return delivered, false, nil
}

// MarkRead applies the read-receipt rule: only the true receiver flips
// isRead, exactly once. Any other requester, an unknown message, or a
// repeat call is a successful no-op.
func (s *Service) MarkRead(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.ReceiverID != requesterID || msg.IsRead {
		return nil
	}

	if err := s.store.MarkMessageRead(ctx, messageID, time.Now()); err != nil {
		return err
	}

	s.registry.SendToUser(msg.SenderID, models.EventMessageRead, models.MessageReadPayload{
		MessageID: messageID,
		ReaderID:  requesterID,
	})
	return nil
}

// Typing relays a typing indicator to the receiver's connections.
// Ephemeral: nothing is persisted and an offline receiver misses it.
func (s *Service) Typing(senderID, receiverID string, isTyping bool) {
	s.registry.SendToUser(receiverID, models.EventTyping, models.TypingPayload{
		SenderID: senderID,
		IsTyping: isTyping,
	})
}

// Conversation returns the message history between two users, newest
// first, with bodies decrypted. before (Unix ms, 0 for none) pages
// backwards in time.
func (s *Service) Conversation(ctx context.Context, userA, userB string, limit int, before int64) ([]models.Message, error) {
	messages, err := s.store.ConversationMessages(ctx, ConversationID(userA, userB), limit, before)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Body = s.cipher.Decrypt(messages[i].Body)
	}
	return messages, nil
}
