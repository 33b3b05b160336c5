package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/crypto"
	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
)

// memStore is an in-memory DataStore for transport tests.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	messages []*models.Message
}

func newMemStore(users ...string) *memStore {
	s := &memStore{users: make(map[string]*models.User)}
	for _, id := range users {
		s.users[id] = &models.User{ID: id, CreatedAt: time.Now()}
	}
	return s
}

func (s *memStore) Close()                         {}
func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) CreateUser(ctx context.Context, id, name, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: id, Name: name, Email: email, CreatedAt: time.Now()}
	s.users[id] = u
	return u, nil
}

func (s *memStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s *memStore) UpdateLastSeen(ctx context.Context, id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[id]; u != nil {
		u.LastSeen = &t
	}
	return nil
}

func (s *memStore) CountUsers(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *memStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg.Clone())
	return nil
}

func (s *memStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) FindRecentMessage(ctx context.Context, senderID, receiverID, contentHash string, since time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.ContentHash == contentHash && m.Timestamp >= since.UnixMilli() {
			return m.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) MarkMessageRead(ctx context.Context, id string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id && !m.IsRead {
			m.IsRead = true
			m.ReadAt = &readAt
		}
	}
	return nil
}

func (s *memStore) ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.ConversationID != conversationID {
			continue
		}
		if before > 0 && m.Timestamp >= before {
			continue
		}
		out = append(out, *m.Clone())
	}
	return out, nil
}

func (s *memStore) CountMessages(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.messages)), nil
}

func (s *memStore) persisted() []*models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Message(nil), s.messages...)
}

// fakeConn records events delivered to it.
type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []delivered
}

type delivered struct {
	event string
	data  any
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(event string, data any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, delivered{event, data})
	return true
}

func (f *fakeConn) byEvent(event string) []delivered {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivered
	for _, d := range f.events {
		if d.event == event {
			out = append(out, d)
		}
	}
	return out
}

func newTestService(t *testing.T, ds *memStore, window time.Duration) (*Service, *presence.Registry) {
	t.Helper()
	cipher, err := crypto.NewMessageCipher("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	registry := presence.NewRegistry(zerolog.Nop())
	return NewService(ds, registry, cipher, window, zerolog.Nop()), registry
}

func TestConversationIDCommutative(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"01HTX", "01HTY"},
		{"x", "x"},
	}
	for _, p := range pairs {
		if ConversationID(p[0], p[1]) != ConversationID(p[1], p[0]) {
			t.Fatalf("ConversationID(%q,%q) not commutative", p[0], p[1])
		}
	}
	if ConversationID("alice", "bob") != "alice:bob" {
		t.Fatalf("expected sorted join, got %q", ConversationID("alice", "bob"))
	}
}

func TestSendPersistsEncrypted(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, _ := newTestService(t, ds, time.Second)

	msg, duplicate, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if duplicate {
		t.Fatal("first send must not be a duplicate")
	}
	if msg.Body != "hello" {
		t.Fatalf("returned copy should be decrypted, got %q", msg.Body)
	}
	if msg.Kind != models.KindText {
		t.Fatalf("default kind should be text, got %q", msg.Kind)
	}

	stored := ds.persisted()
	if len(stored) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(stored))
	}
	if stored[0].Body == "hello" {
		t.Fatal("persisted form must never contain plaintext")
	}
	if stored[0].ConversationID != ConversationID("alice", "bob") {
		t.Fatal("wrong conversation id")
	}
	if stored[0].IsRead {
		t.Fatal("new message must be unread")
	}
}

func TestSendToUnknownRecipient(t *testing.T) {
	ds := newMemStore("alice")
	svc, _ := newTestService(t, ds, time.Second)

	_, _, err := svc.Send(context.Background(), "alice", "ghost", "hello", "", "")
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	if len(ds.persisted()) != 0 {
		t.Fatal("no writes on recipient-not-found")
	}
}

func TestDuplicateSendSuppressed(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, _ := newTestService(t, ds, 5*time.Second)

	first, _, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	second, duplicate, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if !duplicate {
		t.Fatal("second send inside the window must be a duplicate")
	}
	if second.ID != first.ID {
		t.Fatalf("both sends must observe the same message ID: %s vs %s", first.ID, second.ID)
	}
	if len(ds.persisted()) != 1 {
		t.Fatalf("expected exactly 1 persisted message, got %d", len(ds.persisted()))
	}
}

func TestDuplicateAfterWindowPersistsAgain(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, _ := newTestService(t, ds, 50*time.Millisecond)

	if _, _, err := svc.Send(context.Background(), "alice", "bob", "hello", "", ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	_, duplicate, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if duplicate {
		t.Fatal("send after the window elapsed must not be deduplicated")
	}
	if len(ds.persisted()) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(ds.persisted()))
	}
}

func TestConcurrentDuplicateSends(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, _ := newTestService(t, ds, 5*time.Second)

	// The WebSocket path and the REST path racing with the same logical
	// message.
	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, _, err := svc.Send(context.Background(), "alice", "bob", "race", "", "")
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = msg.ID
		}(i)
	}
	wg.Wait()

	if len(ds.persisted()) != 1 {
		t.Fatalf("expected at most one persisted copy, got %d", len(ds.persisted()))
	}
	if ids[0] != ids[1] {
		t.Fatalf("racing sends must agree on the message ID: %s vs %s", ids[0], ids[1])
	}
}

func TestSendDeliversToBothParties(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, registry := newTestService(t, ds, time.Second)

	aliceConn := &fakeConn{id: "c1", userID: "alice"}
	bobTab1 := &fakeConn{id: "c2", userID: "bob"}
	bobTab2 := &fakeConn{id: "c3", userID: "bob"}
	registry.Register(aliceConn)
	registry.Register(bobTab1)
	registry.Register(bobTab2)

	if _, _, err := svc.Send(context.Background(), "alice", "bob", "hi", "", ""); err != nil {
		t.Fatal(err)
	}

	for _, tab := range []*fakeConn{bobTab1, bobTab2} {
		got := tab.byEvent(models.EventReceiveMessage)
		if len(got) != 1 {
			t.Fatalf("receiver tab should get exactly one receive_message, got %d", len(got))
		}
		if m := got[0].data.(*models.Message); m.Body != "hi" {
			t.Fatalf("delivered copy must be decrypted, got %q", m.Body)
		}
	}
	if len(aliceConn.byEvent(models.EventReceiveMessage)) != 1 {
		t.Fatal("sender should get the echo")
	}
	if len(aliceConn.byEvent(models.EventMessageSent)) != 1 {
		t.Fatal("sender should get the ack")
	}
}

func TestSendToOfflineReceiverStillPersists(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, registry := newTestService(t, ds, time.Second)

	aliceConn := &fakeConn{id: "c1", userID: "alice"}
	registry.Register(aliceConn)

	msg, _, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.persisted()) != 1 {
		t.Fatal("message must persist even when the receiver is offline")
	}

	// B later fetches history and reads the decrypted copy.
	history, err := svc.Conversation(context.Background(), "bob", "alice", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Body != "hello" || history[0].ID != msg.ID {
		t.Fatalf("history should return the decrypted message, got %+v", history)
	}
	if history[0].IsRead {
		t.Fatal("undelivered message must still be unread")
	}
}

func TestMarkReadOnlyByReceiver(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, registry := newTestService(t, ds, time.Second)

	aliceConn := &fakeConn{id: "c1", userID: "alice"}
	registry.Register(aliceConn)

	msg, _, err := svc.Send(context.Background(), "alice", "bob", "hello", "", "")
	if err != nil {
		t.Fatal(err)
	}

	// A third party, and the sender, are successful no-ops.
	for _, requester := range []string{"mallory", "alice"} {
		if err := svc.MarkRead(context.Background(), msg.ID, requester); err != nil {
			t.Fatalf("markRead by %s must not error: %v", requester, err)
		}
		stored, _ := ds.GetMessage(context.Background(), msg.ID)
		if stored.IsRead {
			t.Fatalf("markRead by %s must not change the message", requester)
		}
	}

	// The true receiver flips it, once.
	if err := svc.MarkRead(context.Background(), msg.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	stored, _ := ds.GetMessage(context.Background(), msg.ID)
	if !stored.IsRead || stored.ReadAt == nil {
		t.Fatal("receiver markRead should set isRead and readAt")
	}
	firstReadAt := *stored.ReadAt

	if len(aliceConn.byEvent(models.EventMessageRead)) != 1 {
		t.Fatal("sender should be notified exactly once")
	}

	// Idempotent on repeat.
	if err := svc.MarkRead(context.Background(), msg.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	stored, _ = ds.GetMessage(context.Background(), msg.ID)
	if !stored.ReadAt.Equal(firstReadAt) {
		t.Fatal("repeated markRead must not move readAt")
	}
	if len(aliceConn.byEvent(models.EventMessageRead)) != 1 {
		t.Fatal("repeated markRead must not re-notify")
	}
}

func TestMarkReadUnknownMessage(t *testing.T) {
	ds := newMemStore("alice")
	svc, _ := newTestService(t, ds, time.Second)

	if err := svc.MarkRead(context.Background(), "no-such-id", "alice"); err != nil {
		t.Fatalf("unknown message must be a successful no-op: %v", err)
	}
}

func TestTypingRelay(t *testing.T) {
	ds := newMemStore("alice", "bob")
	svc, registry := newTestService(t, ds, time.Second)

	bobConn := &fakeConn{id: "c1", userID: "bob"}
	registry.Register(bobConn)

	svc.Typing("alice", "bob", true)

	got := bobConn.byEvent(models.EventTyping)
	if len(got) != 1 {
		t.Fatalf("expected one typing event, got %d", len(got))
	}
	p := got[0].data.(models.TypingPayload)
	if p.SenderID != "alice" || !p.IsTyping {
		t.Fatalf("unexpected payload %+v", p)
	}
	if n, _ := ds.CountMessages(context.Background()); n != 0 {
		t.Fatal("typing must not persist anything")
	}
}
