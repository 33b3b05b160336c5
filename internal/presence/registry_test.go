package presence

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type fakeConn struct {
	id     string
	userID string

	mu     sync.Mutex
	events []string
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(event string, data any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return true
}

func (f *fakeConn) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestRegisterDeregister(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	a1 := &fakeConn{id: "c1", userID: "alice"}
	a2 := &fakeConn{id: "c2", userID: "alice"}
	r.Register(a1)
	r.Register(a2)

	if !r.IsOnline("alice") {
		t.Fatal("alice should be online")
	}
	if n := len(r.Connections("alice")); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	if last := r.Deregister(a1); last {
		t.Fatal("alice still has a connection, not last")
	}
	if last := r.Deregister(a2); !last {
		t.Fatal("expected last connection")
	}
	if r.IsOnline("alice") {
		t.Fatal("alice should be gone from the registry")
	}
	if len(r.Online()) != 0 {
		t.Fatal("registry should be empty")
	}
}

func TestSendToUserFansOutToAllConnections(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	tab1 := &fakeConn{id: "c1", userID: "bob"}
	tab2 := &fakeConn{id: "c2", userID: "bob"}
	r.Register(tab1)
	r.Register(tab2)

	if n := r.SendToUser("bob", "ping", nil); n != 2 {
		t.Fatalf("expected delivery to both tabs, got %d", n)
	}
	if len(tab1.received()) != 1 || len(tab2.received()) != 1 {
		t.Fatal("both connections should have received the event")
	}
}

func TestSendToOfflineUser(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	if n := r.SendToUser("ghost", "ping", nil); n != 0 {
		t.Fatalf("expected 0 deliveries, got %d", n)
	}
}

func TestBroadcastExcludesSelf(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	self := &fakeConn{id: "c1", userID: "alice"}
	other := &fakeConn{id: "c2", userID: "bob"}
	r.Register(self)
	r.Register(other)

	r.Broadcast("presence:online", nil, "c1")

	if len(self.received()) != 0 {
		t.Fatal("broadcast should skip the excluded connection")
	}
	if len(other.received()) != 1 {
		t.Fatal("broadcast should reach other connections")
	}
}
