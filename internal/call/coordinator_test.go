package call

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
)

func newCoordinator(t *testing.T, ringTimeout time.Duration) (*Coordinator, *presence.Registry) {
	t.Helper()
	registry := presence.NewRegistry(zerolog.Nop())
	return NewCoordinator(registry, ringTimeout, zerolog.Nop()), registry
}

func TestInitiateOfflineCallee(t *testing.T) {
	coord, registry := newCoordinator(t, time.Second)
	caller := &fakeConn{id: "c1", userID: "alice"}
	registry.Register(caller)

	coord.Initiate("alice", "bob", "room-1", KindVideo)

	got, ok := caller.last(models.EventCallFailed)
	if !ok {
		t.Fatal("caller should get call:failed for an offline callee")
	}
	if p := got.data.(models.CallEventPayload); p.Reason != "user not online" {
		t.Fatalf("unexpected reason %q", p.Reason)
	}
	if coord.Pending("room-1") {
		t.Fatal("no attempt should be registered for an offline callee")
	}
}

func TestInitiateRingsEveryCalleeConnection(t *testing.T) {
	coord, registry := newCoordinator(t, time.Second)
	bobTab1 := &fakeConn{id: "c1", userID: "bob"}
	bobTab2 := &fakeConn{id: "c2", userID: "bob"}
	registry.Register(bobTab1)
	registry.Register(bobTab2)

	coord.Initiate("alice", "bob", "room-1", KindAudio)

	for _, tab := range []*fakeConn{bobTab1, bobTab2} {
		got, ok := tab.last(models.EventCallIncoming)
		if !ok {
			t.Fatal("every callee connection should ring")
		}
		p := got.data.(models.CallEventPayload)
		if p.CallerID != "alice" || p.RoomID != "room-1" || p.CallType != KindAudio {
			t.Fatalf("unexpected payload %+v", p)
		}
	}
	if !coord.Pending("room-1") {
		t.Fatal("attempt should be pending while ringing")
	}
}

func TestAcceptNotifiesCaller(t *testing.T) {
	coord, registry := newCoordinator(t, time.Second)
	caller := &fakeConn{id: "c1", userID: "alice"}
	callee := &fakeConn{id: "c2", userID: "bob"}
	registry.Register(caller)
	registry.Register(callee)

	coord.Initiate("alice", "bob", "room-1", KindVideo)
	coord.Accept("room-1", "alice", "bob")

	got, ok := caller.last(models.EventCallAccepted)
	if !ok {
		t.Fatal("caller should learn of the accept")
	}
	if p := got.data.(models.CallEventPayload); p.CalleeID != "bob" || p.RoomID != "room-1" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if coord.Pending("room-1") {
		t.Fatal("accept should clear the attempt")
	}
}

func TestDeclineNotifiesCaller(t *testing.T) {
	coord, registry := newCoordinator(t, time.Second)
	caller := &fakeConn{id: "c1", userID: "alice"}
	callee := &fakeConn{id: "c2", userID: "bob"}
	registry.Register(caller)
	registry.Register(callee)

	coord.Initiate("alice", "bob", "room-1", KindVideo)
	coord.Decline("room-1", "alice", "bob")

	if _, ok := caller.last(models.EventCallDeclined); !ok {
		t.Fatal("caller should learn of the decline")
	}
	if coord.Pending("room-1") {
		t.Fatal("decline should clear the attempt")
	}
}

func TestRingTimeout(t *testing.T) {
	coord, registry := newCoordinator(t, 20*time.Millisecond)
	caller := &fakeConn{id: "c1", userID: "alice"}
	callee := &fakeConn{id: "c2", userID: "bob"}
	registry.Register(caller)
	registry.Register(callee)

	coord.Initiate("alice", "bob", "room-1", KindVideo)

	deadline := time.After(time.Second)
	for coord.Pending("room-1") {
		select {
		case <-deadline:
			t.Fatal("ring timer never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}

	got, ok := caller.last(models.EventCallFailed)
	if !ok {
		t.Fatal("caller should get call:failed on timeout")
	}
	if p := got.data.(models.CallEventPayload); p.Reason != "no answer" {
		t.Fatalf("unexpected reason %q", p.Reason)
	}
	if _, ok := callee.last(models.EventCallCancelled); !ok {
		t.Fatal("callee should get call:cancelled so ringing UIs stop")
	}
}

func TestCallerDisconnectCancelsRing(t *testing.T) {
	coord, registry := newCoordinator(t, time.Second)
	callee := &fakeConn{id: "c2", userID: "bob"}
	caller := &fakeConn{id: "c1", userID: "alice"}
	registry.Register(caller)
	registry.Register(callee)

	coord.Initiate("alice", "bob", "room-1", KindVideo)
	coord.CancelByUser("alice")

	got, ok := callee.last(models.EventCallCancelled)
	if !ok {
		t.Fatal("callee should stop ringing when the caller vanishes")
	}
	if p := got.data.(models.CallEventPayload); p.CallerID != "alice" || p.RoomID != "room-1" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if coord.Pending("room-1") {
		t.Fatal("cancel should clear the attempt")
	}
}

func TestAcceptAfterTimeoutStillNotifies(t *testing.T) {
	coord, registry := newCoordinator(t, 10*time.Millisecond)
	caller := &fakeConn{id: "c1", userID: "alice"}
	callee := &fakeConn{id: "c2", userID: "bob"}
	registry.Register(caller)
	registry.Register(callee)

	coord.Initiate("alice", "bob", "room-1", KindVideo)
	time.Sleep(50 * time.Millisecond)

	// Late accept races the timeout; the caller is still told, the UI
	// reconciles.
	coord.Accept("room-1", "alice", "bob")
	if _, ok := caller.last(models.EventCallAccepted); !ok {
		t.Fatal("late accept should still reach the caller")
	}
}
