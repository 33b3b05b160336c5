// Package call implements the two-party call handshake and the signaling
// room relay used to establish a direct WebRTC media path. The server
// forwards SDP and ICE payloads verbatim and never interprets them.
package call

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
)

const roomCapacity = 2

// Rooms is the capacity-2 rendezvous keyed by room identifier. Members
// are live connections in join order; a room with zero members is
// deleted, so rejoining the same identifier starts fresh.
type Rooms struct {
	mu      sync.Mutex
	members map[string][]presence.Conn // roomID -> join-ordered members
	joined  map[string]map[string]bool // connID -> set of roomIDs
	log     zerolog.Logger
}

func NewRooms(log zerolog.Logger) *Rooms {
	return &Rooms{
		members: make(map[string][]presence.Conn),
		joined:  make(map[string]map[string]bool),
		log:     log.With().Str("component", "rooms").Logger(),
	}
}

// Join adds c to the room. A full room replies webrtc:full to the joiner
// and changes nothing. Otherwise the joiner gets webrtc:joined, an
// existing member gets webrtc:peer-joined, and when the room reaches two
// members both get webrtc:ready while the SECOND joiner alone gets
// webrtc:init. The second joiner creating the offer is a fixed tie-break:
// reordering these emissions would reintroduce offer glare.
func (r *Rooms) Join(c presence.Conn, roomID string) {
	r.mu.Lock()
	current := r.members[roomID]

	for _, m := range current {
		if m.ID() == c.ID() {
			r.mu.Unlock()
			c.Send(models.EventRTCJoined, models.RoomPayload{RoomID: roomID})
			return
		}
	}

	if len(current) >= roomCapacity {
		r.mu.Unlock()
		metrics.RoomsFull.Inc()
		c.Send(models.EventRTCFull, models.RoomPayload{RoomID: roomID})
		return
	}

	r.members[roomID] = append(current, c)
	if r.joined[c.ID()] == nil {
		r.joined[c.ID()] = make(map[string]bool)
	}
	r.joined[c.ID()][roomID] = true
	peers := append([]presence.Conn(nil), current...)
	full := len(r.members[roomID]) == roomCapacity
	r.mu.Unlock()

	metrics.RoomJoins.Inc()
	r.log.Debug().Str("room", roomID).Str("conn", c.ID()).Bool("ready", full).Msg("joined")

	payload := models.RoomPayload{RoomID: roomID}
	c.Send(models.EventRTCJoined, payload)
	for _, p := range peers {
		p.Send(models.EventRTCPeerJoined, payload)
	}
	if full {
		for _, p := range peers {
			p.Send(models.EventRTCReady, payload)
		}
		c.Send(models.EventRTCReady, payload)
		c.Send(models.EventRTCInit, payload)
	}
}

// Relay forwards a signaling payload to the other member(s) of the room.
// The payload is opaque; sdp and candidate pass through untouched.
func (r *Rooms) Relay(from presence.Conn, roomID, event string, sdp, candidate json.RawMessage) {
	r.mu.Lock()
	var peers []presence.Conn
	for _, m := range r.members[roomID] {
		if m.ID() != from.ID() {
			peers = append(peers, m)
		}
	}
	r.mu.Unlock()

	payload := models.SignalPayload{RoomID: roomID, SDP: sdp, Candidate: candidate}
	for _, p := range peers {
		p.Send(event, payload)
	}
}

// Leave removes c from the room and tells the remaining member(s) with
// webrtc:peer-left so they can tear down their media pipeline.
func (r *Rooms) Leave(c presence.Conn, roomID string) {
	r.mu.Lock()
	peers := r.removeLocked(c, roomID)
	r.mu.Unlock()

	for _, p := range peers {
		p.Send(models.EventRTCPeerLeft, models.RoomPayload{RoomID: roomID})
	}
}

// LeaveAll removes c from every room it joined, emitting webrtc:peer-left
// once per room. Called on disconnect.
func (r *Rooms) LeaveAll(c presence.Conn) {
	r.mu.Lock()
	var notify []struct {
		peer   presence.Conn
		roomID string
	}
	for roomID := range r.joined[c.ID()] {
		for _, p := range r.removeLocked(c, roomID) {
			notify = append(notify, struct {
				peer   presence.Conn
				roomID string
			}{p, roomID})
		}
	}
	delete(r.joined, c.ID())
	r.mu.Unlock()

	for _, n := range notify {
		n.peer.Send(models.EventRTCPeerLeft, models.RoomPayload{RoomID: n.roomID})
	}
}

// Members returns a snapshot of the room's member connections.
func (r *Rooms) Members(roomID string) []presence.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]presence.Conn(nil), r.members[roomID]...)
}

// removeLocked detaches c from roomID and returns the remaining members.
// Caller holds r.mu.
func (r *Rooms) removeLocked(c presence.Conn, roomID string) []presence.Conn {
	current := r.members[roomID]
	found := false
	var rest []presence.Conn
	for _, m := range current {
		if m.ID() == c.ID() {
			found = true
			continue
		}
		rest = append(rest, m)
	}
	if !found {
		return nil
	}

	if len(rest) == 0 {
		delete(r.members, roomID)
	} else {
		r.members[roomID] = rest
	}
	if set := r.joined[c.ID()]; set != nil {
		delete(set, roomID)
		if len(set) == 0 {
			delete(r.joined, c.ID())
		}
	}
	return append([]presence.Conn(nil), rest...)
}
