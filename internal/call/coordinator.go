package call

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
)

// DefaultRingTimeout bounds how long an invitation can ring before the
// attempt is abandoned on both ends.
const DefaultRingTimeout = 60 * time.Second

// Call kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

type phase int

const (
	phaseInvited phase = iota
	phaseAccepted
	phaseDeclined
	phaseTimedOut
)

// attempt is one in-flight call invitation, keyed by room identifier.
// It exists from initiate until accept/decline/timeout/cleanup and is
// never persisted.
type attempt struct {
	roomID   string
	callerID string
	calleeID string
	kind     string
	phase    phase
	timer    *time.Timer
}

// Coordinator drives the call-invitation handshake. Media never passes
// through it: accept only clears the way for both parties to join the
// signaling room under the same room identifier.
type Coordinator struct {
	registry    *presence.Registry
	ringTimeout time.Duration
	log         zerolog.Logger

	mu      sync.Mutex
	pending map[string]*attempt // roomID -> invited attempt
}

func NewCoordinator(registry *presence.Registry, ringTimeout time.Duration, log zerolog.Logger) *Coordinator {
	if ringTimeout <= 0 {
		ringTimeout = DefaultRingTimeout
	}
	return &Coordinator{
		registry:    registry,
		ringTimeout: ringTimeout,
		log:         log.With().Str("component", "call").Logger(),
		pending:     make(map[string]*attempt),
	}
}

// Initiate starts a call attempt. A callee with no live connection fails
// immediately with call:failed back to the caller; there is no retry and
// no queuing. Otherwise every callee connection gets call:incoming and a
// ring timer is armed.
func (c *Coordinator) Initiate(callerID, calleeID, roomID, kind string) {
	if kind != KindAudio && kind != KindVideo {
		kind = KindVideo
	}

	if !c.registry.IsOnline(calleeID) {
		metrics.CallFailures.WithLabelValues("offline").Inc()
		c.log.Debug().Str("caller", callerID).Str("callee", calleeID).Msg("callee offline")
		c.registry.SendToUser(callerID, models.EventCallFailed, models.CallEventPayload{
			CalleeID: calleeID,
			RoomID:   roomID,
			Reason:   "user not online",
		})
		return
	}

	a := &attempt{
		roomID:   roomID,
		callerID: callerID,
		calleeID: calleeID,
		kind:     kind,
		phase:    phaseInvited,
	}
	a.timer = time.AfterFunc(c.ringTimeout, func() { c.timeout(roomID) })

	c.mu.Lock()
	if old := c.pending[roomID]; old != nil {
		old.timer.Stop()
	}
	c.pending[roomID] = a
	c.mu.Unlock()

	metrics.CallsInitiated.WithLabelValues(kind).Inc()
	c.registry.SendToUser(calleeID, models.EventCallIncoming, models.CallEventPayload{
		CallerID: callerID,
		RoomID:   roomID,
		CallType: kind,
	})
}

// Accept resolves the invitation: the caller's connections all learn the
// callee accepted. Both parties then independently join the signaling
// room with the same identifier.
func (c *Coordinator) Accept(roomID, callerID, calleeID string) {
	c.resolve(roomID, phaseAccepted)
	c.registry.SendToUser(callerID, models.EventCallAccepted, models.CallEventPayload{
		CalleeID: calleeID,
		RoomID:   roomID,
	})
}

// Decline resolves the invitation negatively.
func (c *Coordinator) Decline(roomID, callerID, calleeID string) {
	if c.resolve(roomID, phaseDeclined) {
		metrics.CallFailures.WithLabelValues("declined").Inc()
	}
	c.registry.SendToUser(callerID, models.EventCallDeclined, models.CallEventPayload{
		CalleeID: calleeID,
		RoomID:   roomID,
	})
}

// CancelByUser drops pending attempts initiated by userID. Called when
// the caller's last connection goes away mid-ring so the callee does not
// keep ringing for a caller that is gone.
func (c *Coordinator) CancelByUser(userID string) {
	c.mu.Lock()
	var cancelled []*attempt
	for roomID, a := range c.pending {
		if a.callerID == userID {
			a.timer.Stop()
			delete(c.pending, roomID)
			cancelled = append(cancelled, a)
		}
	}
	c.mu.Unlock()

	for _, a := range cancelled {
		c.registry.SendToUser(a.calleeID, models.EventCallCancelled, models.CallEventPayload{
			CallerID: a.callerID,
			RoomID:   a.roomID,
		})
	}
}

// Pending reports whether roomID has an unresolved invitation.
func (c *Coordinator) Pending(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[roomID] != nil
}

// resolve removes the pending attempt and stops its timer. It reports
// whether there was an attempt to resolve; accept/decline notifications
// are sent regardless, since an invitation may have been initiated before
// a server restart or raced with the timeout.
func (c *Coordinator) resolve(roomID string, to phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := c.pending[roomID]
	if a == nil {
		return false
	}
	a.timer.Stop()
	a.phase = to
	delete(c.pending, roomID)
	return true
}

// timeout fires when neither accept nor decline arrived in time. The
// caller learns the attempt failed; the callee's connections get
// call:cancelled so ringing UIs stop.
func (c *Coordinator) timeout(roomID string) {
	c.mu.Lock()
	a := c.pending[roomID]
	if a == nil || a.phase != phaseInvited {
		c.mu.Unlock()
		return
	}
	a.phase = phaseTimedOut
	delete(c.pending, roomID)
	c.mu.Unlock()

	metrics.CallFailures.WithLabelValues("timeout").Inc()
	c.log.Debug().Str("room", roomID).Str("caller", a.callerID).Msg("call timed out")

	c.registry.SendToUser(a.callerID, models.EventCallFailed, models.CallEventPayload{
		CalleeID: a.calleeID,
		RoomID:   roomID,
		Reason:   "no answer",
	})
	c.registry.SendToUser(a.calleeID, models.EventCallCancelled, models.CallEventPayload{
		CallerID: a.callerID,
		RoomID:   roomID,
	})
}
