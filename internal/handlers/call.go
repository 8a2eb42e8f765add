package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"chat-server/internal/models"

	"github.com/google/uuid"
)

type CallState int

const (
	CallIdle CallState = iota
	// CallRinging covers the pre-answer window: the callee is ringing, the
	// caller is connecting.
	CallRinging
	CallActive
	CallEnded
)

// CallSession is the server-side view of one call negotiation. It is never
// persisted; it exists so disconnects and busy checks can be resolved
// without trusting the clients.
type CallSession struct {
	ID          string
	Caller      int
	Callee      int
	IsAudioOnly bool
	State       CallState

	ringTimer *time.Timer
}

func (cs *CallSession) peerOf(userID int) int {
	if userID == cs.Caller {
		return cs.Callee
	}
	return cs.Caller
}

// CallManager relays call-control messages point-to-point through the
// presence registry and owns the call-state machine. SDP offers/answers and
// ICE candidates pass through as opaque blobs.
type CallManager struct {
	mu          sync.Mutex
	hub         *Hub
	sessions    map[int]*CallSession // both parties key the same session
	ringTimeout time.Duration
}

func NewCallManager(hub *Hub, ringTimeout time.Duration) *CallManager {
	return &CallManager{
		hub:         hub,
		sessions:    make(map[int]*CallSession),
		ringTimeout: ringTimeout,
	}
}

// Initiate relays an offer to the callee. If the callee has no registry
// entry the initiation is dropped without a session: the caller hears
// nothing further and recovers with its own timeout. If either party is
// already in a call the caller gets an immediate busy rejection and the
// existing session is untouched.
func (m *CallManager) Initiate(caller *Session, calleeID int, offer json.RawMessage, isAudioOnly bool) {
	m.mu.Lock()

	if m.busyLocked(calleeID) || m.busyLocked(caller.UserID) {
		m.mu.Unlock()
		_ = caller.Send(models.Event{
			Event:  models.EventCallRejected,
			From:   calleeID,
			Reason: "busy",
		})
		return
	}

	callee, ok := m.hub.Lookup(calleeID)
	if !ok {
		m.mu.Unlock()
		log.Printf("call-initiate dropped: user %d not reachable", calleeID)
		return
	}

	cs := &CallSession{
		ID:          uuid.New().String(),
		Caller:      caller.UserID,
		Callee:      calleeID,
		IsAudioOnly: isAudioOnly,
		State:       CallRinging,
	}
	m.sessions[cs.Caller] = cs
	m.sessions[cs.Callee] = cs
	cs.ringTimer = time.AfterFunc(m.ringTimeout, func() { m.ringTimedOut(cs) })
	m.mu.Unlock()

	_ = callee.Send(models.Event{
		Event:       models.EventCallIncoming,
		From:        caller.UserID,
		FromName:    caller.Username,
		Offer:       offer,
		IsAudioOnly: isAudioOnly,
	})
}

// Accept relays the callee's answer back to the caller; both sides go
// active and the ring timer is cancelled.
func (m *CallManager) Accept(callee *Session, callerID int, answer json.RawMessage) {
	m.mu.Lock()
	cs := m.sessions[callee.UserID]
	if cs == nil || cs.Callee != callee.UserID || cs.State != CallRinging {
		m.mu.Unlock()
		return
	}
	cs.State = CallActive
	cs.ringTimer.Stop()
	m.mu.Unlock()

	m.hub.SendToUser(callerID, models.Event{
		Event:  models.EventCallAccepted,
		From:   callee.UserID,
		Answer: answer,
	})
}

// Reject ends the session and forwards the rejection to the other side.
func (m *CallManager) Reject(from *Session, toID int, reason string) {
	m.endSessionOf(from.UserID)
	m.hub.SendToUser(toID, models.Event{
		Event:  models.EventCallRejected,
		From:   from.UserID,
		Reason: reason,
	})
}

// Candidate forwards an ICE candidate unconditionally: no buffering, no
// validation. A candidate arriving outside an active negotiation is inert
// on the receiving end.
func (m *CallManager) Candidate(from *Session, toID int, candidate json.RawMessage) {
	m.hub.SendToUser(toID, models.Event{
		Event:     models.EventICECandidate,
		From:      from.UserID,
		Candidate: candidate,
	})
}

// HangUp ends the caller-side session and forwards the hang-up. toID may be
// zero, in which case the peer recorded in the session is used.
func (m *CallManager) HangUp(from *Session, toID int) {
	m.mu.Lock()
	if cs := m.sessions[from.UserID]; cs != nil && toID == 0 {
		toID = cs.peerOf(from.UserID)
	}
	m.mu.Unlock()

	m.endSessionOf(from.UserID)
	if toID != 0 {
		m.hub.SendToUser(toID, models.Event{
			Event: models.EventCallHangUp,
			From:  from.UserID,
		})
	}
}

// HandleDisconnect synthesizes a hang-up toward the peer when a party to an
// in-progress call drops its connection.
func (m *CallManager) HandleDisconnect(userID int) {
	m.mu.Lock()
	cs := m.sessions[userID]
	m.mu.Unlock()
	if cs == nil {
		return
	}

	peer := cs.peerOf(userID)
	m.endSessionOf(userID)
	m.hub.SendToUser(peer, models.Event{
		Event: models.EventCallHangUp,
		From:  userID,
	})
}

// StateOf reports the call state a user is currently in.
func (m *CallManager) StateOf(userID int) CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs := m.sessions[userID]; cs != nil {
		return cs.State
	}
	return CallIdle
}

// busyLocked must be called with m.mu held.
func (m *CallManager) busyLocked(userID int) bool {
	cs := m.sessions[userID]
	return cs != nil && cs.State != CallEnded
}

func (m *CallManager) endSessionOf(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := m.sessions[userID]
	if cs == nil {
		return
	}
	cs.State = CallEnded
	if cs.ringTimer != nil {
		cs.ringTimer.Stop()
	}
	if m.sessions[cs.Caller] == cs {
		delete(m.sessions, cs.Caller)
	}
	if m.sessions[cs.Callee] == cs {
		delete(m.sessions, cs.Callee)
	}
}

// ringTimedOut ends a call nobody answered and tells both sides.
func (m *CallManager) ringTimedOut(cs *CallSession) {
	m.mu.Lock()
	if cs.State != CallRinging {
		m.mu.Unlock()
		return
	}
	cs.State = CallEnded
	if m.sessions[cs.Caller] == cs {
		delete(m.sessions, cs.Caller)
	}
	if m.sessions[cs.Callee] == cs {
		delete(m.sessions, cs.Callee)
	}
	m.mu.Unlock()

	timeout := models.Event{Event: models.EventCallTimeout}
	m.hub.SendToUser(cs.Caller, timeout)
	m.hub.SendToUser(cs.Callee, timeout)
}
