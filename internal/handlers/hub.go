package handlers

import (
	"sort"
	"sync"

	"chat-server/internal/utils"
)

// Conn is the transport handle the hub writes to. *websocket.Conn satisfies
// it; tests substitute a recording fake.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session is one live connection bound to one authenticated user.
type Session struct {
	ID       string
	UserID   int
	Username string

	conn    Conn
	writeMu sync.Mutex
}

func NewSession(id string, userID int, username string, conn Conn) *Session {
	return &Session{ID: id, UserID: userID, Username: username, conn: conn}
}

// Send writes one JSON payload to the connection. Writes are serialized:
// the websocket conn is not safe for concurrent writers.
func (s *Session) Send(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Hub owns all process-wide mutable coordination state: the presence
// registry (one reachable session per user), the conversation groups, and
// the ephemeral typing sets. It is created at startup and injected into the
// handlers; there is no package-level instance.
type Hub struct {
	mu sync.RWMutex
	// userID -> the single reachable session for that user
	presence map[int]*Session
	// conversationID -> sessionID -> session
	groups map[string]map[string]*Session
	// sessionID -> set of subscribed conversation ids
	memberships map[string]map[string]bool
	// conversationID -> set of userIDs currently typing
	typing map[string]map[int]bool
}

func NewHub() *Hub {
	return &Hub{
		presence:    make(map[int]*Session),
		groups:      make(map[string]map[string]*Session),
		memberships: make(map[string]map[string]bool),
		typing:      make(map[string]map[int]bool),
	}
}

// Register makes s the reachable session for its user, returning the
// superseded session if one existed. The caller is responsible for sending
// the eviction notice and closing the old connection outside the lock.
func (h *Hub) Register(s *Session) *Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.presence[s.UserID]
	h.presence[s.UserID] = s
	h.memberships[s.ID] = make(map[string]bool)
	return old
}

// Unregister removes s from the registry and every group it joined. It is
// keyed by session identity, not user id: a connection evicted by a newer
// one must not tear down its replacement's registry entry. Returns the
// freed user id and the sessions of users who shared at least one group
// with s, for the departure announcement.
func (h *Hub) Unregister(s *Session) (int, []*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, known := h.memberships[s.ID]
	if !known {
		return 0, nil, false
	}

	peers := h.peerSessions(s)

	for convID := range h.memberships[s.ID] {
		if group, ok := h.groups[convID]; ok {
			delete(group, s.ID)
			if len(group) == 0 {
				delete(h.groups, convID)
			}
		}
		if set, ok := h.typing[convID]; ok {
			delete(set, s.UserID)
			if len(set) == 0 {
				delete(h.typing, convID)
			}
		}
	}
	delete(h.memberships, s.ID)

	if h.presence[s.UserID] == s {
		delete(h.presence, s.UserID)
		return s.UserID, peers, true
	}
	// Evicted session: the user is still reachable through its replacement.
	return 0, nil, false
}

// Lookup returns the reachable session for a user, if any. Absence means
// "not reachable for real-time delivery".
func (h *Hub) Lookup(userID int) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.presence[userID]
	return s, ok
}

func (h *Hub) IsOnline(userID int) bool {
	_, ok := h.Lookup(userID)
	return ok
}

// OnlineUserIDs returns the ids of all currently reachable users, sorted.
func (h *Hub) OnlineUserIDs() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.presence))
	for id := range h.presence {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Subscribe adds s to the broadcast group for each conversation id.
func (h *Hub) Subscribe(s *Session, convIDs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, convID := range convIDs {
		if _, ok := h.groups[convID]; !ok {
			h.groups[convID] = make(map[string]*Session)
		}
		h.groups[convID][s.ID] = s
		if h.memberships[s.ID] == nil {
			h.memberships[s.ID] = make(map[string]bool)
		}
		h.memberships[s.ID][convID] = true
	}
}

func (h *Hub) Unsubscribe(s *Session, convID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if group, ok := h.groups[convID]; ok {
		delete(group, s.ID)
		if len(group) == 0 {
			delete(h.groups, convID)
		}
	}
	delete(h.memberships[s.ID], convID)
}

// SubscribeUser joins the reachable session of userID, if any, to the
// group. Used by the HTTP surface when a conversation is created so invited
// members start receiving its events without reconnecting.
func (h *Hub) SubscribeUser(userID int, convID string) bool {
	h.mu.RLock()
	s, ok := h.presence[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	h.Subscribe(s, convID)
	return true
}

// Broadcast sends payload to every session in the conversation group except
// excludeSessionID. The member snapshot is taken under the read lock; the
// writes happen outside it so a slow client cannot stall the hub.
func (h *Hub) Broadcast(convID string, payload interface{}, excludeSessionID string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.groups[convID]))
	for id, s := range h.groups[convID] {
		if id == excludeSessionID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		utils.LogError(s.Send(payload), "Broadcast")
	}
}

// SendToUser delivers payload to a user's reachable session. Returns false
// if the user has no registry entry; the event is then simply dropped.
func (h *Hub) SendToUser(userID int, payload interface{}) bool {
	s, ok := h.Lookup(userID)
	if !ok {
		return false
	}
	utils.LogError(s.Send(payload), "SendToUser")
	return true
}

// Peers returns the reachable sessions of users sharing at least one
// conversation group with s, one per user. Presence announcements are
// scoped to this set rather than to every connection.
func (h *Hub) Peers(s *Session) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.peerSessions(s)
}

// peerSessions must be called with h.mu held.
func (h *Hub) peerSessions(s *Session) []*Session {
	seen := make(map[int]bool)
	var peers []*Session
	for convID := range h.memberships[s.ID] {
		for _, member := range h.groups[convID] {
			if member.UserID == s.UserID || seen[member.UserID] {
				continue
			}
			seen[member.UserID] = true
			peers = append(peers, member)
		}
	}
	return peers
}

// StartTyping records userID as typing in the conversation. Entries live
// only in memory and only until StopTyping or disconnect; display timeouts
// are the clients' responsibility.
func (h *Hub) StartTyping(convID string, userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.typing[convID]; !ok {
		h.typing[convID] = make(map[int]bool)
	}
	h.typing[convID][userID] = true
}

func (h *Hub) StopTyping(convID string, userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.typing[convID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(h.typing, convID)
		}
	}
}

// TypingUsers returns who is currently typing in a conversation, sorted.
func (h *Hub) TypingUsers(convID string) []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.typing[convID]))
	for id := range h.typing[convID] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
