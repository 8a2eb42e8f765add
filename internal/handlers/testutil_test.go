package handlers

import (
	"fmt"
	"sync"
	"testing"

	"chat-server/internal/models"
)

// fakeConn records every payload written to it, standing in for a real
// websocket connection.
type fakeConn struct {
	mu     sync.Mutex
	events []models.Event
	closed bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ev, ok := v.(models.Event)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", v)
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Events() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Event(nil), c.events...)
}

func (c *fakeConn) Count(eventName string) int {
	n := 0
	for _, ev := range c.Events() {
		if ev.Event == eventName {
			n++
		}
	}
	return n
}

func (c *fakeConn) Last(eventName string) (models.Event, bool) {
	events := c.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Event == eventName {
			return events[i], true
		}
	}
	return models.Event{}, false
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// newTestSession registers a session for userID on the hub and subscribes
// it to the given conversations.
func newTestSession(t *testing.T, hub *Hub, userID int, username string, convIDs ...string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := NewSession(fmt.Sprintf("conn-%d-%s", userID, username), userID, username, conn)
	hub.Register(s)
	if len(convIDs) > 0 {
		hub.Subscribe(s, convIDs...)
	}
	return s, conn
}
