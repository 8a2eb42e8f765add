package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chat-server/internal/models"
	"chat-server/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventFixture(t *testing.T) (*EventHandler, *store.MockStore, *Hub) {
	t.Helper()
	hub := NewHub()
	st := store.NewMockStore()
	calls := NewCallManager(hub, time.Minute)
	return NewEventHandler(hub, calls, st), st, hub
}

func seedConversation(t *testing.T, st *store.MockStore, id string, participants ...int) {
	t.Helper()
	conv := &models.Conversation{
		ID:           id,
		Type:         models.ConversationGroup,
		Participants: participants,
	}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
}

func seedMessage(t *testing.T, st *store.MockStore, id, convID string, senderID int, status string) {
	t.Helper()
	msg := &models.Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     fmt.Sprintf("user-%d", senderID),
		Content:        "seed",
		Type:           models.MessageText,
		Status:         status,
	}
	require.NoError(t, st.CreateMessage(context.Background(), msg))
}

func TestSendMessagefanout(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	s1, c1 := newTestSession(t, hub, 1, "alice", "c1")
	_, c2 := newTestSession(t, hub, 2, "bob", "c1")
	_, c3 := newTestSession(t, hub, 3, "carol", "c2")

	h.Handle(s1, []byte(`{"event":"send-message","conversation":"c1","content":"hi"}`))

	for _, conn := range []*fakeConn{c1, c2} {
		require.Equal(t, 1, conn.Count(models.EventMessageReceived), "subscribed inboxes get it exactly once")
		ev, _ := conn.Last(models.EventMessageReceived)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hi", ev.Message.Content)
		assert.Equal(t, models.StatusSent, ev.Message.Status)
		assert.Equal(t, models.MessageText, ev.Message.Type)
		assert.Equal(t, 1, ev.Message.SenderID)
		assert.Equal(t, "alice", ev.Message.SenderName)
	}
	assert.Equal(t, 0, c3.Count(models.EventMessageReceived))

	// Exactly one persisted record, and the last-message pointer moved.
	messages, err := st.MessagesByConversation(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	conv, err := st.ConversationByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, messages[0].ID, conv.LastMessageID)
}

func TestSendMessageMediaTypes(t *testing.T) {
	tests := []struct {
		media     string
		mediaType string
		want      string
	}{
		{"", "", models.MessageText},
		{"pic.png", "image/png", models.MessageImage},
		{"clip.mp4", "video/mp4", models.MessageVideo},
		{"note.ogg", "audio/ogg", models.MessageAudio},
		{"doc.pdf", "application/pdf", models.MessageFile},
		{"blob.bin", "", models.MessageFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, messageTypeForMedia(tt.media, tt.mediaType), "media=%q type=%q", tt.media, tt.mediaType)
	}
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	s1, c1 := newTestSession(t, hub, 1, "alice", "c1")
	_, c2 := newTestSession(t, hub, 2, "bob", "c1")

	st.CreateMessageErr = errors.New("disk full")
	h.Handle(s1, []byte(`{"event":"send-message","conversation":"c1","content":"hi"}`))

	// Aborted: error to the originator only, no broadcast to the group.
	assert.Equal(t, 1, c1.Count(models.EventError))
	assert.Equal(t, 0, c1.Count(models.EventMessageReceived))
	assert.Equal(t, 0, c2.Count(models.EventMessageReceived))
	assert.Equal(t, 0, c2.Count(models.EventError))
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	h, _, hub := newEventFixture(t)
	s1, c1 := newTestSession(t, hub, 1, "alice", "c1")

	h.Handle(s1, []byte(`{"event":"send-message","conversation":"c1"}`))
	assert.Equal(t, 1, c1.Count(models.EventError))

	h.Handle(s1, []byte(`{"event":"send-message","content":"hi"}`))
	assert.Equal(t, 2, c1.Count(models.EventError))
}

func TestMarkReadExplicitSubset(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	seedMessage(t, st, "m1", "c1", 1, models.StatusSent)
	seedMessage(t, st, "m2", "c1", 1, models.StatusSent)
	seedMessage(t, st, "m3", "c1", 2, models.StatusSent)
	_, c1 := newTestSession(t, hub, 1, "alice", "c1")
	s2, _ := newTestSession(t, hub, 2, "bob", "c1")

	h.Handle(s2, []byte(`{"event":"mark-read","conversation":"c1","message_ids":["m1"]}`))

	read, _ := c1.Last(models.EventMessagesRead)
	assert.Equal(t, []string{"m1"}, read.MessageIDs)
	assert.Equal(t, models.StatusRead, read.Status)
	assert.Equal(t, "c1", read.Conversation)

	m1, _ := st.MessageByID(context.Background(), "m1")
	m2, _ := st.MessageByID(context.Background(), "m2")
	m3, _ := st.MessageByID(context.Background(), "m3")
	assert.Equal(t, models.StatusRead, m1.Status, "listed id advances")
	assert.Equal(t, models.StatusSent, m2.Status, "unlisted id stays put")
	assert.Equal(t, models.StatusSent, m3.Status, "acknowledger's own message stays put")
}

func TestMarkReadIdempotentReplay(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	seedMessage(t, st, "m1", "c1", 1, models.StatusSent)
	_, c1 := newTestSession(t, hub, 1, "alice", "c1")
	s2, c2 := newTestSession(t, hub, 2, "bob", "c1")

	ack := []byte(`{"event":"mark-read","conversation":"c1","message_ids":["m1"]}`)
	h.Handle(s2, ack)
	h.Handle(s2, ack)

	// Same broadcast both times, no error on the replay.
	assert.Equal(t, 2, c1.Count(models.EventMessagesRead))
	read, _ := c1.Last(models.EventMessagesRead)
	assert.Equal(t, []string{"m1"}, read.MessageIDs)
	assert.Equal(t, 0, c2.Count(models.EventError))
}

func TestMarkReadBulkFallback(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	seedMessage(t, st, "m1", "c1", 1, models.StatusSent)
	seedMessage(t, st, "m2", "c1", 1, models.StatusDelivered)
	seedMessage(t, st, "m3", "c1", 1, models.StatusRead)
	seedMessage(t, st, "m4", "c1", 2, models.StatusSent)
	_, c1 := newTestSession(t, hub, 1, "alice", "c1")
	s2, _ := newTestSession(t, hub, 2, "bob", "c1")

	h.Handle(s2, []byte(`{"event":"mark-read","conversation":"c1"}`))

	read, _ := c1.Last(models.EventMessagesRead)
	assert.ElementsMatch(t, []string{"m1", "m2"}, read.MessageIDs, "every eligible message and nothing else")

	m4, _ := st.MessageByID(context.Background(), "m4")
	assert.Equal(t, models.StatusSent, m4.Status)
}

func TestMarkReadFailureSurfacedToAckerOnly(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)
	_, c1 := newTestSession(t, hub, 1, "alice", "c1")
	s2, c2 := newTestSession(t, hub, 2, "bob", "c1")

	st.MarkReadErr = errors.New("db down")
	h.Handle(s2, []byte(`{"event":"mark-read","conversation":"c1","message_ids":["m1"]}`))

	assert.Equal(t, 1, c2.Count(models.EventError))
	assert.Equal(t, 0, c1.Count(models.EventMessagesRead))
	assert.Equal(t, 0, c1.Count(models.EventError))
}

func TestTypingRelayExcludesOriginator(t *testing.T) {
	h, _, hub := newEventFixture(t)
	s1, c1 := newTestSession(t, hub, 1, "alice", "c1")
	_, c2 := newTestSession(t, hub, 2, "bob", "c1")

	h.Handle(s1, []byte(`{"event":"typing-start","conversation":"c1"}`))

	assert.Equal(t, 0, c1.Count(models.EventTyping))
	typing, ok := c2.Last(models.EventTyping)
	require.True(t, ok)
	assert.Equal(t, 1, typing.From)
	assert.Equal(t, "c1", typing.Conversation)
	assert.Equal(t, []int{1}, hub.TypingUsers("c1"))

	h.Handle(s1, []byte(`{"event":"typing-stop","conversation":"c1"}`))

	assert.Equal(t, 1, c2.Count(models.EventStopTyping))
	assert.Empty(t, hub.TypingUsers("c1"), "start then stop leaves no residual entry")
}

func TestPresenceLookup(t *testing.T) {
	h, _, hub := newEventFixture(t)
	s1, c1 := newTestSession(t, hub, 1, "alice")
	newTestSession(t, hub, 2, "bob")

	h.Handle(s1, []byte(`{"event":"presence"}`))

	online, ok := c1.Last(models.EventOnlineUsers)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, online.Users)
}

func TestMalformedEventIgnored(t *testing.T) {
	h, _, hub := newEventFixture(t)
	s1, c1 := newTestSession(t, hub, 1, "alice", "c1")

	h.Handle(s1, []byte(`{not json`))
	h.Handle(s1, []byte(`{"event":"call-initiate"}`))
	h.Handle(s1, []byte(`{"event":"no-such-event"}`))

	assert.Empty(t, c1.Events())
}

func TestConnectSubscribesAndAnnounces(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)

	bobSess, bobConn := newTestSession(t, hub, 2, "bob")
	hub.Subscribe(bobSess, "c1")

	conn := &fakeConn{}
	s := NewSession("conn-alice", 1, "alice", conn)
	h.connect(s)

	// Subscriptions complete before the read loop: a broadcast right after
	// connect reaches the new connection.
	hub.Broadcast("c1", models.Event{Event: "ping"}, "")
	assert.Equal(t, 1, conn.Count("ping"))

	// Arrival announced to group peers only, and the newcomer got its
	// welcome plus the online users list.
	announced, ok := bobConn.Last(models.EventUserConnected)
	require.True(t, ok)
	assert.Equal(t, 1, announced.UserID)
	assert.Equal(t, 1, conn.Count(models.EventConnected))
	online, _ := conn.Last(models.EventOnlineUsers)
	assert.Equal(t, []int{1, 2}, online.Users)
}

func TestConnectEvictsWithNotice(t *testing.T) {
	h, st, _ := newEventFixture(t)
	seedConversation(t, st, "c1", 1)

	oldConn := &fakeConn{}
	old := NewSession("conn-old", 1, "alice", oldConn)
	h.connect(old)

	newConn := &fakeConn{}
	replacement := NewSession("conn-new", 1, "alice", newConn)
	h.connect(replacement)

	assert.Equal(t, 1, oldConn.Count(models.EventSessionReplaced))
	assert.True(t, oldConn.Closed())
	assert.Equal(t, 0, newConn.Count(models.EventSessionReplaced))
}

func TestDisconnectAnnouncesAndTearsDownCall(t *testing.T) {
	h, st, hub := newEventFixture(t)
	seedConversation(t, st, "c1", 1, 2)

	aliceConn := &fakeConn{}
	alice := NewSession("conn-alice", 1, "alice", aliceConn)
	h.connect(alice)
	bobConn := &fakeConn{}
	bob := NewSession("conn-bob", 2, "bob", bobConn)
	h.connect(bob)

	h.calls.Initiate(alice, 2, []byte(`{}`), false)
	h.calls.Accept(bob, 1, []byte(`{}`))

	h.disconnect(alice)

	hangup, ok := bobConn.Last(models.EventCallHangUp)
	require.True(t, ok, "peer learns the call ended with the connection")
	assert.Equal(t, 1, hangup.From)

	departed, ok := bobConn.Last(models.EventUserDisconnected)
	require.True(t, ok)
	assert.Equal(t, 1, departed.UserID)

	_, ok = hub.Lookup(1)
	assert.False(t, ok)
}

func TestOfflineCalleeScenario(t *testing.T) {
	// A calls B while B is offline; A hears nothing within the window.
	h, _, hub := newEventFixture(t)
	alice, aliceConn := newTestSession(t, hub, 1, "alice")

	h.Handle(alice, []byte(`{"event":"call-initiate","to":2,"offer":{"sdp":"x"}}`))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, aliceConn.Count(models.EventCallAccepted))
	assert.Equal(t, 0, aliceConn.Count(models.EventCallRejected))
	assert.NotEqual(t, CallActive, h.calls.StateOf(1))
}
