package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"chat-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCallFixture(t *testing.T, ringTimeout time.Duration) (*Hub, *CallManager) {
	t.Helper()
	hub := NewHub()
	return hub, NewCallManager(hub, ringTimeout)
}

func TestCallInitiateUnreachableCallee(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	caller, callerConn := newTestSession(t, hub, 1, "alice")

	calls.Initiate(caller, 99, json.RawMessage(`{"sdp":"offer"}`), false)

	// No incoming-call anywhere, no rejection either: silence.
	assert.Equal(t, 0, callerConn.Count(models.EventCallIncoming))
	assert.Equal(t, 0, callerConn.Count(models.EventCallRejected))
	assert.NotEqual(t, CallActive, calls.StateOf(1))
	assert.Equal(t, CallIdle, calls.StateOf(1))
}

func TestCallAcceptFlow(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	caller, callerConn := newTestSession(t, hub, 1, "alice")
	callee, calleeConn := newTestSession(t, hub, 2, "bob")

	offer := json.RawMessage(`{"sdp":"offer"}`)
	calls.Initiate(caller, 2, offer, true)

	incoming, ok := calleeConn.Last(models.EventCallIncoming)
	require.True(t, ok)
	assert.Equal(t, 1, incoming.From)
	assert.Equal(t, "alice", incoming.FromName)
	assert.JSONEq(t, string(offer), string(incoming.Offer))
	assert.True(t, incoming.IsAudioOnly)
	assert.Equal(t, CallRinging, calls.StateOf(2))
	assert.Equal(t, CallRinging, calls.StateOf(1))

	answer := json.RawMessage(`{"sdp":"answer"}`)
	calls.Accept(callee, 1, answer)

	accepted, ok := callerConn.Last(models.EventCallAccepted)
	require.True(t, ok)
	assert.Equal(t, 2, accepted.From)
	assert.JSONEq(t, string(answer), string(accepted.Answer))
	assert.Equal(t, CallActive, calls.StateOf(1))
	assert.Equal(t, CallActive, calls.StateOf(2))
}

func TestCallBusyGlare(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	alice, _ := newTestSession(t, hub, 1, "alice")
	bob, bobConn := newTestSession(t, hub, 2, "bob")
	carol, carolConn := newTestSession(t, hub, 3, "carol")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	calls.Accept(bob, 1, json.RawMessage(`{}`))
	require.Equal(t, CallActive, calls.StateOf(2))
	incomingBefore := bobConn.Count(models.EventCallIncoming)

	calls.Initiate(carol, 2, json.RawMessage(`{}`), false)

	rejected, ok := carolConn.Last(models.EventCallRejected)
	require.True(t, ok, "second caller must receive a busy rejection")
	assert.Equal(t, "busy", rejected.Reason)
	assert.Equal(t, 2, rejected.From)

	// The active session is untouched and the callee never rang.
	assert.Equal(t, CallActive, calls.StateOf(2))
	assert.Equal(t, CallActive, calls.StateOf(1))
	assert.Equal(t, CallIdle, calls.StateOf(3))
	assert.Equal(t, incomingBefore, bobConn.Count(models.EventCallIncoming))
}

func TestCallReject(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	alice, aliceConn := newTestSession(t, hub, 1, "alice")
	bob, _ := newTestSession(t, hub, 2, "bob")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	calls.Reject(bob, 1, "declined")

	rejected, ok := aliceConn.Last(models.EventCallRejected)
	require.True(t, ok)
	assert.Equal(t, "declined", rejected.Reason)
	assert.Equal(t, CallIdle, calls.StateOf(1))
	assert.Equal(t, CallIdle, calls.StateOf(2))
}

func TestCallICERelayedOpaquely(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	alice, _ := newTestSession(t, hub, 1, "alice")
	_, bobConn := newTestSession(t, hub, 2, "bob")

	candidate := json.RawMessage(`{"candidate":"c0","sdpMid":"0"}`)
	calls.Candidate(alice, 2, candidate)

	relayed, ok := bobConn.Last(models.EventICECandidate)
	require.True(t, ok)
	assert.Equal(t, 1, relayed.From)
	assert.JSONEq(t, string(candidate), string(relayed.Candidate))
}

func TestCallHangUp(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	alice, _ := newTestSession(t, hub, 1, "alice")
	bob, bobConn := newTestSession(t, hub, 2, "bob")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	calls.Accept(bob, 1, json.RawMessage(`{}`))

	// No explicit peer id: the session's record resolves it.
	calls.HangUp(alice, 0)

	hangup, ok := bobConn.Last(models.EventCallHangUp)
	require.True(t, ok)
	assert.Equal(t, 1, hangup.From)
	assert.Equal(t, CallIdle, calls.StateOf(1))
	assert.Equal(t, CallIdle, calls.StateOf(2))
}

func TestCallDisconnectSynthesizesHangUp(t *testing.T) {
	hub, calls := newCallFixture(t, time.Minute)
	alice, _ := newTestSession(t, hub, 1, "alice")
	bob, bobConn := newTestSession(t, hub, 2, "bob")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	calls.Accept(bob, 1, json.RawMessage(`{}`))

	calls.HandleDisconnect(1)

	hangup, ok := bobConn.Last(models.EventCallHangUp)
	require.True(t, ok, "peer must be told the call ended")
	assert.Equal(t, 1, hangup.From)
	assert.Equal(t, CallIdle, calls.StateOf(2))
}

func TestCallRingTimeout(t *testing.T) {
	hub, calls := newCallFixture(t, 20*time.Millisecond)
	alice, aliceConn := newTestSession(t, hub, 1, "alice")
	_, bobConn := newTestSession(t, hub, 2, "bob")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	require.Equal(t, CallRinging, calls.StateOf(1))

	require.Eventually(t, func() bool {
		return aliceConn.Count(models.EventCallTimeout) == 1 &&
			bobConn.Count(models.EventCallTimeout) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, CallIdle, calls.StateOf(1))
	assert.Equal(t, CallIdle, calls.StateOf(2))
}

func TestCallAcceptCancelsRingTimer(t *testing.T) {
	hub, calls := newCallFixture(t, 20*time.Millisecond)
	alice, aliceConn := newTestSession(t, hub, 1, "alice")
	bob, _ := newTestSession(t, hub, 2, "bob")

	calls.Initiate(alice, 2, json.RawMessage(`{}`), false)
	calls.Accept(bob, 1, json.RawMessage(`{}`))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, aliceConn.Count(models.EventCallTimeout))
	assert.Equal(t, CallActive, calls.StateOf(1))
}
