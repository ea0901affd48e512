package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/chatter/internal/core"
	"github.com/avolkov/chatter/internal/domain"
)

func relayFixture(t *testing.T) (*Relay, *Registry, *stubStore) {
	t.Helper()
	reg := NewRegistry()
	st := newStubStore()
	calls := NewCallManager(reg)
	return NewRelay(reg, NewPresence(reg, st), calls), reg, st
}

func authenticate(t *testing.T, r *Relay, uid domain.UserID) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sess := NewSession(conn)
	r.OnFrame(context.Background(), sess, frame(t, core.TypeAuthenticate, map[string]any{"userId": uid}))
	require.True(t, sess.Authenticated())
	return sess, conn
}

func frame(t *testing.T, typ string, fields map[string]any) core.Frame {
	t.Helper()
	fields["type"] = typ
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}

func TestFramesBeforeAuthenticateDropped(t *testing.T) {
	r, reg, _ := relayFixture(t)
	receiver := &fakeConn{}
	reg.Register(2, receiver)

	sess := NewSession(&fakeConn{})
	r.OnFrame(context.Background(), sess, frame(t, core.TypeTyping, map[string]any{"conversationId": 1, "receiverId": 2}))

	assert.False(t, sess.Authenticated())
	assert.Zero(t, receiver.count())
}

func TestAuthenticateBindsAndNotifiesContacts(t *testing.T) {
	r, reg, st := relayFixture(t)
	st.link(1, 2)
	contact := &fakeConn{}
	reg.Register(2, contact)

	_, _ = authenticate(t, r, 1)

	assert.True(t, reg.Online(1))
	var got core.StatusUpdate
	contact.last(t, &got)
	assert.EqualValues(t, 1, got.UserID)
	assert.True(t, got.IsOnline)
}

func TestReauthenticateClosesEvictedConnection(t *testing.T) {
	r, reg, _ := relayFixture(t)
	_, old := authenticate(t, r, 1)
	fresh, freshConn := authenticate(t, r, 1)

	assert.True(t, old.isClosed())
	got, ok := reg.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.SignalConnection(freshConn), got)
	_ = fresh
}

func TestStaleDisconnectKeepsNewConnectionOnline(t *testing.T) {
	r, reg, st := relayFixture(t)
	st.link(1, 2)
	contact := &fakeConn{}
	reg.Register(2, contact)

	oldSess, _ := authenticate(t, r, 1)
	authenticate(t, r, 1)
	before := contact.count()

	// The old connection's read loop winds down after the reconnect.
	r.OnDisconnect(context.Background(), oldSess)

	assert.True(t, reg.Online(1))
	// No offline fan-out for a user who is still connected.
	assert.Equal(t, before, contact.count())
}

func TestDisconnectUnregistersBeforeOfflineNotification(t *testing.T) {
	r, reg, st := relayFixture(t)
	st.link(1, 2)

	sawOffline := false
	contact := &fakeConn{}
	contact.onSend = func(f core.Frame) {
		var su core.StatusUpdate
		if json.Unmarshal(f, &su) != nil || su.Type != core.TypeStatusUpdate || su.IsOnline {
			return
		}
		// The registry must already have dropped the entry when the
		// offline event reaches a contact.
		assert.False(t, reg.Online(1))
		sawOffline = true
	}
	reg.Register(2, contact)

	sess, _ := authenticate(t, r, 1)
	r.OnDisconnect(context.Background(), sess)

	assert.True(t, sawOffline)
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	r, reg, _ := relayFixture(t)
	sess, conn := authenticate(t, r, 1)
	receiver := &fakeConn{}
	reg.Register(2, receiver)

	r.OnFrame(context.Background(), sess, core.Frame(`{"type":`))
	assert.False(t, conn.isClosed())

	r.OnFrame(context.Background(), sess, frame(t, core.TypeTyping, map[string]any{"conversationId": 1, "receiverId": 2}))
	assert.Equal(t, 1, receiver.count())
}

func TestUnknownTypeDropped(t *testing.T) {
	r, _, _ := relayFixture(t)
	sess, conn := authenticate(t, r, 1)

	r.OnFrame(context.Background(), sess, frame(t, "teleport", map[string]any{}))

	assert.False(t, conn.isClosed())
	assert.Zero(t, conn.count())
}

func TestTypingForwardedVerbatim(t *testing.T) {
	r, reg, _ := relayFixture(t)
	sess, _ := authenticate(t, r, 1)
	receiver := &fakeConn{}
	reg.Register(2, receiver)

	f := frame(t, core.TypeTypingStop, map[string]any{"conversationId": 5, "receiverId": 2})
	r.OnFrame(context.Background(), sess, f)

	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	require.Len(t, receiver.frames, 1)
	assert.Equal(t, f, receiver.frames[0])
}

func TestTypingToOfflineReceiverSilentlyDropped(t *testing.T) {
	r, _, _ := relayFixture(t)
	sess, conn := authenticate(t, r, 1)

	r.OnFrame(context.Background(), sess, frame(t, core.TypeTyping, map[string]any{"conversationId": 5, "receiverId": 2}))

	// A hint has no failure surface; nothing comes back to the sender.
	assert.Zero(t, conn.count())
}

func TestReactionHintForwarded(t *testing.T) {
	r, reg, _ := relayFixture(t)
	sess, _ := authenticate(t, r, 1)
	receiver := &fakeConn{}
	reg.Register(2, receiver)

	f := frame(t, core.TypeAddReaction, map[string]any{
		"conversationId": 5,
		"receiverId":     2,
		"messageId":      77,
		"emoji":          "👍",
	})
	r.OnFrame(context.Background(), sess, f)

	receiver.mu.Lock()
	defer receiver.mu.Unlock()
	require.Len(t, receiver.frames, 1)
	assert.Equal(t, f, receiver.frames[0])
}

func TestWebRTCSignalRoutedThroughCallManager(t *testing.T) {
	r, _, _ := relayFixture(t)
	a, _ := authenticate(t, r, 1)
	b, bobConn := authenticate(t, r, 2)

	r.OnFrame(context.Background(), a, frame(t, core.TypeCallRequest, map[string]any{
		"contactId": 2, "mediaType": "video", "sessionId": "s1",
	}))
	r.OnFrame(context.Background(), b, frame(t, core.TypeCallAccepted, map[string]any{
		"contactId": 1, "sessionId": "s1",
	}))

	before := bobConn.count()
	r.OnFrame(context.Background(), a, core.Frame(`{"type":"webrtc-signal","payload":{"type":"offer","from":1,"to":2,"sessionId":"s1","payload":{"type":"offer","sdp":"v=0"}}}`))
	assert.Equal(t, before+1, bobConn.count())

	var fwd core.RTCForward
	bobConn.last(t, &fwd)
	assert.Equal(t, core.TypeWebRTCSignal, fwd.Type)
}

func TestWebRTCSignalWithMalformedDescriptionDropped(t *testing.T) {
	r, _, calls := relayFixtureWithCalls(t)
	a, _ := authenticate(t, r, 1)
	b, bobConn := authenticate(t, r, 2)

	r.OnFrame(context.Background(), a, frame(t, core.TypeCallRequest, map[string]any{
		"contactId": 2, "mediaType": "audio", "sessionId": "s1",
	}))
	_ = b
	before := bobConn.count()

	// Missing sdp field: shape check fails before the call manager runs.
	r.OnFrame(context.Background(), a, core.Frame(`{"type":"webrtc-signal","payload":{"type":"offer","from":1,"to":2,"sessionId":"s1","payload":{}}}`))

	assert.Equal(t, before, bobConn.count())
	assert.Equal(t, 1, calls.ActiveSessions())
}

func relayFixtureWithCalls(t *testing.T) (*Relay, *Registry, *CallManager) {
	t.Helper()
	reg := NewRegistry()
	calls := NewCallManager(reg)
	return NewRelay(reg, NewPresence(reg, newStubStore()), calls), reg, calls
}

func TestFullCallScenario(t *testing.T) {
	r, _, calls := relayFixtureWithCalls(t)
	a, aliceConn := authenticate(t, r, 1)
	b, bobConn := authenticate(t, r, 2)

	r.OnFrame(context.Background(), a, frame(t, core.TypeCallRequest, map[string]any{
		"contactId": 2, "mediaType": "audio", "sessionId": "s1",
	}))

	var req core.CallRequestOut
	bobConn.last(t, &req)
	assert.Equal(t, core.TypeCallRequest, req.Type)
	assert.EqualValues(t, 1, req.From)
	assert.Equal(t, "s1", req.SessionID)

	r.OnFrame(context.Background(), b, frame(t, core.TypeCallAccepted, map[string]any{
		"contactId": 1, "sessionId": "s1",
	}))
	var acc core.CallControlOut
	aliceConn.last(t, &acc)
	assert.Equal(t, core.TypeCallAccepted, acc.Type)

	r.OnFrame(context.Background(), b, frame(t, core.TypeCallEnded, map[string]any{
		"contactId": 1, "sessionId": "s1",
	}))
	var end core.CallControlOut
	aliceConn.last(t, &end)
	assert.Equal(t, core.TypeCallEnded, end.Type)

	_, ok := calls.Session("s1")
	assert.False(t, ok)
}

func TestCallRequestToOfflineContactScenario(t *testing.T) {
	r, _, calls := relayFixtureWithCalls(t)
	a, aliceConn := authenticate(t, r, 1)

	r.OnFrame(context.Background(), a, frame(t, core.TypeCallRequest, map[string]any{
		"contactId": 2, "mediaType": "audio", "sessionId": "s1",
	}))

	var got core.CallControlOut
	aliceConn.last(t, &got)
	assert.Equal(t, core.TypeCallRejected, got.Type)
	assert.Equal(t, ReasonUserOffline, got.Reason)
	assert.Zero(t, calls.ActiveSessions())
}

func TestDisconnectEndsLiveCall(t *testing.T) {
	r, reg, calls := relayFixtureWithCalls(t)
	a, aliceConn := authenticate(t, r, 1)
	b, _ := authenticate(t, r, 2)

	r.OnFrame(context.Background(), a, frame(t, core.TypeCallRequest, map[string]any{
		"contactId": 2, "mediaType": "both", "sessionId": "s1",
	}))
	r.OnFrame(context.Background(), b, frame(t, core.TypeCallAccepted, map[string]any{
		"contactId": 1, "sessionId": "s1",
	}))

	r.OnDisconnect(context.Background(), b)

	assert.False(t, reg.Online(2))
	assert.Zero(t, calls.ActiveSessions())

	var got core.CallControlOut
	aliceConn.last(t, &got)
	assert.Equal(t, core.TypeCallEnded, got.Type)
	assert.Equal(t, ReasonPeerDisconnected, got.Reason)
}
