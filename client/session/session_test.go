package session

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"plaza-relay/client/game"
	"plaza-relay/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(selfID string) (*Session, *time.Time) {
	now := time.Now()
	s := New(Config{RoomID: "square-main", SelfUserID: selfID})
	s.now = func() time.Time { return now }
	return s, &now
}

func envelope(t *testing.T, event string, payload interface{}) protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.Envelope{Event: event, Data: data}
}

func TestUserJoinedAddsRemoteAtSpawn(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{
		UserID:      "peer-1",
		DisplayName: "Alice",
	}))

	entities := s.Entities(time.Now())
	require.Len(t, entities, 1)
	assert.Equal(t, "Alice", entities[0].DisplayName)
	assert.Equal(t, float64(game.SpawnX), entities[0].X)
	assert.Equal(t, float64(game.SpawnY), entities[0].Y)
}

func TestUserJoinedIgnoresSelf(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{
		UserID: "me",
	}))

	assert.Empty(t, s.Entities(time.Now()))
}

func TestUserJoinedFallbackName(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{
		UserID: "user-abcdef",
	}))

	entities := s.Entities(time.Now())
	require.Len(t, entities, 1)
	assert.Equal(t, "mate_abcdef", entities[0].DisplayName)
}

func TestUserLeftRemovesRemote(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{UserID: "peer-1"}))
	require.Len(t, s.Entities(time.Now()), 1)

	s.handle(envelope(t, protocol.EventSquareUserLeft, protocol.UserLeft{UserID: "peer-1"}))
	assert.Empty(t, s.Entities(time.Now()))
}

func TestAvatarStateUpdatesTarget(t *testing.T) {
	s, _ := newTestSession("me")
	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{UserID: "peer-1"}))

	s.handle(envelope(t, protocol.EventAvatarState, protocol.AvatarState{
		UserID: "peer-1",
		X:      100,
		Y:      200,
	}))

	// Render position lags the target until interpolation catches up.
	entities := s.Entities(time.Now())
	require.Len(t, entities, 1)
	assert.Equal(t, float64(game.SpawnX), entities[0].X)

	s.Interpolate(1.0)
	entities = s.Entities(time.Now())
	assert.Equal(t, 100.0, entities[0].X)
	assert.Equal(t, 200.0, entities[0].Y)
}

func TestAvatarStateSnapsUnseenPeer(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventAvatarState, protocol.AvatarState{
		UserID: "peer-1",
		X:      300,
		Y:      400,
	}))

	entities := s.Entities(time.Now())
	require.Len(t, entities, 1)
	assert.Equal(t, 300.0, entities[0].X)
	assert.Equal(t, 400.0, entities[0].Y)
}

func TestAvatarStateIgnoresSelf(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventAvatarState, protocol.AvatarState{
		UserID: "me",
		X:      300,
	}))

	assert.Empty(t, s.Entities(time.Now()))
}

func TestInterpolateBlendsTowardTarget(t *testing.T) {
	s, _ := newTestSession("me")
	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{UserID: "peer-1"}))
	s.handle(envelope(t, protocol.EventAvatarState, protocol.AvatarState{
		UserID: "peer-1",
		X:      game.SpawnX + 100,
		Y:      game.SpawnY,
	}))

	s.Interpolate(0.5)

	entities := s.Entities(time.Now())
	require.Len(t, entities, 1)
	assert.InDelta(t, float64(game.SpawnX)+50, entities[0].X, 0.001)
}

func TestChatBubbleVisibleUntilTTL(t *testing.T) {
	s, now := newTestSession("me")
	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{UserID: "peer-1"}))

	s.handle(envelope(t, protocol.EventChatBubble, protocol.ChatBubbleBroadcast{
		UserID: "peer-1",
		Text:   "hi there",
	}))

	entities := s.Entities(now.Add(chatBubbleTTL - time.Millisecond))
	require.Len(t, entities, 1)
	assert.Equal(t, "hi there", entities[0].Bubble)

	entities = s.Entities(now.Add(chatBubbleTTL))
	assert.Empty(t, entities[0].Bubble)
}

func TestChatHistoryIsBounded(t *testing.T) {
	s, _ := newTestSession("me")
	s.handle(envelope(t, protocol.EventSquareUserJoined, protocol.SquareUserJoined{UserID: "peer-1"}))

	for i := 0; i < chatHistoryLimit+10; i++ {
		s.handle(envelope(t, protocol.EventChatBubble, protocol.ChatBubbleBroadcast{
			UserID: "peer-1",
			Text:   fmt.Sprintf("message %d", i),
		}))
	}

	history := s.ChatHistory()
	require.Len(t, history, chatHistoryLimit)
	assert.Equal(t, "message 10", history[0].Text)
	assert.Equal(t, fmt.Sprintf("message %d", chatHistoryLimit+9), history[len(history)-1].Text)
}

func TestOwnChatIgnoredFromServer(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(envelope(t, protocol.EventChatBubble, protocol.ChatBubbleBroadcast{
		UserID: "me",
		Text:   "echo",
	}))

	assert.Empty(t, s.ChatHistory())
}

func TestEmitChatAppendsLocally(t *testing.T) {
	s, _ := newTestSession("me")

	s.EmitChat("hello square")

	history := s.ChatHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "me", history[0].UserID)
	assert.Equal(t, "hello square", history[0].Text)
}

func TestEmitChatSkipsEmpty(t *testing.T) {
	s, _ := newTestSession("me")

	s.EmitChat("")

	assert.Empty(t, s.ChatHistory())
}

func TestEmitMoveThrottled(t *testing.T) {
	s, now := newTestSession("me")

	base := *now
	s.EmitMove(1, 1, 0, 0)
	first := s.lastMoveEmit

	*now = base.Add(moveEmitInterval - time.Millisecond)
	s.EmitMove(2, 2, 0, 0)
	assert.Equal(t, first, s.lastMoveEmit, "second call inside the interval is dropped")

	*now = base.Add(moveEmitInterval)
	s.EmitMove(3, 3, 0, 0)
	assert.NotEqual(t, first, s.lastMoveEmit)
}

func TestMalformedPayloadIgnored(t *testing.T) {
	s, _ := newTestSession("me")

	s.handle(protocol.Envelope{
		Event: protocol.EventAvatarState,
		Data:  json.RawMessage(`{"x": "not a number"}`),
	})

	assert.Empty(t, s.Entities(time.Now()))
}
