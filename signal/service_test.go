package signal

import (
	"encoding/json"
	"testing"

	"plaza-relay/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPeer struct {
	id     string
	userID string
	sent   [][]byte
}

func (m *mockPeer) ID() string       { return m.id }
func (m *mockPeer) UserID() string   { return m.userID }
func (m *mockPeer) Send(data []byte) { m.sent = append(m.sent, data) }

func (m *mockPeer) events(t *testing.T) []protocol.Envelope {
	t.Helper()
	envelopes := make([]protocol.Envelope, 0, len(m.sent))
	for _, data := range m.sent {
		var envelope protocol.Envelope
		require.NoError(t, json.Unmarshal(data, &envelope))
		envelopes = append(envelopes, envelope)
	}
	return envelopes
}

func raw(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(protocol.Outbound{Event: event, Data: payload})
	require.NoError(t, err)
	return data
}

func join(t *testing.T, s *Service, p Peer, roomID string) {
	t.Helper()
	s.dispatch(p, raw(t, protocol.EventSignalJoin, protocol.RoomRef{HostUserID: roomID}))
}

func sendOffer(t *testing.T, s *Service, from Peer, toPeerID string) {
	t.Helper()
	s.dispatch(from, raw(t, protocol.EventWebRTCOffer, protocol.OfferToPeer{
		ToPeerID: toPeerID,
		SDP:      protocol.SessionDescription{Type: "offer", SDP: "v=0"},
	}))
}

func TestJoinSendsExistingPeersThenAnnounces(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}

	join(t, s, a, "host-1")
	assert.Empty(t, a.sent, "first joiner knows no peers")

	join(t, s, b, "host-1")

	// The joiner learns about a, and a learns about the joiner.
	bEvents := b.events(t)
	require.Len(t, bEvents, 1)
	assert.Equal(t, protocol.EventSignalPeerJoin, bEvents[0].Event)
	var ref protocol.PeerRef
	require.NoError(t, json.Unmarshal(bEvents[0].Data, &ref))
	assert.Equal(t, "conn-a", ref.PeerID)

	aEvents := a.events(t)
	require.Len(t, aEvents, 1)
	require.NoError(t, json.Unmarshal(aEvents[0].Data, &ref))
	assert.Equal(t, "conn-b", ref.PeerID)
}

func TestJoinRejectsBlankRoom(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}

	join(t, s, a, "   ")

	_, ok := s.registry.RoomOf("conn-a")
	assert.False(t, ok)
}

func TestRejoinMovesRoomsWithSingleDeparture(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}

	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	a.sent = nil

	join(t, s, b, "host-2")

	events := a.events(t)
	require.Len(t, events, 1, "exactly one departure notice")
	assert.Equal(t, protocol.EventSignalPeerLeft, events[0].Event)

	roomID, ok := s.registry.RoomOf("conn-b")
	require.True(t, ok)
	assert.Equal(t, "host-2", roomID)
}

func TestRejoinSameRoomEmitsNoDeparture(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}

	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	a.sent = nil

	join(t, s, b, "host-1")

	for _, envelope := range a.events(t) {
		assert.NotEqual(t, protocol.EventSignalPeerLeft, envelope.Event)
	}
}

func TestOfferRelayedBetweenRoomMates(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	b.sent = nil

	sendOffer(t, s, a, "conn-b")

	events := b.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventWebRTCOffer, events[0].Event)

	var offer protocol.OfferFromPeer
	require.NoError(t, json.Unmarshal(events[0].Data, &offer))
	assert.Equal(t, "conn-a", offer.FromPeerID)
	assert.Equal(t, "v=0", offer.SDP.SDP)
}

func TestOfferDroppedAfterPeerLeft(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")

	s.evict(a)
	a.sent = nil
	b.sent = nil

	sendOffer(t, s, b, "conn-a")

	assert.Empty(t, a.sent, "relay to a departed peer must be dropped")
	assert.Empty(t, b.sent, "sender gets no error back")
}

func TestOfferDroppedAcrossRooms(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-2")
	a.sent = nil
	b.sent = nil

	sendOffer(t, s, a, "conn-b")

	assert.Empty(t, b.sent)
	assert.Empty(t, a.sent)
}

func TestIceRelayAndAnswerRelay(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	a.sent = nil
	b.sent = nil

	s.dispatch(a, raw(t, protocol.EventWebRTCIce, protocol.IceToPeer{
		ToPeerID:  "conn-b",
		Candidate: protocol.IceCandidate{Candidate: "candidate:1"},
	}))
	s.dispatch(b, raw(t, protocol.EventWebRTCAnswer, protocol.OfferToPeer{
		ToPeerID: "conn-a",
		SDP:      protocol.SessionDescription{Type: "answer"},
	}))

	bEvents := b.events(t)
	require.Len(t, bEvents, 1)
	assert.Equal(t, protocol.EventWebRTCIce, bEvents[0].Event)
	var ice protocol.IceFromPeer
	require.NoError(t, json.Unmarshal(bEvents[0].Data, &ice))
	assert.Equal(t, "conn-a", ice.FromPeerID)

	aEvents := a.events(t)
	require.Len(t, aEvents, 1)
	assert.Equal(t, protocol.EventWebRTCAnswer, aEvents[0].Event)
}

func TestStreamHostStartUsesLiveRoomNotInput(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	b.sent = nil

	s.dispatch(a, raw(t, protocol.EventStreamHostStart, protocol.StreamHostStart{ConstraintsProfile: "high"}))

	events := b.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventStreamHostStart, events[0].Event)

	var notice protocol.StreamHostNotice
	require.NoError(t, json.Unmarshal(events[0].Data, &notice))
	assert.Equal(t, "conn-a", notice.HostPeerID)

	b.sent = nil
	s.dispatch(a, raw(t, protocol.EventStreamHostStop, struct{}{}))
	events = b.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventStreamHostStop, events[0].Event)
}

func TestStreamHostStartRequiresRoom(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}

	s.dispatch(a, raw(t, protocol.EventStreamHostStart, protocol.StreamHostStart{ConstraintsProfile: "low"}))

	assert.Empty(t, a.sent)
}

func TestStreamHostStartDisabledByConfig(t *testing.T) {
	s := NewService(false)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	b.sent = nil

	s.dispatch(a, raw(t, protocol.EventStreamHostStart, protocol.StreamHostStart{ConstraintsProfile: "high"}))

	assert.Empty(t, b.sent)
}

func TestEvictNeverJoinedBroadcastsNothing(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, b, "host-1")
	b.sent = nil

	s.evict(a)

	assert.Empty(t, b.sent)
}

func TestEvictAnnouncesPeerLeftOnce(t *testing.T) {
	s := NewService(true)
	a := &mockPeer{id: "conn-a", userID: "user-a"}
	b := &mockPeer{id: "conn-b", userID: "user-b"}
	join(t, s, a, "host-1")
	join(t, s, b, "host-1")
	b.sent = nil

	s.evict(a)
	s.evict(a)

	events := b.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.EventSignalPeerLeft, events[0].Event)
}
