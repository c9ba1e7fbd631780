package protocol

import "encoding/json"

// Envelope is the wire framing for every channel event. Data holds the
// event-specific payload and stays opaque until the handler decodes it.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Presence channel events.
const (
	EventRoomJoin         = "room:join"
	EventRoomLeave        = "room:leave"
	EventRoomUserJoined   = "room:user_joined"
	EventRoomUserLeft     = "room:user_left"
	EventSquareJoin       = "square:room:join"
	EventSquareLeave      = "square:room:leave"
	EventSquareUserJoined = "square:room:user_joined"
	EventSquareUserLeft   = "square:room:user_left"
	EventAvatarMove       = "avatar:move"
	EventAvatarState      = "avatar:state"
	EventAvatarEquip      = "avatar:equip"
	EventChatBubble       = "chat:bubble"
)

// Signal channel events.
const (
	EventSignalJoin      = "signal:join"
	EventSignalPeerJoin  = "signal:peer_joined"
	EventSignalPeerLeft  = "signal:peer_left"
	EventWebRTCOffer     = "webrtc:offer"
	EventWebRTCAnswer    = "webrtc:answer"
	EventWebRTCIce       = "webrtc:ice"
	EventStreamHostStart = "stream:host:start"
	EventStreamHostStop  = "stream:host:stop"
)

type RoomRef struct {
	HostUserID string `json:"hostUserId"`
}

type SquareRoomRef struct {
	RoomID string `json:"roomId"`
}

type UserJoined struct {
	UserID string `json:"userId"`
}

type UserLeft struct {
	UserID string `json:"userId"`
}

type SquareUserJoined struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

type AvatarMove struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	MonitorID string  `json:"monitorId"`
	TS        int64   `json:"ts"`
}

type AvatarState struct {
	UserID   string            `json:"userId"`
	X        float64           `json:"x"`
	Y        float64           `json:"y"`
	Equipped map[string]string `json:"equipped"`
	Motion   string            `json:"motion"`
	TS       int64             `json:"ts"`
}

type ChatBubble struct {
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}

type ChatBubbleBroadcast struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
	TS     int64  `json:"ts"`
}

type EquippedItem struct {
	Slot   string `json:"slot"`
	ItemID string `json:"itemId"`
	Name   string `json:"name,omitempty"`
}

type AvatarEquip struct {
	HostUserID string             `json:"hostUserId"`
	Layers     map[string]*string `json:"layers"`
	Equipped   []EquippedItem     `json:"equipped"`
	TS         int64              `json:"ts"`
}

type AvatarEquipBroadcast struct {
	AvatarEquip
	UserID string `json:"userId"`
}

type PeerRef struct {
	PeerID string `json:"peerId"`
}

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp,omitempty"`
}

type IceCandidate struct {
	Candidate        string  `json:"candidate,omitempty"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type OfferToPeer struct {
	ToPeerID string             `json:"toPeerId"`
	SDP      SessionDescription `json:"sdp"`
}

type OfferFromPeer struct {
	FromPeerID string             `json:"fromPeerId"`
	SDP        SessionDescription `json:"sdp"`
}

type IceToPeer struct {
	ToPeerID  string       `json:"toPeerId"`
	Candidate IceCandidate `json:"candidate"`
}

type IceFromPeer struct {
	FromPeerID string       `json:"fromPeerId"`
	Candidate  IceCandidate `json:"candidate"`
}

type StreamHostStart struct {
	ConstraintsProfile string `json:"constraintsProfile"`
}

type StreamHostNotice struct {
	HostPeerID string `json:"hostPeerId"`
}

// Outbound is the server-side envelope. Data is marshalled in place,
// producing the same wire shape Envelope decodes.
type Outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}
