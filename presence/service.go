package presence

import (
	"encoding/json"

	"plaza-relay/nats"
	"plaza-relay/protocol"
	"plaza-relay/registry"
	"plaza-relay/rooms"

	log "github.com/sirupsen/logrus"
)

const maxChatLength = 200

// Peer is one presence connection as the service sees it.
type Peer interface {
	ID() string
	UserID() string
	DisplayName() string
	Send(data []byte)
}

type Message struct {
	Peer Peer
	Data []byte
}

// Service re-broadcasts movement, chat and appearance events to the
// rooms a connection has joined. A presence connection may hold one
// host room and one square lobby room at the same time; the two kinds
// are tracked separately so departures announce the right event.
//
// All state is touched only from the Run goroutine, so handlers never
// lock. A client's view of its own membership can be stale by the time
// its event is dequeued; each handler checks membership itself.
type Service struct {
	hostRooms   *rooms.Set
	squareRooms *rooms.Set

	connect    chan Peer
	disconnect chan Peer
	inbound    chan Message

	handlers map[string]func(Peer, json.RawMessage)
}

func NewService() *Service {
	s := &Service{
		hostRooms:   rooms.NewSet(),
		squareRooms: rooms.NewSet(),
		connect:     make(chan Peer),
		disconnect:  make(chan Peer),
		inbound:     make(chan Message),
	}

	s.handlers = map[string]func(Peer, json.RawMessage){
		protocol.EventRoomJoin:    s.handleRoomJoin,
		protocol.EventRoomLeave:   s.handleRoomLeave,
		protocol.EventSquareJoin:  s.handleSquareJoin,
		protocol.EventSquareLeave: s.handleSquareLeave,
		protocol.EventAvatarMove:  s.handleMove,
		protocol.EventChatBubble:  s.handleChat,
		protocol.EventAvatarEquip: s.handleEquip,
	}

	return s
}

func (s *Service) Connect(p Peer)                 { s.connect <- p }
func (s *Service) Disconnect(p Peer)              { s.disconnect <- p }
func (s *Service) HandleMessage(p Peer, d []byte) { s.inbound <- Message{Peer: p, Data: d} }

func (s *Service) Run() {
	for {
		select {
		case p := <-s.connect:
			log.WithField("connId", p.ID()).Info("Presence connected: ", p.UserID())
		case p := <-s.disconnect:
			s.evict(p)
		case msg := <-s.inbound:
			s.dispatch(msg.Peer, msg.Data)
		}
	}
}

func (s *Service) dispatch(p Peer, data []byte) {
	var envelope protocol.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.WithError(err).WithField("connId", p.ID()).Warn("Dropping unparseable presence message")
		return
	}

	handler, ok := s.handlers[envelope.Event]
	if !ok {
		log.WithField("event", envelope.Event).Warn("Unknown presence event")
		return
	}

	handler(p, envelope.Data)
}

func (s *Service) handleRoomJoin(p Peer, data json.RawMessage) {
	var payload protocol.RoomRef
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed room:join")
		return
	}

	roomID := registry.Sanitize(payload.HostUserID)
	if roomID == "" {
		log.WithField("connId", p.ID()).Warn("Room join ignored: invalid room id")
		return
	}

	if !s.hostRooms.Join(roomID, p) {
		return
	}

	s.hostRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventRoomUserJoined,
		Data:  protocol.UserJoined{UserID: p.UserID()},
	})
	nats.Publish("presence.join", []byte(p.UserID()))
}

func (s *Service) handleRoomLeave(p Peer, data json.RawMessage) {
	var payload protocol.RoomRef
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed room:leave")
		return
	}

	roomID := registry.Sanitize(payload.HostUserID)
	if roomID == "" || !s.hostRooms.Leave(roomID, p.ID()) {
		return
	}

	s.hostRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventRoomUserLeft,
		Data:  protocol.UserLeft{UserID: p.UserID()},
	})
	nats.Publish("presence.leave", []byte(p.UserID()))
}

func (s *Service) handleSquareJoin(p Peer, data json.RawMessage) {
	var payload protocol.SquareRoomRef
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed square:room:join")
		return
	}

	roomID := registry.Sanitize(payload.RoomID)
	if roomID == "" {
		log.WithField("connId", p.ID()).Warn("Square join ignored: invalid room id")
		return
	}

	if !s.squareRooms.Join(roomID, p) {
		return
	}

	s.squareRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventSquareUserJoined,
		Data:  protocol.SquareUserJoined{UserID: p.UserID(), DisplayName: p.DisplayName()},
	})
	nats.Publish("presence.join", []byte(p.UserID()))
}

func (s *Service) handleSquareLeave(p Peer, data json.RawMessage) {
	var payload protocol.SquareRoomRef
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed square:room:leave")
		return
	}

	roomID := registry.Sanitize(payload.RoomID)
	if roomID == "" || !s.squareRooms.Leave(roomID, p.ID()) {
		return
	}

	s.squareRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventSquareUserLeft,
		Data:  protocol.UserLeft{UserID: p.UserID()},
	})
	nats.Publish("presence.leave", []byte(p.UserID()))
}

func (s *Service) handleMove(p Peer, data json.RawMessage) {
	var payload protocol.AvatarMove
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed avatar:move")
		return
	}

	state := protocol.Outbound{
		Event: protocol.EventAvatarState,
		Data: protocol.AvatarState{
			UserID:   p.UserID(),
			X:        payload.X,
			Y:        payload.Y,
			Equipped: map[string]string{},
			Motion:   "walk",
			TS:       payload.TS,
		},
	}

	for _, roomID := range s.hostRooms.RoomsOf(p.ID()) {
		s.hostRooms.Broadcast(roomID, p.ID(), state)
	}
	for _, roomID := range s.squareRooms.RoomsOf(p.ID()) {
		s.squareRooms.Broadcast(roomID, p.ID(), state)
	}
}

func (s *Service) handleChat(p Peer, data json.RawMessage) {
	var payload protocol.ChatBubble
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed chat:bubble")
		return
	}

	if payload.Text == "" || len(payload.Text) > maxChatLength {
		log.WithField("connId", p.ID()).Warn("Chat bubble ignored: bad text length")
		return
	}

	bubble := protocol.Outbound{
		Event: protocol.EventChatBubble,
		Data: protocol.ChatBubbleBroadcast{
			UserID: p.UserID(),
			Text:   payload.Text,
			TS:     payload.TS,
		},
	}

	for _, roomID := range s.hostRooms.RoomsOf(p.ID()) {
		s.hostRooms.Broadcast(roomID, p.ID(), bubble)
	}
	for _, roomID := range s.squareRooms.RoomsOf(p.ID()) {
		s.squareRooms.Broadcast(roomID, p.ID(), bubble)
	}
}

func (s *Service) handleEquip(p Peer, data json.RawMessage) {
	var payload protocol.AvatarEquip
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed avatar:equip")
		return
	}

	// Appearance changes go only to the declared room, and only when
	// the sender really is a member of it.
	roomID := registry.Sanitize(payload.HostUserID)
	if roomID == "" || !s.hostRooms.Contains(roomID, p.ID()) {
		log.WithField("connId", p.ID()).Warn("Avatar equip ignored: not a room member")
		return
	}

	s.hostRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventAvatarEquip,
		Data: protocol.AvatarEquipBroadcast{
			AvatarEquip: payload,
			UserID:      p.UserID(),
		},
	})
}

func (s *Service) evict(p Peer) {
	for _, roomID := range s.hostRooms.LeaveAll(p.ID()) {
		s.hostRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
			Event: protocol.EventRoomUserLeft,
			Data:  protocol.UserLeft{UserID: p.UserID()},
		})
	}
	for _, roomID := range s.squareRooms.LeaveAll(p.ID()) {
		s.squareRooms.Broadcast(roomID, p.ID(), protocol.Outbound{
			Event: protocol.EventSquareUserLeft,
			Data:  protocol.UserLeft{UserID: p.UserID()},
		})
	}

	log.WithField("connId", p.ID()).Info("Presence disconnected")
}
