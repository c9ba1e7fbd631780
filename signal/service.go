package signal

import (
	"encoding/json"

	"plaza-relay/nats"
	"plaza-relay/protocol"
	"plaza-relay/registry"
	"plaza-relay/rooms"

	log "github.com/sirupsen/logrus"
)

// Peer is one signal connection as the service sees it.
type Peer interface {
	ID() string
	UserID() string
	Send(data []byte)
}

type Message struct {
	Peer Peer
	Data []byte
}

// Service relays WebRTC negotiation messages between connections that
// verifiably share a room. A connection is in at most one signal room;
// joining another evicts it from the previous one with a departure
// announcement.
//
// Relay validation is the security boundary: the registry entry for
// both ends must name the same room AND the broadcast group must still
// hold both connections at the instant of relay. Failures are dropped
// with a log line and nothing is sent back to the prober.
type Service struct {
	set      *rooms.Set
	registry *registry.Registry

	streamTiers bool

	connect    chan Peer
	disconnect chan Peer
	inbound    chan Message

	handlers map[string]func(Peer, json.RawMessage)
}

func NewService(streamTiers bool) *Service {
	s := &Service{
		set:         rooms.NewSet(),
		registry:    registry.New(),
		streamTiers: streamTiers,
		connect:     make(chan Peer),
		disconnect:  make(chan Peer),
		inbound:     make(chan Message),
	}

	s.handlers = map[string]func(Peer, json.RawMessage){
		protocol.EventSignalJoin:      s.handleJoin,
		protocol.EventWebRTCOffer:     s.relayDescription(protocol.EventWebRTCOffer),
		protocol.EventWebRTCAnswer:    s.relayDescription(protocol.EventWebRTCAnswer),
		protocol.EventWebRTCIce:       s.handleIce,
		protocol.EventStreamHostStart: s.handleStreamStart,
		protocol.EventStreamHostStop:  s.handleStreamStop,
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
			log.WithField("connId", p.ID()).Info("Signal connected: ", p.UserID())
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
		log.WithError(err).WithField("connId", p.ID()).Warn("Dropping unparseable signal message")
		return
	}

	handler, ok := s.handlers[envelope.Event]
	if !ok {
		log.WithField("event", envelope.Event).Warn("Unknown signal event")
		return
	}

	handler(p, envelope.Data)
}

func (s *Service) handleJoin(p Peer, data json.RawMessage) {
	var payload protocol.RoomRef
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed signal:join")
		return
	}

	roomID := registry.Sanitize(payload.HostUserID)
	if roomID == "" {
		log.WithField("connId", p.ID()).Warn("Signal join ignored: invalid room id")
		return
	}

	previous, moved := s.registry.Join(p.ID(), roomID)
	if moved {
		s.set.Leave(previous, p.ID())
		s.set.Broadcast(previous, p.ID(), protocol.Outbound{
			Event: protocol.EventSignalPeerLeft,
			Data:  protocol.PeerRef{PeerID: p.ID()},
		})
	}

	// Tell the joiner about peers already in the room so it can start
	// negotiating without waiting for their next join.
	existing := s.set.MemberIDs(roomID)

	if !s.set.Join(roomID, p) {
		return
	}

	for _, peerID := range existing {
		s.sendTo(p, protocol.Outbound{
			Event: protocol.EventSignalPeerJoin,
			Data:  protocol.PeerRef{PeerID: peerID},
		})
	}

	s.set.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventSignalPeerJoin,
		Data:  protocol.PeerRef{PeerID: p.ID()},
	})
}

func (s *Service) relayDescription(event string) func(Peer, json.RawMessage) {
	return func(p Peer, data json.RawMessage) {
		var payload protocol.OfferToPeer
		if err := json.Unmarshal(data, &payload); err != nil {
			log.WithError(err).Warn("Dropping malformed ", event)
			return
		}

		roomID := s.registry.SharedRoom(p.ID(), payload.ToPeerID, s.set)
		if roomID == "" {
			log.WithFields(log.Fields{"fromPeerId": p.ID(), "toPeerId": payload.ToPeerID}).
				Warn(event, " ignored: room validation failed")
			return
		}

		s.set.SendTo(roomID, payload.ToPeerID, protocol.Outbound{
			Event: event,
			Data: protocol.OfferFromPeer{
				FromPeerID: p.ID(),
				SDP:        payload.SDP,
			},
		})
	}
}

func (s *Service) handleIce(p Peer, data json.RawMessage) {
	var payload protocol.IceToPeer
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed webrtc:ice")
		return
	}

	roomID := s.registry.SharedRoom(p.ID(), payload.ToPeerID, s.set)
	if roomID == "" {
		log.WithFields(log.Fields{"fromPeerId": p.ID(), "toPeerId": payload.ToPeerID}).
			Warn("webrtc:ice ignored: room validation failed")
		return
	}

	s.set.SendTo(roomID, payload.ToPeerID, protocol.Outbound{
		Event: protocol.EventWebRTCIce,
		Data: protocol.IceFromPeer{
			FromPeerID: p.ID(),
			Candidate:  payload.Candidate,
		},
	})
}

// liveRoom resolves the caller's room through the registry and the
// broadcast group, never trusting room ids supplied by the client.
func (s *Service) liveRoom(p Peer) string {
	roomID, ok := s.registry.RoomOf(p.ID())
	if !ok || !s.set.Contains(roomID, p.ID()) {
		return ""
	}
	return roomID
}

func (s *Service) handleStreamStart(p Peer, data json.RawMessage) {
	if !s.streamTiers {
		log.WithField("connId", p.ID()).Warn("Stream host start ignored: tiers disabled")
		return
	}

	var payload protocol.StreamHostStart
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Dropping malformed stream:host:start")
		return
	}

	roomID := s.liveRoom(p)
	if roomID == "" {
		log.WithField("connId", p.ID()).Warn("Stream host start ignored: not in a signal room")
		return
	}

	log.WithFields(log.Fields{
		"connId":  p.ID(),
		"roomId":  roomID,
		"profile": payload.ConstraintsProfile,
	}).Info("Stream host start")

	s.set.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventStreamHostStart,
		Data:  protocol.StreamHostNotice{HostPeerID: p.ID()},
	})
	nats.Publish("stream.start", []byte(p.UserID()))
}

func (s *Service) handleStreamStop(p Peer, data json.RawMessage) {
	roomID := s.liveRoom(p)
	if roomID == "" {
		log.WithField("connId", p.ID()).Warn("Stream host stop ignored: not in a signal room")
		return
	}

	s.set.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventStreamHostStop,
		Data:  protocol.StreamHostNotice{HostPeerID: p.ID()},
	})
	nats.Publish("stream.stop", []byte(p.UserID()))
}

func (s *Service) evict(p Peer) {
	roomID, ok := s.registry.Leave(p.ID())
	if !ok {
		return
	}

	s.set.Leave(roomID, p.ID())
	s.set.Broadcast(roomID, p.ID(), protocol.Outbound{
		Event: protocol.EventSignalPeerLeft,
		Data:  protocol.PeerRef{PeerID: p.ID()},
	})

	log.WithField("connId", p.ID()).Info("Signal disconnected")
}

func (s *Service) sendTo(p Peer, message protocol.Outbound) {
	bytes, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}
	p.Send(bytes)
}
