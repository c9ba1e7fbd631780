package session

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"plaza-relay/protocol"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// SignalHandlers receives the signal channel's events. Nil callbacks
// are skipped.
type SignalHandlers struct {
	OnPeerJoined func(peerID string)
	OnPeerLeft   func(peerID string)
	OnOffer      func(fromPeerID string, sdp protocol.SessionDescription)
	OnAnswer     func(fromPeerID string, sdp protocol.SessionDescription)
	OnICE        func(fromPeerID string, candidate protocol.IceCandidate)
	OnHostStart  func(hostPeerID string)
	OnHostStop   func(hostPeerID string)
}

type SignalConfig struct {
	URL      string
	Token    string
	RoomID   string // host user id of the room to join on connect
	OnStatus func(Status)
}

// SignalSession owns the one signal-channel connection and feeds
// negotiation traffic to the peer connection manager. It satisfies the
// manager's Signaler interface.
type SignalSession struct {
	cfg      SignalConfig
	handlers SignalHandlers
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	closed    chan struct{}
	closeOnce sync.Once
}

func NewSignal(cfg SignalConfig, handlers SignalHandlers) *SignalSession {
	return &SignalSession{
		cfg:      cfg,
		handlers: handlers,
		dialer:   websocket.DefaultDialer,
		closed:   make(chan struct{}),
	}
}

func (s *SignalSession) Connect() {
	go s.run()
}

func (s *SignalSession) run() {
	backoff := reconnectBase
	first := true

	for {
		select {
		case <-s.closed:
			return
		default:
		}

		if first {
			s.setStatus(StatusConnecting)
		} else {
			s.setStatus(StatusReconnecting)
		}

		header := http.Header{}
		if s.cfg.Token != "" {
			header.Set("Authorization", "Bearer "+s.cfg.Token)
		}

		conn, _, err := s.dialer.Dial(s.cfg.URL, header)
		if err != nil {
			log.WithError(err).Warn("Signal dial failed, backing off ", backoff)
			select {
			case <-s.closed:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, reconnectCap)
			first = false
			continue
		}

		backoff = reconnectBase
		first = false

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.setStatus(StatusConnected)
		s.emit(protocol.EventSignalJoin, protocol.RoomRef{HostUserID: s.cfg.RoomID})

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}
}

func (s *SignalSession) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope protocol.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.WithError(err).Warn("Dropping unparseable signal event")
			continue
		}

		s.handle(envelope)
	}
}

func (s *SignalSession) handle(envelope protocol.Envelope) {
	switch envelope.Event {
	case protocol.EventSignalPeerJoin:
		var payload protocol.PeerRef
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnPeerJoined != nil {
			s.handlers.OnPeerJoined(payload.PeerID)
		}

	case protocol.EventSignalPeerLeft:
		var payload protocol.PeerRef
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnPeerLeft != nil {
			s.handlers.OnPeerLeft(payload.PeerID)
		}

	case protocol.EventWebRTCOffer:
		var payload protocol.OfferFromPeer
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnOffer != nil {
			s.handlers.OnOffer(payload.FromPeerID, payload.SDP)
		}

	case protocol.EventWebRTCAnswer:
		var payload protocol.OfferFromPeer
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnAnswer != nil {
			s.handlers.OnAnswer(payload.FromPeerID, payload.SDP)
		}

	case protocol.EventWebRTCIce:
		var payload protocol.IceFromPeer
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnICE != nil {
			s.handlers.OnICE(payload.FromPeerID, payload.Candidate)
		}

	case protocol.EventStreamHostStart:
		var payload protocol.StreamHostNotice
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnHostStart != nil {
			s.handlers.OnHostStart(payload.HostPeerID)
		}

	case protocol.EventStreamHostStop:
		var payload protocol.StreamHostNotice
		if json.Unmarshal(envelope.Data, &payload) == nil && s.handlers.OnHostStop != nil {
			s.handlers.OnHostStop(payload.HostPeerID)
		}
	}
}

// SendOffer implements rtc.Signaler.
func (s *SignalSession) SendOffer(toPeerID string, sdp protocol.SessionDescription) {
	s.emit(protocol.EventWebRTCOffer, protocol.OfferToPeer{ToPeerID: toPeerID, SDP: sdp})
}

// SendAnswer implements rtc.Signaler.
func (s *SignalSession) SendAnswer(toPeerID string, sdp protocol.SessionDescription) {
	s.emit(protocol.EventWebRTCAnswer, protocol.OfferToPeer{ToPeerID: toPeerID, SDP: sdp})
}

// SendICE implements rtc.Signaler.
func (s *SignalSession) SendICE(toPeerID string, candidate protocol.IceCandidate) {
	s.emit(protocol.EventWebRTCIce, protocol.IceToPeer{ToPeerID: toPeerID, Candidate: candidate})
}

// EmitHostStart announces this peer will publish media at the named
// quality profile.
func (s *SignalSession) EmitHostStart(profile string) {
	s.emit(protocol.EventStreamHostStart, protocol.StreamHostStart{ConstraintsProfile: profile})
}

func (s *SignalSession) EmitHostStop() {
	s.emit(protocol.EventStreamHostStop, struct{}{})
}

func (s *SignalSession) emit(event string, payload interface{}) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}

	data, err := json.Marshal(protocol.Outbound{Event: event, Data: payload})
	if err != nil {
		log.WithError(err).Error("Error marshalling message")
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.WithError(err).Warn("Signal write failed")
	}
}

func (s *SignalSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()

		s.setStatus(StatusClosed)
	})
}

func (s *SignalSession) setStatus(status Status) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}
