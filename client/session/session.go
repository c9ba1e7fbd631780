package session

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"plaza-relay/client/game"
	"plaza-relay/protocol"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	chatBubbleTTL    = 5000 * time.Millisecond
	chatHistoryLimit = 50
	moveEmitInterval = 50 * time.Millisecond

	reconnectBase = 500 * time.Millisecond
	reconnectCap  = 10 * time.Second
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)

// RemotePlayer is the client-side view of another avatar. X/Y trail
// TargetX/TargetY via exponential smoothing each frame. Entries are
// removed on an explicit left event, never by timeout.
type RemotePlayer struct {
	UserID      string
	DisplayName string
	X           float64
	Y           float64
	TargetX     float64
	TargetY     float64
	LastUpdate  time.Time

	bubbleText    string
	bubbleExpires time.Time
}

type ChatMessage struct {
	UserID      string
	DisplayName string
	Text        string
	TS          int64
}

type Config struct {
	URL        string // ws endpoint of the presence channel
	Token      string
	RoomID     string // square lobby room to join on connect
	SelfUserID string
	OnStatus   func(Status)
}

// Session owns one presence connection. It reconciles relayed state
// into the remote-player map, keeps a bounded chat history, and
// reconnects with bounded exponential backoff after an unexpected
// disconnect. It implements game.RemoteSource for the game loop.
type Session struct {
	cfg    Config
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	remotes map[string]*RemotePlayer
	chat    []ChatMessage

	lastMoveEmit time.Time

	closed    chan struct{}
	closeOnce sync.Once

	now func() time.Time
}

func New(cfg Config) *Session {
	return &Session{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		remotes: make(map[string]*RemotePlayer),
		closed:  make(chan struct{}),
		now:     time.Now,
	}
}

// Connect starts the connection loop. It returns immediately; status
// transitions are reported through the OnStatus callback.
func (s *Session) Connect() {
	go s.run()
}

func (s *Session) run() {
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
			log.WithError(err).Warn("Presence dial failed, backing off ", backoff)
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
		s.emit(protocol.EventSquareJoin, protocol.SquareRoomRef{RoomID: s.cfg.RoomID})

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.remotes = make(map[string]*RemotePlayer)
		s.mu.Unlock()
	}
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope protocol.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.WithError(err).Warn("Dropping unparseable presence event")
			continue
		}

		s.handle(envelope)
	}
}

func (s *Session) handle(envelope protocol.Envelope) {
	switch envelope.Event {
	case protocol.EventSquareUserJoined:
		var payload protocol.SquareUserJoined
		if json.Unmarshal(envelope.Data, &payload) != nil {
			return
		}
		s.addRemote(payload.UserID, payload.DisplayName)

	case protocol.EventSquareUserLeft, protocol.EventRoomUserLeft:
		var payload protocol.UserLeft
		if json.Unmarshal(envelope.Data, &payload) != nil {
			return
		}
		s.mu.Lock()
		delete(s.remotes, payload.UserID)
		s.mu.Unlock()

	case protocol.EventAvatarState:
		var payload protocol.AvatarState
		if json.Unmarshal(envelope.Data, &payload) != nil {
			return
		}
		s.applyState(payload)

	case protocol.EventChatBubble:
		var payload protocol.ChatBubbleBroadcast
		if json.Unmarshal(envelope.Data, &payload) != nil {
			return
		}
		s.applyChat(payload)
	}
}

func (s *Session) addRemote(userID string, displayName string) {
	if userID == "" || userID == s.cfg.SelfUserID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.remotes[userID]; ok {
		return
	}

	if displayName == "" {
		displayName = fallbackName(userID)
	}

	s.remotes[userID] = &RemotePlayer{
		UserID:      userID,
		DisplayName: displayName,
		X:           game.SpawnX,
		Y:           game.SpawnY,
		TargetX:     game.SpawnX,
		TargetY:     game.SpawnY,
		LastUpdate:  s.now(),
	}
}

func (s *Session) applyState(payload protocol.AvatarState) {
	if payload.UserID == s.cfg.SelfUserID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rp, ok := s.remotes[payload.UserID]; ok {
		rp.TargetX = payload.X
		rp.TargetY = payload.Y
		rp.LastUpdate = s.now()
		return
	}

	// First state for an unseen peer: snap rather than glide in from
	// the spawn point.
	s.remotes[payload.UserID] = &RemotePlayer{
		UserID:      payload.UserID,
		DisplayName: fallbackName(payload.UserID),
		X:           payload.X,
		Y:           payload.Y,
		TargetX:     payload.X,
		TargetY:     payload.Y,
		LastUpdate:  s.now(),
	}
}

func (s *Session) applyChat(payload protocol.ChatBubbleBroadcast) {
	if payload.UserID == s.cfg.SelfUserID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendChatLocked(ChatMessage{
		UserID: payload.UserID,
		Text:   payload.Text,
		TS:     payload.TS,
	})

	if rp, ok := s.remotes[payload.UserID]; ok {
		rp.bubbleText = payload.Text
		rp.bubbleExpires = s.now().Add(chatBubbleTTL)
	}
}

func (s *Session) appendChatLocked(msg ChatMessage) {
	s.chat = append(s.chat, msg)
	if len(s.chat) > chatHistoryLimit {
		s.chat = s.chat[len(s.chat)-chatHistoryLimit:]
	}
}

// EmitMove sends the local position, at most once per throttle
// interval regardless of how often the game loop calls it.
func (s *Session) EmitMove(x, y, vx, vy float64) {
	now := s.now()

	s.mu.Lock()
	if now.Sub(s.lastMoveEmit) < moveEmitInterval {
		s.mu.Unlock()
		return
	}
	s.lastMoveEmit = now
	s.mu.Unlock()

	s.emit(protocol.EventAvatarMove, protocol.AvatarMove{
		X:         x,
		Y:         y,
		VX:        vx,
		VY:        vy,
		MonitorID: "square",
		TS:        now.UnixMilli(),
	})
}

// EmitChat sends a chat bubble and appends it to the local history;
// the server never echoes a sender's own message back.
func (s *Session) EmitChat(text string) {
	if text == "" {
		return
	}

	now := s.now()
	s.emit(protocol.EventChatBubble, protocol.ChatBubble{Text: text, TS: now.UnixMilli()})

	s.mu.Lock()
	s.appendChatLocked(ChatMessage{
		UserID: s.cfg.SelfUserID,
		Text:   text,
		TS:     now.UnixMilli(),
	})
	s.mu.Unlock()
}

func (s *Session) EmitEquip(payload protocol.AvatarEquip) {
	s.emit(protocol.EventAvatarEquip, payload)
}

func (s *Session) emit(event string, payload interface{}) {
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
		log.WithError(err).Warn("Presence write failed")
	}
}

// Interpolate implements game.RemoteSource.
func (s *Session) Interpolate(blend float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rp := range s.remotes {
		rp.X += (rp.TargetX - rp.X) * blend
		rp.Y += (rp.TargetY - rp.Y) * blend
	}
}

// Entities implements game.RemoteSource. Bubbles past their TTL are
// omitted.
func (s *Session) Entities(now time.Time) []game.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := make([]game.Entity, 0, len(s.remotes))
	for _, rp := range s.remotes {
		entity := game.Entity{
			UserID:      rp.UserID,
			DisplayName: rp.DisplayName,
			X:           rp.X,
			Y:           rp.Y,
		}
		if rp.bubbleText != "" && now.Before(rp.bubbleExpires) {
			entity.Bubble = rp.bubbleText
		}
		entities = append(entities, entity)
	}

	return entities
}

func (s *Session) ChatHistory() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]ChatMessage, len(s.chat))
	copy(history, s.chat)
	return history
}

// Close leaves the room and stops the connection loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.emit(protocol.EventSquareLeave, protocol.SquareRoomRef{RoomID: s.cfg.RoomID})

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.remotes = make(map[string]*RemotePlayer)
		s.mu.Unlock()

		s.setStatus(StatusClosed)
	})
}

func (s *Session) setStatus(status Status) {
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}

func fallbackName(userID string) string {
	if len(userID) > 6 {
		return "mate_" + userID[len(userID)-6:]
	}
	return "mate_" + userID
}
