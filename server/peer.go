package server

import (
	"sync"

	"plaza-relay/auth"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Peer is one websocket connection on either channel. The id is
// server-assigned and unique for the session; the identity is set at
// handshake and never changes afterwards.
type Peer struct {
	id       string
	identity auth.Identity

	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newPeer(id string, identity auth.Identity, conn *websocket.Conn) *Peer {
	return &Peer{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

func (p *Peer) ID() string          { return p.id }
func (p *Peer) UserID() string      { return p.identity.UserID }
func (p *Peer) DisplayName() string { return p.identity.DisplayName }

// Send is fire-and-forget. A consumer that cannot keep up loses
// messages rather than back-pressuring the room.
func (p *Peer) Send(data []byte) {
	select {
	case p.send <- data:
	default:
		log.WithField("connId", p.id).Debug("Dropping message to slow consumer")
	}
}

func (p *Peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

func (p *Peer) readPump(disconnect func(*Peer), message func(*Peer, []byte)) {
	defer func() {
		disconnect(p)
		p.close()
	}()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			break
		}

		message(p, data)
	}
}

func (p *Peer) writePump() {
	for {
		select {
		case data := <-p.send:
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}
