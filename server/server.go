package server

import (
	"net/http"
	"strings"

	"plaza-relay/auth"
	"plaza-relay/config"
	"plaza-relay/presence"
	"plaza-relay/signal"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// endpoint binds the generic websocket plumbing to one channel service.
type endpoint struct {
	name       string
	connect    func(*Peer)
	disconnect func(*Peer)
	message    func(*Peer, []byte)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func channelHandler(conf config.Config, gate *auth.Gate, ep endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connID := uuid.New().String()

		identity := auth.Guest(connID)
		if conf.RequireAuth {
			verified, err := gate.Verify(bearerToken(r))
			if err != (auth.AuthError{}) {
				log.WithError(err).WithField("channel", ep.name).Warn("Refusing unauthorized connection")
				http.Error(w, err.Message, err.Code)
				return
			}
			identity = verified
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Error("Failed to upgrade connection to websocket")
			return
		}

		peer := newPeer(connID, identity, conn)
		ep.connect(peer)

		go peer.readPump(ep.disconnect, ep.message)
		go peer.writePump()
	}
}

// Start runs one listener per channel, each with its websocket path
// and a plain liveness endpoint. The signal listener blocks.
func Start(conf config.Config, gate *auth.Gate, presenceSvc *presence.Service, signalSvc *signal.Service) {
	presenceEndpoint := endpoint{
		name:       "presence",
		connect:    func(p *Peer) { presenceSvc.Connect(p) },
		disconnect: func(p *Peer) { presenceSvc.Disconnect(p) },
		message:    func(p *Peer, data []byte) { presenceSvc.HandleMessage(p, data) },
	}
	signalEndpoint := endpoint{
		name:       "signal",
		connect:    func(p *Peer) { signalSvc.Connect(p) },
		disconnect: func(p *Peer) { signalSvc.Disconnect(p) },
		message:    func(p *Peer, data []byte) { signalSvc.HandleMessage(p, data) },
	}

	presenceMux := http.NewServeMux()
	presenceMux.HandleFunc("/presence", channelHandler(conf, gate, presenceEndpoint))
	presenceMux.HandleFunc("/health", healthHandler)

	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/signal", channelHandler(conf, gate, signalEndpoint))
	signalMux.HandleFunc("/health", healthHandler)

	go func() {
		log.Info("Presence channel listening on :", conf.PresencePort)
		if err := http.ListenAndServe(":"+conf.PresencePort, presenceMux); err != nil {
			log.WithError(err).Fatal("Presence listener failed")
		}
	}()

	log.Info("Signal channel listening on :", conf.SignalPort)
	if err := http.ListenAndServe(":"+conf.SignalPort, signalMux); err != nil {
		log.WithError(err).Fatal("Signal listener failed")
	}
}
