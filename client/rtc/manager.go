package rtc

import (
	"errors"
	"sync"

	"plaza-relay/protocol"

	"github.com/pion/webrtc/v4"
	log "github.com/sirupsen/logrus"
)

// Signaler carries negotiation messages to a remote peer through the
// signal channel.
type Signaler interface {
	SendOffer(toPeerID string, sdp protocol.SessionDescription)
	SendAnswer(toPeerID string, sdp protocol.SessionDescription)
	SendICE(toPeerID string, candidate protocol.IceCandidate)
}

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// Manager holds one peer connection per remote peer id. Remote ICE
// candidates that arrive before the remote description are queued per
// peer and flushed once the description is applied; WebRTC requires
// that ordering.
type Manager struct {
	mu sync.Mutex

	signaler Signaler
	config   webrtc.Configuration
	host     bool

	peers       map[string]*webrtc.PeerConnection
	pendingICE  map[string][]webrtc.ICECandidateInit
	localTracks []webrtc.TrackLocal

	// OnTrack is invoked for each remote media track as it arrives.
	OnTrack func(peerID string, track *webrtc.TrackRemote)
	// OnError surfaces negotiation failures to the UI. They are not
	// retried automatically.
	OnError func(peerID string, err error)
}

func NewManager(signaler Signaler, host bool) *Manager {
	return &Manager{
		signaler:   signaler,
		config:     webrtc.Configuration{ICEServers: defaultICEServers},
		host:       host,
		peers:      make(map[string]*webrtc.PeerConnection),
		pendingICE: make(map[string][]webrtc.ICECandidateInit),
	}
}

// SetLocalTracks replaces the media tracks attached to future peer
// connections (host role only).
func (m *Manager) SetLocalTracks(tracks []webrtc.TrackLocal) {
	m.mu.Lock()
	m.localTracks = tracks
	m.mu.Unlock()
}

func (m *Manager) peer(peerID string) (*webrtc.PeerConnection, error) {
	if pc, ok := m.peers[peerID]; ok {
		return pc, nil
	}

	pc, err := webrtc.NewPeerConnection(m.config)
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		m.signaler.SendICE(peerID, protocol.IceCandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if m.OnTrack != nil {
			m.OnTrack(peerID, track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			m.ClosePeer(peerID)
			log.WithField("peerId", peerID).Info("Peer connection closed")
		}
	})

	m.peers[peerID] = pc
	m.attachLocalTracks(peerID, pc)

	return pc, nil
}

func (m *Manager) attachLocalTracks(peerID string, pc *webrtc.PeerConnection) {
	if !m.host {
		// Viewers only receive; the transceivers still have to exist for
		// the offer to carry media sections.
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
			_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			})
			if err != nil {
				log.WithError(err).WithField("peerId", peerID).Warn("Failed to add receive transceiver")
			}
		}
		return
	}

	for _, track := range m.localTracks {
		if _, err := pc.AddTrack(track); err != nil {
			log.WithError(err).WithField("peerId", peerID).Warn("Failed to attach local track")
		}
	}
}

// Offer starts negotiation toward a remote peer (host role, on
// peer-joined).
func (m *Manager) Offer(peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc, err := m.peer(peerID)
	if err != nil {
		return m.fail(peerID, err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return m.fail(peerID, err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return m.fail(peerID, err)
	}

	m.signaler.SendOffer(peerID, protocol.SessionDescription{
		Type: offer.Type.String(),
		SDP:  offer.SDP,
	})

	return nil
}

// HandleOffer applies a remote offer and answers it.
func (m *Manager) HandleOffer(fromPeerID string, sdp protocol.SessionDescription) error {
	desc, err := asDescription(sdp)
	if err != nil || desc.Type != webrtc.SDPTypeOffer {
		log.WithField("fromPeerId", fromPeerID).Warn("Ignoring invalid offer")
		return errors.New("invalid offer")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pc, err := m.peer(fromPeerID)
	if err != nil {
		return m.fail(fromPeerID, err)
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		return m.fail(fromPeerID, err)
	}
	m.flushPendingICE(fromPeerID, pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return m.fail(fromPeerID, err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return m.fail(fromPeerID, err)
	}

	m.signaler.SendAnswer(fromPeerID, protocol.SessionDescription{
		Type: answer.Type.String(),
		SDP:  answer.SDP,
	})

	return nil
}

// HandleAnswer applies a remote answer to a negotiation this side
// started.
func (m *Manager) HandleAnswer(fromPeerID string, sdp protocol.SessionDescription) error {
	desc, err := asDescription(sdp)
	if err != nil || desc.Type != webrtc.SDPTypeAnswer {
		log.WithField("fromPeerId", fromPeerID).Warn("Ignoring invalid answer")
		return errors.New("invalid answer")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.peers[fromPeerID]
	if !ok {
		log.WithField("fromPeerId", fromPeerID).Warn("Answer for unknown peer ignored")
		return errors.New("unknown peer")
	}

	if err := pc.SetRemoteDescription(desc); err != nil {
		return m.fail(fromPeerID, err)
	}
	m.flushPendingICE(fromPeerID, pc)

	return nil
}

// HandleICE applies a remote candidate, queuing it if the remote
// description has not been set yet.
func (m *Manager) HandleICE(fromPeerID string, candidate protocol.IceCandidate) error {
	if candidate.Candidate == "" {
		return nil
	}

	init := webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pc, ok := m.peers[fromPeerID]
	if !ok || pc.RemoteDescription() == nil {
		m.pendingICE[fromPeerID] = append(m.pendingICE[fromPeerID], init)
		return nil
	}

	if err := pc.AddICECandidate(init); err != nil {
		return m.fail(fromPeerID, err)
	}
	return nil
}

func (m *Manager) flushPendingICE(peerID string, pc *webrtc.PeerConnection) {
	queue := m.pendingICE[peerID]
	delete(m.pendingICE, peerID)

	for _, init := range queue {
		if err := pc.AddICECandidate(init); err != nil {
			log.WithError(err).WithField("peerId", peerID).Warn("Failed to flush queued candidate")
		}
	}
}

// PendingICE reports how many candidates are queued for a peer.
func (m *Manager) PendingICE(peerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingICE[peerID])
}

// ClosePeer tears down one peer connection and its queued candidates.
func (m *Manager) ClosePeer(peerID string) {
	m.mu.Lock()
	pc, ok := m.peers[peerID]
	delete(m.peers, peerID)
	delete(m.pendingICE, peerID)
	m.mu.Unlock()

	if ok {
		if err := pc.Close(); err != nil {
			log.WithError(err).WithField("peerId", peerID).Warn("Error closing peer connection")
		}
	}
}

// Close tears down every peer connection, including ones still mid
// negotiation, and drops the local tracks.
func (m *Manager) Close() {
	m.mu.Lock()
	peers := m.peers
	m.peers = make(map[string]*webrtc.PeerConnection)
	m.pendingICE = make(map[string][]webrtc.ICECandidateInit)
	m.localTracks = nil
	m.mu.Unlock()

	for peerID, pc := range peers {
		if err := pc.Close(); err != nil {
			log.WithError(err).WithField("peerId", peerID).Warn("Error closing peer connection")
		}
	}
}

func (m *Manager) fail(peerID string, err error) error {
	if m.OnError != nil {
		m.OnError(peerID, err)
	}
	return err
}

func asDescription(sdp protocol.SessionDescription) (webrtc.SessionDescription, error) {
	switch sdp.Type {
	case "offer", "answer", "pranswer", "rollback":
	default:
		return webrtc.SessionDescription{}, errors.New("unknown description type")
	}

	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(sdp.Type),
		SDP:  sdp.SDP,
	}, nil
}
