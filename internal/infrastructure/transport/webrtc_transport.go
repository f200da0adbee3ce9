package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// WebRTCConfig carries the ICE and port settings for peer connections.
type WebRTCConfig struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

type sdpPayload struct {
	SDP string `json:"sdp"`
}

type candidatePayload struct {
	Candidate string `json:"candidate"`
}

// RTCPObserver consumes RTCP batches read from peer connection senders.
type RTCPObserver interface {
	ProcessRTCP(ctx context.Context, packets []rtcp.Packet, observedFPS float64)
}

// WebRTCTransport opens pion peer connections, exchanging SDP and ICE through
// the signal client. It satisfies the core's PeerTransport port.
type WebRTCTransport struct {
	cfg    WebRTCConfig
	signal *SignalClient
	rtcp   RTCPObserver
	api    *webrtc.API
	logger *zap.SugaredLogger
}

func NewWebRTCTransport(cfg WebRTCConfig, signal *SignalClient, rtcpObserver RTCPObserver, logger *zap.SugaredLogger) *WebRTCTransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max)
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		logger.Errorw("registering default codecs", "error", err)
	}

	return &WebRTCTransport{
		cfg:    cfg,
		signal: signal,
		rtcp:   rtcpObserver,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		logger: logger,
	}
}

// Open negotiates a peer connection toward one remote participant. The
// returned handle owns the connection and its signaling registration.
func (t *WebRTCTransport) Open(ctx context.Context, peerID domain.ParticipantID) (ports.TransportHandle, error) {
	pc, err := t.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   t.cfg.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("signal", nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("creating data channel: %w", err)
	}

	// Media transceivers give the peer's receiver reports a way back to us;
	// the network sampler reads them off each sender.
	if t.rtcp != nil {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind); err != nil {
				pc.Close()
				return nil, fmt.Errorf("adding %s transceiver: %w", kind, err)
			}
		}
		for _, sender := range pc.GetSenders() {
			sender := sender
			go t.forwardRTCP(func(buf []byte) (int, error) {
				n, _, err := sender.Read(buf)
				return n, err
			})
		}
	}

	h := &webrtcHandle{
		peerID:    peerID,
		pc:        pc,
		dc:        dc,
		transport: t,
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		payload, _ := json.Marshal(candidatePayload{Candidate: candidate.ToJSON().Candidate})
		if err := t.signal.Send(peerID, "ice_candidate", payload); err != nil {
			t.logger.Warnw("sending ICE candidate", "peer_id", peerID, "error", err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Infow("peer connection state changed", "peer_id", peerID, "state", state)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h.mu.RLock()
		fn := h.onSignal
		h.mu.RUnlock()
		if fn != nil {
			fn(msg.Data)
		}
	})

	t.signal.RegisterHandler(peerID, h.handleSignal)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		h.Close()
		return nil, fmt.Errorf("setting local description: %w", err)
	}

	payload, _ := json.Marshal(sdpPayload{SDP: offer.SDP})
	if err := t.signal.Send(peerID, "offer", payload); err != nil {
		h.Close()
		return nil, fmt.Errorf("sending offer: %w", err)
	}

	return h, nil
}

// forwardRTCP pumps one sender's RTCP stream into the observer until the
// read side reports an error (sender stopped or connection closed).
func (t *WebRTCTransport) forwardRTCP(read func([]byte) (int, error)) {
	buf := make([]byte, 1500)
	for {
		n, err := read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			t.logger.Debugw("discarding malformed RTCP batch", "error", err)
			continue
		}
		t.rtcp.ProcessRTCP(context.Background(), packets, 0)
	}
}

// webrtcHandle is one peer's open transport leg.
type webrtcHandle struct {
	peerID    domain.ParticipantID
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	transport *WebRTCTransport

	mu       sync.RWMutex
	onSignal func([]byte)
	closed   bool
}

func (h *webrtcHandle) PeerID() domain.ParticipantID { return h.peerID }

func (h *webrtcHandle) Send(signal []byte) error {
	return h.dc.Send(signal)
}

func (h *webrtcHandle) OnSignal(fn func(signal []byte)) {
	h.mu.Lock()
	h.onSignal = fn
	h.mu.Unlock()
}

// handleSignal processes inbound signaling relayed from this handle's peer.
func (h *webrtcHandle) handleSignal(msg SignalMessage) {
	switch msg.Type {
	case "answer":
		var payload sdpPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.transport.logger.Warnw("invalid answer payload", "peer_id", h.peerID, "error", err)
			return
		}
		if err := h.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  payload.SDP,
		}); err != nil {
			h.transport.logger.Warnw("setting remote description", "peer_id", h.peerID, "error", err)
		}

	case "ice_candidate":
		var payload candidatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.transport.logger.Warnw("invalid ICE candidate payload", "peer_id", h.peerID, "error", err)
			return
		}
		if err := h.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: payload.Candidate}); err != nil {
			h.transport.logger.Warnw("adding ICE candidate", "peer_id", h.peerID, "error", err)
		}

	default:
		h.transport.logger.Debugw("ignoring signal", "peer_id", h.peerID, "type", msg.Type)
	}
}

func (h *webrtcHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.transport.signal.UnregisterHandler(h.peerID)
	return h.pc.Close()
}
