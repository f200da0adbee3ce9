package capture

import (
	"context"
	"fmt"
	"sync"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PionProvider produces capture handles backed by pion local tracks. RTP
// sourced from the media pipeline is fed through Provider.WriteAudio/WriteVideo
// and gated by the handle's enabled flags.
type PionProvider struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handles map[string]*pionHandle
}

func NewPionProvider(logger *zap.SugaredLogger) *PionProvider {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PionProvider{
		logger:  logger,
		handles: make(map[string]*pionHandle),
	}
}

func (p *PionProvider) RequestCapture(ctx context.Context, constraints ports.CaptureConstraints) (ports.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamLabel := "camera"
	if constraints.Screen {
		streamLabel = "screen"
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		streamLabel,
	)
	if err != nil {
		return nil, fmt.Errorf("creating audio track: %w", err)
	}

	videoTrack, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		streamLabel,
	)
	if err != nil {
		return nil, fmt.Errorf("creating video track: %w", err)
	}

	h := &pionHandle{
		id:           uuid.NewString(),
		provider:     p,
		audioTrack:   audioTrack,
		videoTrack:   videoTrack,
		params:       constraints.Params,
		audioEnabled: true,
		videoEnabled: true,
	}

	p.mu.Lock()
	p.handles[h.id] = h
	p.mu.Unlock()

	p.logger.Infow("capture acquired",
		"handle_id", h.id,
		"screen", constraints.Screen,
		"width", constraints.Params.Width,
		"height", constraints.Params.Height,
	)
	return h, nil
}

func (p *PionProvider) EnumerateDevices(ctx context.Context) ([]ports.Device, error) {
	// Device discovery belongs to the media pipeline feeding this provider;
	// only the default pair is advertised here.
	return []ports.Device{
		{ID: "default-audio", Label: "Default Microphone", Kind: "audioinput"},
		{ID: "default-video", Label: "Default Camera", Kind: "videoinput"},
	}, nil
}

func (p *PionProvider) ApplyConstraints(handle ports.CaptureHandle, params domain.CaptureParams) error {
	h, ok := handle.(*pionHandle)
	if !ok {
		return fmt.Errorf("foreign capture handle %s", handle.ID())
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return domain.ErrCaptureClosed
	}
	h.params = params

	p.logger.Infow("capture constraints applied",
		"handle_id", h.id,
		"width", params.Width,
		"height", params.Height,
		"frame_rate", params.FrameRate,
	)
	return nil
}

func (p *PionProvider) release(id string) {
	p.mu.Lock()
	delete(p.handles, id)
	p.mu.Unlock()
}

// pionHandle is one acquired capture backed by a pair of local tracks.
type pionHandle struct {
	id         string
	provider   *PionProvider
	audioTrack *webrtc.TrackLocalStaticRTP
	videoTrack *webrtc.TrackLocalStaticRTP

	mu           sync.Mutex
	params       domain.CaptureParams
	audioEnabled bool
	videoEnabled bool
	audioEnded   bool
	videoEnded   bool
	onEnded      func()
	closed       bool
}

func (h *pionHandle) ID() string { return h.id }

func (h *pionHandle) SetAudioEnabled(enabled bool) {
	h.mu.Lock()
	h.audioEnabled = enabled
	h.mu.Unlock()
}

func (h *pionHandle) SetVideoEnabled(enabled bool) {
	h.mu.Lock()
	h.videoEnabled = enabled
	h.mu.Unlock()
}

func (h *pionHandle) VideoEnded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.videoEnded
}

func (h *pionHandle) TracksEnded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioEnded && h.videoEnded
}

func (h *pionHandle) OnEnded(fn func()) {
	h.mu.Lock()
	h.onEnded = fn
	h.mu.Unlock()
}

// AudioTrack exposes the local track for attaching to peer connections.
func (h *pionHandle) AudioTrack() *webrtc.TrackLocalStaticRTP { return h.audioTrack }
func (h *pionHandle) VideoTrack() *webrtc.TrackLocalStaticRTP { return h.videoTrack }

// WriteAudio forwards an RTP packet to the audio track when enabled.
func (h *pionHandle) WriteAudio(pkt *rtp.Packet) error {
	h.mu.Lock()
	enabled := h.audioEnabled && !h.closed
	h.mu.Unlock()
	if !enabled {
		return nil
	}
	return h.audioTrack.WriteRTP(pkt)
}

// WriteVideo forwards an RTP packet to the video track when enabled.
func (h *pionHandle) WriteVideo(pkt *rtp.Packet) error {
	h.mu.Lock()
	enabled := h.videoEnabled && !h.closed
	h.mu.Unlock()
	if !enabled {
		return nil
	}
	return h.videoTrack.WriteRTP(pkt)
}

// MarkEnded records an out-of-band end of the underlying source and fires the
// registered callback.
func (h *pionHandle) MarkEnded() {
	h.mu.Lock()
	h.audioEnded = true
	h.videoEnded = true
	fn := h.onEnded
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *pionHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.provider.release(h.id)
}
