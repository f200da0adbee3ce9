package capture

import (
	"context"
	"fmt"
	"sync"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"github.com/google/uuid"
)

// SimProvider is an in-memory capture provider for tests and local runs. It
// can be scripted to fail a number of acquisitions or reject constraint
// changes, and its handles can be ended on demand.
type SimProvider struct {
	mu                sync.Mutex
	failNextAcquires  int
	failApply         bool
	acquireCalls      int
	applyCalls        int
	handles           map[string]*SimHandle
	lastConstraints   ports.CaptureConstraints
	lastAppliedParams domain.CaptureParams
}

func NewSimProvider() *SimProvider {
	return &SimProvider{handles: make(map[string]*SimHandle)}
}

// FailNextAcquires makes the next n RequestCapture calls fail.
func (p *SimProvider) FailNextAcquires(n int) {
	p.mu.Lock()
	p.failNextAcquires = n
	p.mu.Unlock()
}

// FailApplyConstraints toggles constraint application failure.
func (p *SimProvider) FailApplyConstraints(fail bool) {
	p.mu.Lock()
	p.failApply = fail
	p.mu.Unlock()
}

func (p *SimProvider) AcquireCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireCalls
}

func (p *SimProvider) ApplyCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.applyCalls
}

func (p *SimProvider) LastConstraints() ports.CaptureConstraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastConstraints
}

func (p *SimProvider) LastAppliedParams() domain.CaptureParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAppliedParams
}

// Handles returns the currently open handles.
func (p *SimProvider) Handles() []*SimHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*SimHandle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	return out
}

func (p *SimProvider) RequestCapture(ctx context.Context, constraints ports.CaptureConstraints) (ports.CaptureHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.acquireCalls++
	p.lastConstraints = constraints
	if p.failNextAcquires > 0 {
		p.failNextAcquires--
		p.mu.Unlock()
		return nil, fmt.Errorf("simulated device unavailable")
	}

	h := &SimHandle{
		id:           uuid.NewString(),
		provider:     p,
		screen:       constraints.Screen,
		audioEnabled: true,
		videoEnabled: true,
	}
	p.handles[h.id] = h
	p.mu.Unlock()
	return h, nil
}

func (p *SimProvider) EnumerateDevices(ctx context.Context) ([]ports.Device, error) {
	return []ports.Device{
		{ID: "sim-audio", Label: "Simulated Microphone", Kind: "audioinput"},
		{ID: "sim-video", Label: "Simulated Camera", Kind: "videoinput"},
	}, nil
}

func (p *SimProvider) ApplyConstraints(handle ports.CaptureHandle, params domain.CaptureParams) error {
	p.mu.Lock()
	p.applyCalls++
	fail := p.failApply
	if !fail {
		p.lastAppliedParams = params
	}
	p.mu.Unlock()

	if fail {
		return fmt.Errorf("simulated constraint rejection")
	}
	return nil
}

func (p *SimProvider) release(id string) {
	p.mu.Lock()
	delete(p.handles, id)
	p.mu.Unlock()
}

// SimHandle is a scriptable capture handle.
type SimHandle struct {
	id       string
	provider *SimProvider
	screen   bool

	mu           sync.Mutex
	audioEnabled bool
	videoEnabled bool
	audioEnded   bool
	videoEnded   bool
	onEnded      func()
	closed       bool
}

func (h *SimHandle) ID() string   { return h.id }
func (h *SimHandle) Screen() bool { return h.screen }

func (h *SimHandle) SetAudioEnabled(enabled bool) {
	h.mu.Lock()
	h.audioEnabled = enabled
	h.mu.Unlock()
}

func (h *SimHandle) SetVideoEnabled(enabled bool) {
	h.mu.Lock()
	h.videoEnabled = enabled
	h.mu.Unlock()
}

func (h *SimHandle) AudioEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioEnabled
}

func (h *SimHandle) VideoEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.videoEnabled
}

func (h *SimHandle) VideoEnded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.videoEnded
}

func (h *SimHandle) TracksEnded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audioEnded && h.videoEnded
}

func (h *SimHandle) OnEnded(fn func()) {
	h.mu.Lock()
	h.onEnded = fn
	h.mu.Unlock()
}

// EndVideo simulates the video track ending (camera unplugged).
func (h *SimHandle) EndVideo() {
	h.mu.Lock()
	h.videoEnded = true
	h.mu.Unlock()
}

// EndAllTracks simulates every owned track ending, firing the ended callback.
func (h *SimHandle) EndAllTracks() {
	h.mu.Lock()
	h.audioEnded = true
	h.videoEnded = true
	fn := h.onEnded
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *SimHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *SimHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.provider.release(h.id)
}
