package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"
	"soundradius/pkg/tracing"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrchestratorConfig carries the local identity and radius bounds.
type OrchestratorConfig struct {
	LocalID          domain.ParticipantID
	LocalDisplayName string
	MinRadius        float64
	MaxRadius        float64
	DefaultRadius    float64
}

// orchestrator composes the capture controller, peer registry, proximity
// engine and layout engine into one authoritative snapshot stream. Every
// recompute is wholesale: positions and edges in a snapshot always come from
// the same pass over the same participant set.
type orchestrator struct {
	capture   ports.CaptureController
	registry  ports.PeerRegistry
	proximity *ProximityService
	layout    *LayoutService
	metrics   ports.MetricsCollector
	clk       clock.Clock
	logger    *zap.SugaredLogger
	cfg       OrchestratorConfig

	unsubscribes []func()

	mu            sync.Mutex
	localMode     domain.SpeakingMode
	localRadius   float64
	snapshot      domain.Snapshot
	revision      uint64
	lastPeerCount int
	lastTier      domain.QualityTier
	subs          map[int]func(domain.Snapshot)
	nextSub       int
	closed        bool
}

func NewOrchestrator(
	capture ports.CaptureController,
	registry ports.PeerRegistry,
	proximity *ProximityService,
	layout *LayoutService,
	metrics ports.MetricsCollector,
	clk clock.Clock,
	cfg OrchestratorConfig,
	logger *zap.SugaredLogger,
) ports.Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := &orchestrator{
		capture:     capture,
		registry:    registry,
		proximity:   proximity,
		layout:      layout,
		metrics:     metrics,
		clk:         clk,
		logger:      logger,
		cfg:         cfg,
		localMode:   domain.ModePrivate,
		localRadius: cfg.DefaultRadius,
		lastTier:    capture.Quality(),
		subs:        make(map[int]func(domain.Snapshot)),
	}

	o.unsubscribes = append(o.unsubscribes,
		capture.Subscribe(o.recompute),
		registry.Subscribe(o.onRegistryChanged),
		layout.Subscribe(o.recompute),
	)

	o.recompute()
	return o
}

// onRegistryChanged feeds the current membership into the layout engine before
// recomputing, so a join/leave and its layout effect land in one snapshot.
func (o *orchestrator) onRegistryChanged() {
	peers := o.registry.Peers()
	ids := make([]domain.ParticipantID, len(peers))
	for i, p := range peers {
		ids[i] = p.ID
	}
	o.layout.SetParticipants(ids)
	o.recompute()
}

// recompute rebuilds the snapshot from scratch and publishes it.
func (o *orchestrator) recompute() {
	start := o.clk.Now()
	_, span := tracing.StartSpan(context.Background(), "session.recompute")
	defer span.End()

	peers := o.registry.Peers()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}

	local := domain.Participant{
		ID:           o.cfg.LocalID,
		DisplayName:  o.cfg.LocalDisplayName,
		AudioEnabled: o.capture.AudioEnabled(),
		VideoEnabled: o.capture.VideoEnabled(),
		RadiusSize:   o.localRadius,
		Position:     o.layout.LocalPosition(),
		SpeakingMode: o.localMode,
		Movable:      o.layout.Mode() == domain.LayoutSpotlight,
	}

	remotes := make([]domain.Participant, 0, len(peers))
	for _, rec := range peers {
		pos, movable := o.layout.PositionOf(rec.ID)
		remotes = append(remotes, domain.Participant{
			ID:           rec.ID,
			DisplayName:  rec.DisplayName,
			AudioEnabled: rec.AudioEnabled,
			VideoEnabled: rec.VideoEnabled,
			RadiusSize:   rec.RadiusSize,
			Position:     pos,
			SpeakingMode: rec.SpeakingMode,
			Movable:      movable,
		})
	}

	edges := o.proximity.ComputeEdges(local, remotes)

	o.revision++
	snap := domain.Snapshot{
		Local:        local,
		Remotes:      remotes,
		Edges:        edges,
		CaptureState: o.capture.State(),
		ScreenShare:  o.capture.ScreenSharing(),
		QualityTier:  o.capture.Quality(),
		LayoutMode:   o.layout.Mode(),
		Animating:    o.layout.Animating(),
		Revision:     o.revision,
		ComputedAt:   o.clk.Now(),
	}
	o.snapshot = snap

	o.observeDeltasLocked(snap)

	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(domain.Snapshot), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	connected := 0
	for _, e := range edges {
		if e.Connected {
			connected++
		}
	}
	if o.metrics != nil {
		o.metrics.ObserveRecompute(o.clk.Now().Sub(start), 1+len(remotes), connected)
	}
	tracing.AddSpanAttributes(context.Background(),
		attribute.Int("participants", 1+len(remotes)),
		attribute.Int("connected_edges", connected),
	)

	for _, fn := range fns {
		fn(snap)
	}
}

// observeDeltasLocked turns snapshot-to-snapshot differences into metrics.
func (o *orchestrator) observeDeltasLocked(snap domain.Snapshot) {
	if o.metrics == nil {
		o.lastPeerCount = len(snap.Remotes)
		o.lastTier = snap.QualityTier
		return
	}
	for i := o.lastPeerCount; i < len(snap.Remotes); i++ {
		o.metrics.RecordPeerJoined()
	}
	for i := len(snap.Remotes); i < o.lastPeerCount; i++ {
		o.metrics.RecordPeerLeft()
	}
	if snap.QualityTier != o.lastTier {
		o.metrics.RecordQualitySwitch(snap.QualityTier)
	}
	o.metrics.SetCaptureState(snap.CaptureState)
	o.lastPeerCount = len(snap.Remotes)
	o.lastTier = snap.QualityTier
}

func (o *orchestrator) Snapshot() domain.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot
}

func (o *orchestrator) Subscribe(fn func(domain.Snapshot)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *orchestrator) SetLocalSpeakingMode(mode domain.SpeakingMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid speaking mode %q", mode)
	}
	o.mu.Lock()
	if mode == o.localMode {
		o.mu.Unlock()
		return nil
	}
	o.localMode = mode
	o.mu.Unlock()

	o.logger.Infow("local speaking mode changed", "mode", mode)
	o.recompute()
	return nil
}

func (o *orchestrator) SetLocalRadius(radius float64) {
	clamped := domain.ClampRadius(radius, o.cfg.MinRadius, o.cfg.MaxRadius)
	o.mu.Lock()
	if clamped == o.localRadius {
		o.mu.Unlock()
		return
	}
	o.localRadius = clamped
	o.mu.Unlock()
	o.recompute()
}

func (o *orchestrator) SetLayoutMode(mode domain.LayoutMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid layout mode %q", mode)
	}
	o.layout.SetMode(mode)
	return nil
}

func (o *orchestrator) MoveParticipant(id domain.ParticipantID, pos domain.Position) error {
	return o.layout.SetManualPosition(id, pos)
}

// Close detaches from the upstream services. It does not tear them down; the
// composer owns their lifecycles.
func (o *orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.subs = make(map[int]func(domain.Snapshot))
	o.mu.Unlock()

	for _, unsub := range o.unsubscribes {
		unsub()
	}
}
