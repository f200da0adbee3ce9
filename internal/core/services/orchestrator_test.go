package services

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"
	"soundradius/internal/infrastructure/capture"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	mu                sync.Mutex
	joined            int
	left              int
	switches          int
	reconnectAttempts int
	exhausted         int
	state             domain.CaptureState
}

func (c *fakeCollector) RecordPeerJoined() {
	c.mu.Lock()
	c.joined++
	c.mu.Unlock()
}

func (c *fakeCollector) RecordPeerLeft() {
	c.mu.Lock()
	c.left++
	c.mu.Unlock()
}

func (c *fakeCollector) RecordQualitySwitch(domain.QualityTier) {
	c.mu.Lock()
	c.switches++
	c.mu.Unlock()
}

func (c *fakeCollector) RecordReconnectAttempt() {
	c.mu.Lock()
	c.reconnectAttempts++
	c.mu.Unlock()
}

func (c *fakeCollector) RecordReconnectExhausted() {
	c.mu.Lock()
	c.exhausted++
	c.mu.Unlock()
}

func (c *fakeCollector) ObserveRecompute(time.Duration, int, int) {}

func (c *fakeCollector) SetCaptureState(state domain.CaptureState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

type orchestratorFixture struct {
	orchestrator ports.Orchestrator
	captureCtrl  ports.CaptureController
	registry     ports.PeerRegistry
	layout       *LayoutService
	collector    *fakeCollector
	clock        *clock.Mock
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	mock := clock.NewMock()
	collector := &fakeCollector{}

	captureCtrl := NewCaptureController(
		capture.NewSimProvider(), NewQualityPolicy(), &fakeSink{}, collector, mock, DefaultCaptureConfig(), nil,
	)
	registry := NewPeerRegistry(newFakeTransport(), &fakeSink{}, DefaultRegistryConfig(), nil)
	layout := NewLayoutService(DefaultLayoutConfig(), "local", mock, rand.New(rand.NewSource(1)), nil)

	o := NewOrchestrator(
		captureCtrl, registry, NewProximityService(10), layout, collector, mock,
		OrchestratorConfig{
			LocalID:          "local",
			LocalDisplayName: "Local",
			MinRadius:        20,
			MaxRadius:        100,
			DefaultRadius:    50,
		}, nil)

	t.Cleanup(func() {
		o.Close()
		registry.Disconnect()
		captureCtrl.Close()
	})
	return &orchestratorFixture{
		orchestrator: o,
		captureCtrl:  captureCtrl,
		registry:     registry,
		layout:       layout,
		collector:    collector,
		clock:        mock,
	}
}

func TestOrchestrator_InitialSnapshot(t *testing.T) {
	f := newOrchestratorFixture(t)

	snap := f.orchestrator.Snapshot()
	assert.Equal(t, domain.ParticipantID("local"), snap.Local.ID)
	assert.Equal(t, 50.0, snap.Local.RadiusSize)
	assert.Equal(t, domain.ModePrivate, snap.Local.SpeakingMode)
	assert.Equal(t, domain.CaptureIdle, snap.CaptureState)
	assert.Equal(t, domain.LayoutGrid, snap.LayoutMode)
	assert.Empty(t, snap.Remotes)
	assert.GreaterOrEqual(t, snap.Revision, uint64(1))
}

func TestOrchestrator_JoinLeaveFlowsIntoSnapshot(t *testing.T) {
	f := newOrchestratorFixture(t)

	require.NoError(t, f.registry.Join(context.Background(), "alice", "Alice"))
	require.NoError(t, f.registry.Join(context.Background(), "bob", "Bob"))

	snap := f.orchestrator.Snapshot()
	require.Len(t, snap.Remotes, 2)
	require.Len(t, snap.Edges, 2)
	for _, edge := range snap.Edges {
		assert.Equal(t, domain.ParticipantID("local"), edge.SourceID)
		assert.False(t, edge.Connected) // grid mode: no positions
	}

	require.NoError(t, f.registry.Leave(context.Background(), "alice"))
	snap = f.orchestrator.Snapshot()
	require.Len(t, snap.Remotes, 1)
	assert.Equal(t, domain.ParticipantID("bob"), snap.Remotes[0].ID)

	assert.Equal(t, 2, f.collector.joined)
	assert.Equal(t, 1, f.collector.left)
}

func TestOrchestrator_ClassroomConnectsWithoutPositions(t *testing.T) {
	f := newOrchestratorFixture(t)
	require.NoError(t, f.registry.Join(context.Background(), "alice", "Alice"))

	require.NoError(t, f.registry.UpdateSpeakingMode("alice", domain.ModeClassroom))
	snap := f.orchestrator.Snapshot()
	require.Len(t, snap.Edges, 1)
	assert.True(t, snap.Edges[0].Connected)
}

func TestOrchestrator_SpotlightPositionsAndEdgesCohere(t *testing.T) {
	f := newOrchestratorFixture(t)
	require.NoError(t, f.registry.Join(context.Background(), "alice", "Alice"))

	require.NoError(t, f.orchestrator.SetLayoutMode(domain.LayoutSpotlight))
	snap := f.orchestrator.Snapshot()
	assert.True(t, snap.Animating)
	require.NotNil(t, snap.Local.Position)

	f.clock.Add(100 * time.Millisecond)
	snap = f.orchestrator.Snapshot()
	require.Len(t, snap.Remotes, 1)
	require.NotNil(t, snap.Remotes[0].Position)
	assert.True(t, snap.Remotes[0].Movable)

	// Settled at circle distance 35 with default radii 50+50 and scale 10:
	// threshold 10, so the edge is disconnected until they move closer.
	require.Len(t, snap.Edges, 1)
	assert.False(t, snap.Edges[0].Connected)

	near := domain.Position{
		X: snap.Local.Position.X + 5,
		Y: snap.Local.Position.Y,
	}
	require.NoError(t, f.orchestrator.MoveParticipant("alice", near))
	snap = f.orchestrator.Snapshot()
	assert.True(t, snap.Edges[0].Connected)
}

func TestOrchestrator_LocalControls(t *testing.T) {
	f := newOrchestratorFixture(t)

	f.orchestrator.SetLocalRadius(500)
	assert.Equal(t, 100.0, f.orchestrator.Snapshot().Local.RadiusSize)

	f.orchestrator.SetLocalRadius(1)
	assert.Equal(t, 20.0, f.orchestrator.Snapshot().Local.RadiusSize)

	require.NoError(t, f.orchestrator.SetLocalSpeakingMode(domain.ModeMuted))
	assert.Equal(t, domain.ModeMuted, f.orchestrator.Snapshot().Local.SpeakingMode)
	assert.Error(t, f.orchestrator.SetLocalSpeakingMode("yelling"))

	assert.Error(t, f.orchestrator.SetLayoutMode("stacked"))
}

func TestOrchestrator_MoveParticipantRequiresSpotlight(t *testing.T) {
	f := newOrchestratorFixture(t)
	require.NoError(t, f.registry.Join(context.Background(), "alice", "Alice"))

	err := f.orchestrator.MoveParticipant("alice", domain.Position{X: 10, Y: 10})
	assert.ErrorIs(t, err, domain.ErrWrongLayoutMode)
}

func TestOrchestrator_RevisionsIncreaseAndSubscribersSeeThem(t *testing.T) {
	f := newOrchestratorFixture(t)

	var mu sync.Mutex
	var revisions []uint64
	unsubscribe := f.orchestrator.Subscribe(func(snap domain.Snapshot) {
		mu.Lock()
		revisions = append(revisions, snap.Revision)
		mu.Unlock()
	})
	defer unsubscribe()

	require.NoError(t, f.registry.Join(context.Background(), "alice", "Alice"))
	f.orchestrator.SetLocalRadius(80)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, revisions)
	for i := 1; i < len(revisions); i++ {
		assert.Greater(t, revisions[i], revisions[i-1])
	}
	assert.Equal(t, f.orchestrator.Snapshot().Revision, revisions[len(revisions)-1])
}

func TestOrchestrator_CaptureStateReflected(t *testing.T) {
	f := newOrchestratorFixture(t)

	require.NoError(t, f.captureCtrl.Acquire(context.Background(), "", ""))
	snap := f.orchestrator.Snapshot()
	assert.Equal(t, domain.CaptureConnected, snap.CaptureState)
	assert.Equal(t, domain.TierHigh, snap.QualityTier)
	assert.Equal(t, domain.CaptureConnected, f.collector.state)
}
