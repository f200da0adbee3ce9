package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	peerID domain.ParticipantID

	mu     sync.Mutex
	closed bool
}

func (h *fakeHandle) PeerID() domain.ParticipantID { return h.peerID }
func (h *fakeHandle) Send(signal []byte) error     { return nil }
func (h *fakeHandle) OnSignal(fn func([]byte))     {}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeTransport struct {
	mu       sync.Mutex
	failNext bool
	handles  map[domain.ParticipantID]*fakeHandle
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handles: make(map[domain.ParticipantID]*fakeHandle)}
}

func (t *fakeTransport) Open(ctx context.Context, peerID domain.ParticipantID) (ports.TransportHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failNext {
		t.failNext = false
		return nil, fmt.Errorf("simulated transport failure")
	}
	h := &fakeHandle{peerID: peerID}
	t.handles[peerID] = h
	return h, nil
}

func newTestRegistry(t *testing.T) (ports.PeerRegistry, *fakeTransport, *fakeSink) {
	t.Helper()
	transport := newFakeTransport()
	sink := &fakeSink{}
	r := NewPeerRegistry(transport, sink, DefaultRegistryConfig(), nil)
	return r, transport, sink
}

func TestRegistry_JoinDefaults(t *testing.T) {
	r, _, sink := newTestRegistry(t)

	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))

	peers := r.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, domain.ParticipantID("alice"), peers[0].ID)
	assert.Equal(t, "Alice", peers[0].DisplayName)
	assert.True(t, peers[0].AudioEnabled)
	assert.True(t, peers[0].VideoEnabled)
	assert.Equal(t, 50.0, peers[0].RadiusSize)
	assert.Equal(t, domain.ModePrivate, peers[0].SpeakingMode)
	assert.Equal(t, 1, sink.count(domain.EventPeerJoined))
}

func TestRegistry_JoinDuplicate(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))

	err := r.Join(context.Background(), "alice", "Alice again")
	assert.ErrorIs(t, err, domain.ErrPeerExists)
	assert.Len(t, r.Peers(), 1)
}

func TestRegistry_JoinTransportFailure(t *testing.T) {
	r, transport, sink := newTestRegistry(t)
	transport.failNext = true

	err := r.Join(context.Background(), "alice", "Alice")
	require.ErrorIs(t, err, domain.ErrTransportOpenFailed)

	// No record, no event; the caller decides whether to retry.
	assert.Empty(t, r.Peers())
	assert.Equal(t, 0, sink.count(domain.EventPeerJoined))

	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))
	assert.Len(t, r.Peers(), 1)
}

func TestRegistry_LeaveClosesHandle(t *testing.T) {
	r, transport, sink := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))

	require.NoError(t, r.Leave(context.Background(), "alice"))
	assert.Empty(t, r.Peers())
	assert.True(t, transport.handles["alice"].isClosed())
	assert.Equal(t, 1, sink.count(domain.EventPeerLeft))

	assert.ErrorIs(t, r.Leave(context.Background(), "alice"), domain.ErrPeerNotFound)
}

func TestRegistry_Updates(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))

	require.NoError(t, r.UpdateAudio("alice", false))
	require.NoError(t, r.UpdateVideo("alice", false))
	require.NoError(t, r.UpdateSpeakingMode("alice", domain.ModeClassroom))

	peers := r.Peers()
	assert.False(t, peers[0].AudioEnabled)
	assert.False(t, peers[0].VideoEnabled)
	assert.Equal(t, domain.ModeClassroom, peers[0].SpeakingMode)

	assert.ErrorIs(t, r.UpdateAudio("ghost", true), domain.ErrPeerNotFound)
	assert.Error(t, r.UpdateSpeakingMode("alice", "yelling"))
}

func TestRegistry_RadiusClamped(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))

	require.NoError(t, r.UpdateRadius("alice", 500))
	assert.Equal(t, 100.0, r.Peers()[0].RadiusSize)

	require.NoError(t, r.UpdateRadius("alice", 1))
	assert.Equal(t, 20.0, r.Peers()[0].RadiusSize)

	require.NoError(t, r.UpdateRadius("alice", 60))
	assert.Equal(t, 60.0, r.Peers()[0].RadiusSize)
}

func TestRegistry_PeersInJoinOrder(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	for _, id := range []domain.ParticipantID{"c", "a", "b"} {
		require.NoError(t, r.Join(context.Background(), id, string(id)))
	}
	require.NoError(t, r.Leave(context.Background(), "a"))
	require.NoError(t, r.Join(context.Background(), "a", "a"))

	peers := r.Peers()
	require.Len(t, peers, 3)
	assert.Equal(t, domain.ParticipantID("c"), peers[0].ID)
	assert.Equal(t, domain.ParticipantID("b"), peers[1].ID)
	assert.Equal(t, domain.ParticipantID("a"), peers[2].ID)
}

func TestRegistry_DisconnectClosesEverything(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))
	require.NoError(t, r.Join(context.Background(), "bob", "Bob"))

	r.Disconnect()
	r.Disconnect() // idempotent

	assert.Empty(t, r.Peers())
	assert.True(t, transport.handles["alice"].isClosed())
	assert.True(t, transport.handles["bob"].isClosed())

	assert.ErrorIs(t, r.Join(context.Background(), "carol", "Carol"), domain.ErrRegistryClosed)
}

func TestRegistry_SubscribeNotified(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	var calls int
	unsubscribe := r.Subscribe(func() { calls++ })

	require.NoError(t, r.Join(context.Background(), "alice", "Alice"))
	require.NoError(t, r.UpdateRadius("alice", 70))
	require.NoError(t, r.Leave(context.Background(), "alice"))
	assert.Equal(t, 3, calls)

	unsubscribe()
	require.NoError(t, r.Join(context.Background(), "bob", "Bob"))
	assert.Equal(t, 3, calls)
}
