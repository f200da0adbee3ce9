package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/ports"

	"go.uber.org/zap"
)

// RegistryConfig bounds per-peer radii.
type RegistryConfig struct {
	MinRadius     float64
	MaxRadius     float64
	DefaultRadius float64
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{MinRadius: 20, MaxRadius: 100, DefaultRadius: 50}
}

type peerEntry struct {
	record domain.PeerRecord
	handle ports.TransportHandle
}

// peerRegistry owns remote peer records and their transport handles. It is an
// explicitly constructed instance held by its composer; there is no
// package-level shared registry.
type peerRegistry struct {
	transport ports.PeerTransport
	sink      ports.NotificationSink
	cfg       RegistryConfig
	logger    *zap.SugaredLogger

	notifier notifier

	mu        sync.RWMutex
	entries   map[domain.ParticipantID]*peerEntry
	joinOrder []domain.ParticipantID
	closed    bool
}

func NewPeerRegistry(transport ports.PeerTransport, sink ports.NotificationSink, cfg RegistryConfig, logger *zap.SugaredLogger) ports.PeerRegistry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &peerRegistry{
		transport: transport,
		sink:      sink,
		cfg:       cfg,
		logger:    logger,
		entries:   make(map[domain.ParticipantID]*peerEntry),
	}
}

func (r *peerRegistry) Join(ctx context.Context, id domain.ParticipantID, displayName string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.ErrRegistryClosed
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("peer %s: %w", id, domain.ErrPeerExists)
	}
	r.mu.Unlock()

	// Transport open happens outside the lock; the registry does not
	// auto-retry a failed open.
	handle, err := r.transport.Open(ctx, id)
	if err != nil {
		return fmt.Errorf("peer %s: %w: %v", id, domain.ErrTransportOpenFailed, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		handle.Close()
		return domain.ErrRegistryClosed
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		handle.Close()
		return fmt.Errorf("peer %s: %w", id, domain.ErrPeerExists)
	}
	r.entries[id] = &peerEntry{
		record: domain.PeerRecord{
			ID:           id,
			DisplayName:  displayName,
			AudioEnabled: true,
			VideoEnabled: true,
			RadiusSize:   r.cfg.DefaultRadius,
			SpeakingMode: domain.ModePrivate,
		},
		handle: handle,
	}
	r.joinOrder = append(r.joinOrder, id)
	r.mu.Unlock()

	r.logger.Infow("peer joined", "peer_id", id, "display_name", displayName)
	r.sink.Notify(domain.Event{
		Type:          domain.EventPeerJoined,
		Component:     "registry",
		ParticipantID: id,
		Message:       displayName,
		Timestamp:     time.Now(),
	})
	r.notifier.publish()
	return nil
}

func (r *peerRegistry) Leave(ctx context.Context, id domain.ParticipantID) error {
	r.mu.Lock()
	entry, exists := r.entries[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("peer %s: %w", id, domain.ErrPeerNotFound)
	}
	delete(r.entries, id)
	for i, existing := range r.joinOrder {
		if existing == id {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if err := entry.handle.Close(); err != nil {
		r.logger.Warnw("closing transport handle", "peer_id", id, "error", err)
	}

	r.logger.Infow("peer left", "peer_id", id)
	r.sink.Notify(domain.Event{
		Type:          domain.EventPeerLeft,
		Component:     "registry",
		ParticipantID: id,
		Timestamp:     time.Now(),
	})
	r.notifier.publish()
	return nil
}

func (r *peerRegistry) UpdateAudio(id domain.ParticipantID, enabled bool) error {
	return r.mutate(id, func(rec *domain.PeerRecord) {
		rec.AudioEnabled = enabled
	})
}

func (r *peerRegistry) UpdateVideo(id domain.ParticipantID, enabled bool) error {
	return r.mutate(id, func(rec *domain.PeerRecord) {
		rec.VideoEnabled = enabled
	})
}

func (r *peerRegistry) UpdateRadius(id domain.ParticipantID, radius float64) error {
	return r.mutate(id, func(rec *domain.PeerRecord) {
		rec.RadiusSize = domain.ClampRadius(radius, r.cfg.MinRadius, r.cfg.MaxRadius)
	})
}

func (r *peerRegistry) UpdateSpeakingMode(id domain.ParticipantID, mode domain.SpeakingMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid speaking mode %q", mode)
	}
	return r.mutate(id, func(rec *domain.PeerRecord) {
		rec.SpeakingMode = mode
	})
}

func (r *peerRegistry) mutate(id domain.ParticipantID, fn func(*domain.PeerRecord)) error {
	r.mu.Lock()
	entry, exists := r.entries[id]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("peer %s: %w", id, domain.ErrPeerNotFound)
	}
	fn(&entry.record)
	r.mu.Unlock()

	r.notifier.publish()
	return nil
}

// Peers returns copies of all records in join order.
func (r *peerRegistry) Peers() []domain.PeerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.PeerRecord, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		records = append(records, r.entries[id].record)
	}
	return records
}

func (r *peerRegistry) Subscribe(fn func()) (unsubscribe func()) {
	return r.notifier.subscribe(fn)
}

// Disconnect closes every open transport handle before clearing the registry.
// Safe to call more than once.
func (r *peerRegistry) Disconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[domain.ParticipantID]*peerEntry)
	r.joinOrder = nil
	r.mu.Unlock()

	for id, entry := range entries {
		if err := entry.handle.Close(); err != nil {
			r.logger.Warnw("closing transport handle on disconnect", "peer_id", id, "error", err)
		}
	}
	if len(entries) > 0 {
		r.notifier.publish()
	}
}
