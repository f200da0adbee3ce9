package ports

import (
	"context"
	"time"

	"soundradius/internal/core/domain"
)

// CaptureController owns the local capture lifecycle.
type CaptureController interface {
	Acquire(ctx context.Context, audioDeviceID, videoDeviceID string) error
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	SetQuality(ctx context.Context, tier domain.QualityTier) error
	ToggleScreenShare(ctx context.Context) (bool, error)
	ObserveNetwork(ctx context.Context, sample domain.NetworkSample)
	State() domain.CaptureState
	Quality() domain.QualityTier
	AudioEnabled() bool
	VideoEnabled() bool
	ScreenSharing() bool
	Subscribe(fn func()) (unsubscribe func())
	Close()
}

// PeerRegistry tracks remote participants' connection lifecycle.
type PeerRegistry interface {
	Join(ctx context.Context, id domain.ParticipantID, displayName string) error
	Leave(ctx context.Context, id domain.ParticipantID) error
	UpdateAudio(id domain.ParticipantID, enabled bool) error
	UpdateVideo(id domain.ParticipantID, enabled bool) error
	UpdateRadius(id domain.ParticipantID, radius float64) error
	UpdateSpeakingMode(id domain.ParticipantID, mode domain.SpeakingMode) error
	Peers() []domain.PeerRecord
	Subscribe(fn func()) (unsubscribe func())
	Disconnect()
}

// Orchestrator republishes one coherent session snapshot to consumers.
type Orchestrator interface {
	Snapshot() domain.Snapshot
	Subscribe(fn func(domain.Snapshot)) (unsubscribe func())

	SetLocalSpeakingMode(mode domain.SpeakingMode) error
	SetLocalRadius(radius float64)
	SetLayoutMode(mode domain.LayoutMode) error
	MoveParticipant(id domain.ParticipantID, pos domain.Position) error

	Close()
}

// MetricsCollector records session metrics. Implementations must be safe for
// concurrent use.
type MetricsCollector interface {
	RecordPeerJoined()
	RecordPeerLeft()
	RecordQualitySwitch(tier domain.QualityTier)
	RecordReconnectAttempt()
	RecordReconnectExhausted()
	ObserveRecompute(duration time.Duration, participants, connectedEdges int)
	SetCaptureState(state domain.CaptureState)
}
