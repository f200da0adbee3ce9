package ports

import (
	"context"

	"soundradius/internal/core/domain"
)

// CaptureConstraints are the inputs to a capture request.
type CaptureConstraints struct {
	AudioDeviceID string
	VideoDeviceID string
	Params        domain.CaptureParams
	Screen        bool // display capture instead of camera
}

// Device describes one enumerable capture device.
type Device struct {
	ID    string
	Label string
	Kind  string // "audioinput", "videoinput"
}

// CaptureHandle is an opaque, exclusively-owned active capture. Only the
// component that acquired it may touch it; consumers see typed state instead.
type CaptureHandle interface {
	ID() string
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	// VideoEnded reports whether the underlying video track has ended.
	VideoEnded() bool
	// TracksEnded reports whether every owned track reports an ended state.
	TracksEnded() bool
	// OnEnded registers a callback fired when capture ends through an
	// out-of-band system action (e.g. the user stops screen sharing).
	OnEnded(fn func())
	Close()
}

// CaptureProvider is the device/OS layer the controller acquires capture from.
type CaptureProvider interface {
	RequestCapture(ctx context.Context, constraints CaptureConstraints) (CaptureHandle, error)
	EnumerateDevices(ctx context.Context) ([]Device, error)
	ApplyConstraints(handle CaptureHandle, params domain.CaptureParams) error
}

// TransportHandle is one remote peer's open transport leg, owned by the
// registry for the lifetime of the peer record.
type TransportHandle interface {
	PeerID() domain.ParticipantID
	Send(signal []byte) error
	OnSignal(fn func(signal []byte))
	Close() error
}

// PeerTransport opens transport handles toward remote peers. The core never
// interprets signal payloads beyond lifecycle.
type PeerTransport interface {
	Open(ctx context.Context, peerID domain.ParticipantID) (TransportHandle, error)
}

// NotificationSink receives discrete lifecycle events for display or logging.
type NotificationSink interface {
	Notify(event domain.Event)
}
