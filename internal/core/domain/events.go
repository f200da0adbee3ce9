package domain

import "time"

// EventType identifies a discrete session lifecycle event.
type EventType string

const (
	EventCaptureFailed      EventType = "capture.failed"
	EventCaptureRecovered   EventType = "capture.recovered"
	EventReconnectExhausted EventType = "capture.reconnect_exhausted"
	EventQualityChanged     EventType = "capture.quality_changed"
	EventScreenShareStarted EventType = "capture.screenshare_started"
	EventScreenShareEnded   EventType = "capture.screenshare_ended"
	EventPeerJoined         EventType = "peer.joined"
	EventPeerLeft           EventType = "peer.left"
)

// Event is a structured lifecycle notification for the presentation layer.
// The core emits these and does not depend on how they are displayed.
type Event struct {
	Type          EventType     `json:"type"`
	Component     string        `json:"component"`
	ParticipantID ParticipantID `json:"participant_id,omitempty"`
	Message       string        `json:"message,omitempty"`
	Tier          QualityTier   `json:"tier,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}
