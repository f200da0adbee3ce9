package domain

import "math"

type ParticipantID string
type SessionID string

// SpeakingMode controls whether proximity rules apply to a participant.
type SpeakingMode string

const (
	// ModePrivate gates audibility on proximity-radius overlap.
	ModePrivate SpeakingMode = "private"
	// ModeClassroom bypasses proximity: always audible to/from everyone.
	ModeClassroom SpeakingMode = "classroom"
	// ModeMuted forces disconnection regardless of position.
	ModeMuted SpeakingMode = "muted"
)

func (m SpeakingMode) Valid() bool {
	switch m {
	case ModePrivate, ModeClassroom, ModeMuted:
		return true
	}
	return false
}

// Position is a point in the normalized [0,100]x[0,100] plane.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two plane points.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Participant is a conference member as seen by the session core.
// Position is nil for participants not yet placed.
type Participant struct {
	ID           ParticipantID `json:"id"`
	DisplayName  string        `json:"display_name"`
	AudioEnabled bool          `json:"audio_enabled"`
	VideoEnabled bool          `json:"video_enabled"`
	RadiusSize   float64       `json:"radius_size"`
	Position     *Position     `json:"position,omitempty"`
	SpeakingMode SpeakingMode  `json:"speaking_mode"`
	Movable      bool          `json:"movable"`
}

// PeerRecord is the registry's view of one remote participant. Transport and
// stream handles are owned exclusively by the registry and never exposed here.
type PeerRecord struct {
	ID           ParticipantID
	DisplayName  string
	AudioEnabled bool
	VideoEnabled bool
	RadiusSize   float64
	SpeakingMode SpeakingMode
}

// ClampRadius bounds a requested radius into [min, max].
func ClampRadius(radius, min, max float64) float64 {
	if radius < min {
		return min
	}
	if radius > max {
		return max
	}
	return radius
}
