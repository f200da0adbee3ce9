package domain

import "time"

// CaptureState is the capture session controller's lifecycle state.
type CaptureState string

const (
	CaptureIdle         CaptureState = "idle"
	CaptureAcquiring    CaptureState = "acquiring"
	CaptureConnected    CaptureState = "connected"
	CaptureReconnecting CaptureState = "reconnecting"
	// CaptureFailed is terminal until an explicit Acquire.
	CaptureFailed CaptureState = "failed"
)

// LayoutMode selects the presentation arrangement.
type LayoutMode string

const (
	LayoutGrid      LayoutMode = "grid"
	LayoutSpotlight LayoutMode = "spotlight"
)

func (m LayoutMode) Valid() bool {
	return m == LayoutGrid || m == LayoutSpotlight
}

// Snapshot is the orchestrator's authoritative per-tick session state.
// Positions and edges always come from the same recompute pass.
type Snapshot struct {
	Local        Participant      `json:"local"`
	Remotes      []Participant    `json:"remotes"`
	Edges        []ConnectionEdge `json:"edges"`
	CaptureState CaptureState     `json:"capture_state"`
	ScreenShare  bool             `json:"screen_share"`
	QualityTier  QualityTier      `json:"quality_tier"`
	LayoutMode   LayoutMode       `json:"layout_mode"`
	Animating    bool             `json:"animating"`
	Revision     uint64           `json:"revision"`
	ComputedAt   time.Time        `json:"computed_at"`
}
