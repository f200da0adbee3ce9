package domain

import "time"

// QualityTier is a named bucket of capture parameters.
type QualityTier string

const (
	TierLow    QualityTier = "low"
	TierMedium QualityTier = "medium"
	TierHigh   QualityTier = "high"
	TierHD     QualityTier = "hd"
)

func (t QualityTier) Valid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh, TierHD:
		return true
	}
	return false
}

// CaptureParams are the target capture constraints for a quality tier.
type CaptureParams struct {
	Width          int
	Height         int
	FrameRate      int
	BitrateCeiling int // kbps
}

// NetworkSample is a transient snapshot of observed network conditions.
// Produced periodically, never persisted.
type NetworkSample struct {
	DownlinkMbps      float64
	RoundTrip         time.Duration
	EffectiveClass    string // "2g", "3g", "4g", ...
	ObservedFrameRate float64
	SampledAt         time.Time
}
