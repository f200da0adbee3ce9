package services

import (
	"soundradius/internal/core/domain"
)

// QualityPolicy maps quality tiers to target capture parameters and network
// hints to suggested tiers. It holds no mutable state.
type QualityPolicy struct {
	params map[domain.QualityTier]domain.CaptureParams
}

func NewQualityPolicy() *QualityPolicy {
	return &QualityPolicy{
		params: map[domain.QualityTier]domain.CaptureParams{
			domain.TierLow: {
				Width:          640,
				Height:         360,
				FrameRate:      15,
				BitrateCeiling: 300,
			},
			domain.TierMedium: {
				Width:          960,
				Height:         540,
				FrameRate:      24,
				BitrateCeiling: 800,
			},
			domain.TierHigh: {
				Width:          1280,
				Height:         720,
				FrameRate:      30,
				BitrateCeiling: 1500,
			},
			domain.TierHD: {
				Width:          1920,
				Height:         1080,
				FrameRate:      30,
				BitrateCeiling: 3000,
			},
		},
	}
}

// ParamsFor returns the capture parameters for a tier. Unknown tiers fall
// back to medium.
func (p *QualityPolicy) ParamsFor(tier domain.QualityTier) domain.CaptureParams {
	if params, ok := p.params[tier]; ok {
		return params
	}
	return p.params[domain.TierMedium]
}

// SuggestTier maps a network sample's effective class to a suggested tier.
// Classes outside the table leave the current tier unchanged.
func (p *QualityPolicy) SuggestTier(sample domain.NetworkSample, current domain.QualityTier) domain.QualityTier {
	switch sample.EffectiveClass {
	case "2g":
		return domain.TierLow
	case "3g":
		return domain.TierMedium
	case "4g":
		return domain.TierHigh
	default:
		return current
	}
}
