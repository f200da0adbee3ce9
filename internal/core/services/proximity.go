package services

import (
	"soundradius/internal/core/domain"
)

// DefaultProximityScale converts radius units to plane-distance units when
// comparing against inter-participant distance. Calibration constant, not
// derived from anything.
const DefaultProximityScale = 10.0

// ProximityService derives the audio-connectivity graph from participant
// positions, radii and speaking modes. Pure computation: it never errors on
// malformed input; a missing position simply yields a non-connected edge.
type ProximityService struct {
	scale float64
}

func NewProximityService(scale float64) *ProximityService {
	if scale <= 0 {
		scale = DefaultProximityScale
	}
	return &ProximityService{scale: scale}
}

// ComputeEdges evaluates every remote participant against local and returns
// one directed edge per remote. The result is recomputed wholesale on every
// call; callers must never patch a previous result.
func (s *ProximityService) ComputeEdges(local domain.Participant, remotes []domain.Participant) []domain.ConnectionEdge {
	edges := make([]domain.ConnectionEdge, 0, len(remotes))
	for _, p := range remotes {
		edges = append(edges, domain.ConnectionEdge{
			SourceID:  local.ID,
			TargetID:  p.ID,
			Connected: s.connected(local, p),
		})
	}
	return edges
}

// connected evaluates one directed pair. Rule order is load-bearing:
// classroom overrides muted.
func (s *ProximityService) connected(a, b domain.Participant) bool {
	if a.SpeakingMode == domain.ModeClassroom || b.SpeakingMode == domain.ModeClassroom {
		return true
	}
	if a.SpeakingMode == domain.ModeMuted || b.SpeakingMode == domain.ModeMuted {
		return false
	}
	if a.Position == nil || b.Position == nil {
		return false
	}
	threshold := (a.RadiusSize + b.RadiusSize) / s.scale
	return a.Position.DistanceTo(*b.Position) < threshold
}
