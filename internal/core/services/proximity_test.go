package services

import (
	"testing"

	"soundradius/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participant(id string, x, y, radius float64, mode domain.SpeakingMode) domain.Participant {
	return domain.Participant{
		ID:           domain.ParticipantID(id),
		RadiusSize:   radius,
		Position:     &domain.Position{X: x, Y: y},
		SpeakingMode: mode,
	}
}

func TestComputeEdges_DistanceThreshold(t *testing.T) {
	svc := NewProximityService(10)

	tests := []struct {
		name      string
		local     domain.Participant
		remote    domain.Participant
		connected bool
	}{
		{
			name:      "combined radii too small",
			local:     participant("a", 50, 50, 50, domain.ModePrivate),
			remote:    participant("b", 50, 60, 30, domain.ModePrivate),
			connected: false, // distance 10, threshold (50+30)/10 = 8
		},
		{
			name:      "larger remote radius connects",
			local:     participant("a", 50, 50, 50, domain.ModePrivate),
			remote:    participant("b", 50, 60, 60, domain.ModePrivate),
			connected: true, // distance 10, threshold (50+60)/10 = 11
		},
		{
			name:      "same position always within threshold",
			local:     participant("a", 25, 25, 20, domain.ModePrivate),
			remote:    participant("b", 25, 25, 20, domain.ModePrivate),
			connected: true,
		},
		{
			name:      "exactly at threshold is not connected",
			local:     participant("a", 0, 0, 40, domain.ModePrivate),
			remote:    participant("b", 8, 0, 40, domain.ModePrivate),
			connected: false, // distance 8 == threshold (40+40)/10
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges := svc.ComputeEdges(tt.local, []domain.Participant{tt.remote})
			require.Len(t, edges, 1)
			assert.Equal(t, tt.local.ID, edges[0].SourceID)
			assert.Equal(t, tt.remote.ID, edges[0].TargetID)
			assert.Equal(t, tt.connected, edges[0].Connected)
		})
	}
}

func TestComputeEdges_SpeakingModeOverrides(t *testing.T) {
	svc := NewProximityService(10)

	farApart := func(mode domain.SpeakingMode) domain.Participant {
		return participant("b", 95, 95, 20, mode)
	}
	local := participant("a", 5, 5, 20, domain.ModePrivate)

	t.Run("classroom remote connects regardless of distance", func(t *testing.T) {
		edges := svc.ComputeEdges(local, []domain.Participant{farApart(domain.ModeClassroom)})
		assert.True(t, edges[0].Connected)
	})

	t.Run("classroom local connects regardless of distance", func(t *testing.T) {
		classroomLocal := participant("a", 5, 5, 20, domain.ModeClassroom)
		edges := svc.ComputeEdges(classroomLocal, []domain.Participant{farApart(domain.ModePrivate)})
		assert.True(t, edges[0].Connected)
	})

	t.Run("muted remote never connects", func(t *testing.T) {
		near := participant("b", 5, 6, 50, domain.ModeMuted)
		edges := svc.ComputeEdges(local, []domain.Participant{near})
		assert.False(t, edges[0].Connected)
	})

	t.Run("classroom overrides muted", func(t *testing.T) {
		classroomLocal := participant("a", 5, 5, 20, domain.ModeClassroom)
		edges := svc.ComputeEdges(classroomLocal, []domain.Participant{farApart(domain.ModeMuted)})
		assert.True(t, edges[0].Connected)
	})
}

func TestComputeEdges_MissingPosition(t *testing.T) {
	svc := NewProximityService(10)

	local := participant("a", 50, 50, 50, domain.ModePrivate)
	unplaced := domain.Participant{
		ID:           "b",
		RadiusSize:   50,
		SpeakingMode: domain.ModePrivate,
	}

	edges := svc.ComputeEdges(local, []domain.Participant{unplaced})
	require.Len(t, edges, 1)
	assert.False(t, edges[0].Connected)

	// Classroom still wins without a position.
	unplaced.SpeakingMode = domain.ModeClassroom
	edges = svc.ComputeEdges(local, []domain.Participant{unplaced})
	assert.True(t, edges[0].Connected)
}

func TestComputeEdges_CustomScale(t *testing.T) {
	// Distance 10, radii sum 80. Scale 10 fails (threshold 8), scale 5
	// connects (threshold 16).
	local := participant("a", 50, 50, 50, domain.ModePrivate)
	remote := participant("b", 50, 60, 30, domain.ModePrivate)

	assert.False(t, NewProximityService(10).ComputeEdges(local, []domain.Participant{remote})[0].Connected)
	assert.True(t, NewProximityService(5).ComputeEdges(local, []domain.Participant{remote})[0].Connected)
}

func TestComputeEdges_OneEdgePerRemote(t *testing.T) {
	svc := NewProximityService(0) // falls back to the default scale
	local := participant("a", 50, 50, 50, domain.ModePrivate)
	remotes := []domain.Participant{
		participant("b", 50, 55, 30, domain.ModePrivate),
		participant("c", 90, 90, 30, domain.ModePrivate),
		participant("d", 10, 10, 30, domain.ModeClassroom),
	}

	edges := svc.ComputeEdges(local, remotes)
	require.Len(t, edges, 3)
	for i, edge := range edges {
		assert.Equal(t, local.ID, edge.SourceID)
		assert.Equal(t, remotes[i].ID, edge.TargetID)
	}
}
