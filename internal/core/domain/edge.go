package domain

// ConnectionEdge says whether audio from Source should be audible to Target.
// Edges are derived state: recomputed wholesale on every position, radius or
// mode change and never patched in place, so a stale edge cannot survive a
// state change.
type ConnectionEdge struct {
	SourceID  ParticipantID `json:"source_id"`
	TargetID  ParticipantID `json:"target_id"`
	Connected bool          `json:"connected"`
}
