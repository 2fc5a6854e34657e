package models

// AnchorConfidence is reserved for externally authored ground truth.
// No matching path may produce it.
const AnchorConfidence float32 = 1.0

// AnchorAssignment is an externally authored ground-truth identity for
// one frame. It is only ever consumed: matching never creates anchors,
// and nothing of lower confidence may overwrite one.
type AnchorAssignment struct {
	FrameNum   int    `json:"frame_num"`
	TrackID    string `json:"track_id,omitempty"`
	BBox       BBox   `json:"bbox"`
	PlayerName string `json:"player_name"`
	Team       string `json:"team,omitempty"`
}
