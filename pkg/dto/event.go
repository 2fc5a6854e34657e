package dto

import "github.com/google/uuid"

type IdentityEventResponse struct {
	ID          uuid.UUID  `json:"id"`
	VideoID     uuid.UUID  `json:"video_id"`
	FrameNum    int        `json:"frame_num"`
	TrackID     string     `json:"track_id"`
	PlayerID    *uuid.UUID `json:"player_id,omitempty"`
	PlayerName  string     `json:"player_name,omitempty"`
	Confidence  float32    `json:"confidence"`
	Source      string     `json:"source"`
	Flagged     bool       `json:"flagged,omitempty"`
	SnapshotURL string     `json:"snapshot_url,omitempty"`
	CreatedAt   string     `json:"created_at"`
}

type IdentityEventListResponse struct {
	Events []IdentityEventResponse `json:"events"`
	Total  int                     `json:"total"`
}

// WSMessage is a WebSocket message for real-time decision delivery.
type WSMessage struct {
	Type    string                `json:"type"` // identity_resolved, identity_corrected
	VideoID uuid.UUID             `json:"video_id"`
	Data    IdentityEventResponse `json:"data"`
}
