package models

import "github.com/google/uuid"

// FrameTask is the message published for worker processing: one
// frame's observations for one video.
type FrameTask struct {
	VideoID      uuid.UUID          `json:"video_id"`
	FrameNum     int                `json:"frame_num"`
	Observations []FrameObservation `json:"observations"`
}

// SessionControl starts or finishes a video's resolution session on
// the worker. Anchors ride along on start; breadcrumb corrections
// carry a track and the player it was confirmed as.
type SessionControl struct {
	Type     string             `json:"type"` // start, finish, breadcrumb
	VideoID  uuid.UUID          `json:"video_id"`
	Anchors  []AnchorAssignment `json:"anchors,omitempty"`
	TrackID  string             `json:"track_id,omitempty"`
	PlayerID *uuid.UUID         `json:"player_id,omitempty"`
}

const (
	SessionControlStart      = "start"
	SessionControlFinish     = "finish"
	SessionControlBreadcrumb = "breadcrumb"
)
