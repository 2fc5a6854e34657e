package models

import (
	"time"

	"github.com/google/uuid"
)

// IdentityEvent is a persisted identity decision, archived per video
// for review and cross-video queries.
type IdentityEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	VideoID    uuid.UUID      `json:"video_id" db:"video_id"`
	FrameNum   int            `json:"frame_num" db:"frame_num"`
	TrackID    string         `json:"track_id" db:"track_id"`
	PlayerID   *uuid.UUID     `json:"player_id,omitempty" db:"player_id"`
	PlayerName string         `json:"player_name,omitempty" db:"player_name"`
	Confidence float32        `json:"confidence" db:"confidence"`
	Source     IdentitySource `json:"source" db:"source"`
	Flagged    bool           `json:"flagged" db:"flagged"`
	// SnapshotKey points at the detection crop in object storage, when
	// one was captured.
	SnapshotKey string    `json:"snapshot_key,omitempty" db:"snapshot_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// EventFromDecision wraps a decision for archival.
func EventFromDecision(d IdentityDecision, snapshotKey string) IdentityEvent {
	return IdentityEvent{
		ID:          uuid.New(),
		VideoID:     d.VideoID,
		FrameNum:    d.FrameNum,
		TrackID:     d.TrackID,
		PlayerID:    d.PlayerID,
		PlayerName:  d.PlayerName,
		Confidence:  d.Confidence,
		Source:      d.Source,
		Flagged:     d.Flagged,
		SnapshotKey: snapshotKey,
		CreatedAt:   time.Now(),
	}
}
