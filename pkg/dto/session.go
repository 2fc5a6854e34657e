package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/models"
)

// StartSessionRequest opens a resolution session for one video. The
// anchor map keys are frame numbers as strings (the tagging tool's
// export format).
type StartSessionRequest struct {
	VideoID uuid.UUID                            `json:"video_id" binding:"required"`
	Anchors map[string][]models.AnchorAssignment `json:"anchors,omitempty"`
}

type SessionResponse struct {
	VideoID uuid.UUID `json:"video_id"`
	Status  string    `json:"status"`
	Anchors int       `json:"anchors,omitempty"`
}

// SubmitFrameRequest pushes one frame's observations into the
// resolution queue.
type SubmitFrameRequest struct {
	FrameNum     int                       `json:"frame_num"`
	Observations []models.FrameObservation `json:"observations" binding:"required"`
}
