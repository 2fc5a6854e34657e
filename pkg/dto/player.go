package dto

import "github.com/google/uuid"

type CreatePlayerRequest struct {
	Name         string `json:"name" binding:"required"`
	JerseyNumber *int   `json:"jersey_number,omitempty"`
	Team         string `json:"team,omitempty"`
	ShoeColor    string `json:"shoe_color,omitempty"`
}

type PlayerResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	JerseyNumber   *int      `json:"jersey_number,omitempty"`
	Team           string    `json:"team,omitempty"`
	ShoeColor      string    `json:"shoe_color,omitempty"`
	ReferenceCount int       `json:"reference_count"`
	Diversity      float64   `json:"diversity"`
	UpdatedAt      string    `json:"updated_at"`
}

type PlayerListResponse struct {
	Players []PlayerResponse `json:"players"`
	Total   int              `json:"total"`
}

// SearchPlayersRequest carries a body-region embedding for a
// cross-video similarity search over archived profiles.
type SearchPlayersRequest struct {
	Embedding []float32 `json:"embedding" binding:"required"`
	Threshold float64   `json:"threshold,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

type SearchResult struct {
	PlayerID uuid.UUID `json:"player_id"`
	Name     string    `json:"name"`
	Score    float32   `json:"score"`
}

// BreadcrumbRequest records a user-confirmed track correction for a
// player within a video session.
type BreadcrumbRequest struct {
	VideoID uuid.UUID `json:"video_id" binding:"required"`
	TrackID string    `json:"track_id" binding:"required"`
}
