package models

import (
	"time"

	"github.com/google/uuid"
)

// Region names the body areas the feature extractor reports separately.
type Region string

const (
	RegionBody    Region = "body"
	RegionJersey  Region = "jersey"
	RegionFoot    Region = "foot"
	RegionGeneral Region = "general"
)

// Regions lists all regions in ensemble-weight order.
var Regions = []Region{RegionBody, RegionJersey, RegionFoot, RegionGeneral}

// RegionFeatures holds the per-region appearance vectors for one
// detection. A nil slice means the extractor could not produce that
// region (cropped out, occluded); the matcher redistributes its weight
// instead of treating it as a zero vector.
type RegionFeatures struct {
	Body    []float32 `json:"body,omitempty"`
	Jersey  []float32 `json:"jersey,omitempty"`
	Foot    []float32 `json:"foot,omitempty"`
	General []float32 `json:"general,omitempty"`
}

// Get returns the vector for a region, nil if absent.
func (f RegionFeatures) Get(r Region) []float32 {
	switch r {
	case RegionBody:
		return f.Body
	case RegionJersey:
		return f.Jersey
	case RegionFoot:
		return f.Foot
	case RegionGeneral:
		return f.General
	}
	return nil
}

// Set stores the vector for a region.
func (f *RegionFeatures) Set(r Region, v []float32) {
	switch r {
	case RegionBody:
		f.Body = v
	case RegionJersey:
		f.Jersey = v
	case RegionFoot:
		f.Foot = v
	case RegionGeneral:
		f.General = v
	}
}

// Present returns the regions that carry a vector.
func (f RegionFeatures) Present() []Region {
	var out []Region
	for _, r := range Regions {
		if len(f.Get(r)) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// Empty reports whether no region carries a vector.
func (f RegionFeatures) Empty() bool { return len(f.Present()) == 0 }

// Detection is one tracked object in one frame, as produced by the
// external detector and motion associator.
type Detection struct {
	TrackID    string  `json:"track_id"`
	BBox       BBox    `json:"bbox"`
	Confidence float32 `json:"confidence"`
}

// FrameObservation is the full per-detection input to the resolution
// engine: the detection plus its extracted features and optional
// external classifier outputs (jersey OCR, team color).
type FrameObservation struct {
	VideoID      uuid.UUID      `json:"video_id"`
	FrameNum     int            `json:"frame_num"`
	Detection    Detection      `json:"detection"`
	Features     RegionFeatures `json:"features"`
	JerseyNumber *int           `json:"jersey_number,omitempty"`
	Team         string         `json:"team,omitempty"`
	// Crop is an optional JPEG of the detection, stored so flagged
	// decisions can be reviewed visually.
	Crop      []byte    `json:"crop,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IdentitySource says which rung of the confidence hierarchy produced
// a decision.
type IdentitySource string

const (
	SourceAnchor      IdentitySource = "anchor"
	SourceRouteLocked IdentitySource = "route_locked"
	SourceGallery     IdentitySource = "gallery"
	SourceUnassigned  IdentitySource = "unassigned"
)

// IdentityDecision is the engine's output for one track in one frame.
type IdentityDecision struct {
	VideoID    uuid.UUID      `json:"video_id"`
	FrameNum   int            `json:"frame_num"`
	TrackID    string         `json:"track_id"`
	PlayerID   *uuid.UUID     `json:"player_id,omitempty"`
	PlayerName string         `json:"player_name,omitempty"`
	Confidence float32        `json:"confidence"`
	Source     IdentitySource `json:"source"`
	// Flagged marks a decision that needs human review, e.g. the loser
	// of a duplicate-identity conflict.
	Flagged bool `json:"flagged,omitempty"`
}

// Assigned reports whether the decision carries an identity.
func (d IdentityDecision) Assigned() bool { return d.PlayerID != nil }
