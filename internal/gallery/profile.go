package gallery

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/models"
)

// Quality score weights for reference frames. A frame's score is fixed
// the moment it is captured.
const (
	qualitySimilarityWeight = 100
	qualityConfidenceWeight = 50
	qualityRecencyWeight    = 1
	qualityBBoxBonus        = 5
)

// ReferenceFrame is one scored appearance sample backing a profile.
// Immutable once scored; it leaves the profile only through pruning.
type ReferenceFrame struct {
	ID         uuid.UUID             `json:"id"`
	VideoID    uuid.UUID             `json:"video_id"`
	FrameNum   int                   `json:"frame_num"`
	TrackID    string                `json:"track_id"`
	BBox       models.BBox           `json:"bbox"`
	Confidence float32               `json:"confidence"`
	Similarity float32               `json:"similarity"`
	Features   models.RegionFeatures `json:"features"`
	Quality    float64               `json:"quality"`
	CapturedAt time.Time             `json:"captured_at"`
}

// NewReferenceFrame scores and returns a reference frame. Recency is 1
// by construction: the frame is new when captured, and the score never
// changes afterwards.
func NewReferenceFrame(videoID uuid.UUID, frameNum int, trackID string, bbox models.BBox, confidence, similarity float32, features models.RegionFeatures) ReferenceFrame {
	rf := ReferenceFrame{
		ID:         uuid.New(),
		VideoID:    videoID,
		FrameNum:   frameNum,
		TrackID:    trackID,
		BBox:       bbox,
		Confidence: confidence,
		Similarity: similarity,
		Features:   features,
		CapturedAt: time.Now(),
	}
	rf.Quality = scoreQuality(similarity, confidence, bbox.Valid())
	return rf
}

func scoreQuality(similarity, confidence float32, hasBBox bool) float64 {
	q := float64(similarity)*qualitySimilarityWeight +
		float64(confidence)*qualityConfidenceWeight +
		qualityRecencyWeight
	if hasBBox {
		q += qualityBBoxBonus
	}
	return q
}

// dedupKey identifies a reference frame by its origin, so the same
// sample submitted twice is never double-counted.
func (r ReferenceFrame) dedupKey() string {
	return r.VideoID.String() + "/" + strconv.Itoa(r.FrameNum) + "/" + r.TrackID
}

// HardNegativeEntry is a feature vector known to resemble this player
// while belonging to someone else. Used only to penalize future scores.
type HardNegativeEntry struct {
	Vector     []float32 `json:"vector"`
	TrackID    string    `json:"track_id"`
	Similarity float32   `json:"similarity"`
	FrameNum   int       `json:"frame_num"`
	MinedAt    time.Time `json:"mined_at"`
}

// PlayerProfile is a persistent player identity with its aggregated
// multi-region appearance and scored reference samples. Profiles are
// created on first tag or accepted match and never auto-deleted.
type PlayerProfile struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	JerseyNumber *int      `json:"jersey_number,omitempty"`
	Team         string    `json:"team,omitempty"`
	ShoeColor    string    `json:"shoe_color,omitempty"`

	// Aggregates holds the quality-weighted mean vector per region,
	// always consistent with the current reference set.
	Aggregates map[models.Region][]float32 `json:"aggregates"`
	// aggWeights is the total weight behind each region's aggregate,
	// kept so value updates can fold in incrementally.
	AggWeights map[models.Region]float64 `json:"agg_weights"`

	References []ReferenceFrame `json:"references"`

	// TrackMatches counts, per track id, how often that track has
	// resolved to this player. Breadcrumbs counts user confirmations.
	TrackMatches map[string]int `json:"track_matches,omitempty"`
	Breadcrumbs  map[string]int `json:"breadcrumbs,omitempty"`

	HardNegatives []HardNegativeEntry `json:"hard_negatives,omitempty"`

	// Diversity is the mean pairwise appearance spread of the
	// reference set; recomputed whenever the set changes.
	Diversity float64 `json:"diversity"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newProfile(name string) *PlayerProfile {
	now := time.Now()
	return &PlayerProfile{
		ID:           uuid.New(),
		Name:         name,
		Aggregates:   make(map[models.Region][]float32),
		AggWeights:   make(map[models.Region]float64),
		TrackMatches: make(map[string]int),
		Breadcrumbs:  make(map[string]int),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// QualityScore is the profile's best reference quality, used as a
// deterministic tie-break between equal match scores.
func (p *PlayerProfile) QualityScore() float64 {
	var best float64
	for _, r := range p.References {
		if r.Quality > best {
			best = r.Quality
		}
	}
	return best
}

// hasReference reports whether a frame with the same origin is already
// part of the reference set.
func (p *PlayerProfile) hasReference(rf ReferenceFrame) bool {
	key := rf.dedupKey()
	for _, r := range p.References {
		if r.dedupKey() == key {
			return true
		}
	}
	return false
}

// foldFeatures folds one weighted sample into the per-region running
// aggregates. The mean is never overwritten, only shifted.
func (p *PlayerProfile) foldFeatures(features models.RegionFeatures, weight float64) {
	if weight <= 0 {
		weight = 1
	}
	for _, region := range models.Regions {
		v := features.Get(region)
		if len(v) == 0 {
			continue
		}
		agg, ok := p.Aggregates[region]
		if !ok || len(agg) != len(v) {
			cp := make([]float32, len(v))
			copy(cp, v)
			p.Aggregates[region] = cp
			p.AggWeights[region] = weight
			continue
		}
		total := p.AggWeights[region]
		for i := range agg {
			agg[i] = float32((float64(agg[i])*total + float64(v[i])*weight) / (total + weight))
		}
		p.AggWeights[region] = total + weight
	}
}

// recomputeAggregates rebuilds every region aggregate as the
// quality-weighted mean of the current reference set. Called after any
// structural change (reference removal, pruning).
func (p *PlayerProfile) recomputeAggregates() {
	p.Aggregates = make(map[models.Region][]float32)
	p.AggWeights = make(map[models.Region]float64)
	for _, rf := range p.References {
		p.foldFeatures(rf.Features, rf.Quality)
	}
}

// recomputeDiversity rebuilds the profile's diversity score: the mean
// pairwise cosine distance between reference body vectors.
func (p *PlayerProfile) recomputeDiversity() {
	var sum float64
	var pairs int
	for i := 0; i < len(p.References); i++ {
		vi := p.References[i].Features.Get(models.RegionBody)
		if len(vi) == 0 {
			continue
		}
		for j := i + 1; j < len(p.References); j++ {
			vj := p.References[j].Features.Get(models.RegionBody)
			if len(vj) == 0 {
				continue
			}
			sum += 1 - float64(models.CosineSimilarity(vi, vj))
			pairs++
		}
	}
	if pairs == 0 {
		p.Diversity = 0
		return
	}
	p.Diversity = sum / float64(pairs)
}

