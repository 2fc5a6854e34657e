package gallery

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

// Miner maintains the per-player hard-negative lists: vectors that
// scored close to a player but turned out to belong to someone else.
// Mining happens after a frame is fully resolved, so a negative never
// influences the match that produced it.
type Miner struct {
	cfg config.GalleryConfig
}

func NewMiner(cfg config.GalleryConfig) *Miner {
	return &Miner{cfg: cfg}
}

// InBand reports whether a similarity is ambiguous enough to be worth
// mining if the identity resolves elsewhere.
func (m *Miner) InBand(similarity float32) bool {
	s := float64(similarity)
	return s >= m.cfg.HardNegativeBandLow && s <= m.cfg.HardNegativeBandHigh
}

// Mine stores a confirmed-wrong vector against a player. The list is
// capped; the oldest entry is evicted first.
func (m *Miner) Mine(g *Gallery, playerID uuid.UUID, vector []float32, trackID string, frameNum int, similarity float32) {
	p, ok := g.profiles[playerID]
	if !ok || len(vector) == 0 {
		return
	}
	cp := make([]float32, len(vector))
	copy(cp, vector)
	p.HardNegatives = append(p.HardNegatives, HardNegativeEntry{
		Vector:     cp,
		TrackID:    trackID,
		Similarity: similarity,
		FrameNum:   frameNum,
		MinedAt:    time.Now(),
	})
	if len(p.HardNegatives) > m.cfg.MaxHardNegatives {
		p.HardNegatives = p.HardNegatives[len(p.HardNegatives)-m.cfg.MaxHardNegatives:]
	}
	g.dirty = true
	observability.HardNegativesMined.Inc()
}

// AdjustSimilarity reduces a candidate score in proportion to how
// closely the query resembles the player's stored negatives. The
// result never exceeds the base similarity and never drops below 0;
// with no negatives the base passes through unchanged.
func (m *Miner) AdjustSimilarity(p *PlayerProfile, query []float32, base float32) float32 {
	if len(p.HardNegatives) == 0 || len(query) == 0 {
		return base
	}
	var worst float32
	for _, neg := range p.HardNegatives {
		if sim := models.CosineSimilarity(query, neg.Vector); sim > worst {
			worst = sim
		}
	}
	if worst <= 0 {
		return base
	}
	penalty := worst * float32(m.cfg.HardNegativePenalty)
	return models.ClampF(base-penalty, 0, base)
}
