// Package matcher turns a query's region features into ranked,
// boosted, penalty-adjusted candidate scores against the gallery.
package matcher

import (
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

// Query is one detection's view of the world: its region features plus
// whatever the external classifiers and the per-video track state know.
type Query struct {
	Features models.RegionFeatures
	TrackID  string
	// Team and JerseyNumber come from external classifiers; empty/nil
	// means unknown and disables the corresponding constraint.
	Team         string
	JerseyNumber *int
	// DetectionQuality is the detector's confidence for this bbox.
	DetectionQuality float32
	// RouteLockedPlayer is set when this track confirmed a player
	// within the route-lock window earlier in the video.
	RouteLockedPlayer   *uuid.UUID
	RouteLockConfidence float32
}

// Adjustment records one named boost applied to a candidate, so every
// final score can be audited back to its parts.
type Adjustment struct {
	Rule  string  `json:"rule"`
	Delta float32 `json:"delta"`
}

// Candidate is one ranked match result.
type Candidate struct {
	PlayerID    uuid.UUID    `json:"player_id"`
	Name        string       `json:"name"`
	Score       float32      `json:"score"`
	BaseScore   float32      `json:"base_score"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

// Matcher scores queries against gallery profiles. It is stateless
// between calls: identical gallery state and query produce identical
// output.
type Matcher struct {
	cfg   config.MatcherConfig
	miner *gallery.Miner
	rules []BoostRule
}

func New(cfg config.MatcherConfig, miner *gallery.Miner) *Matcher {
	return &Matcher{
		cfg:   cfg,
		miner: miner,
		rules: defaultRules(cfg),
	}
}

// Match ranks all gallery profiles against the query and returns the
// candidates that clear the adaptive threshold, best first.
func (m *Matcher) Match(q Query, g *gallery.Gallery) []Candidate {
	cands, threshold := m.MatchAll(q, g)
	out := cands[:0:0]
	for _, c := range cands {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// MatchAll is Match without the threshold cut: every scored candidate
// is returned, best first, along with the adaptive threshold that
// applies. The arbiter uses the sub-threshold tail to mine hard
// negatives from the ambiguous band.
func (m *Matcher) MatchAll(q Query, g *gallery.Gallery) ([]Candidate, float32) {
	threshold := m.Threshold(g, q.DetectionQuality)

	type ranked struct {
		cand      Candidate
		quality   float64
		updatedAt int64
	}
	var all []ranked

	for _, p := range g.Profiles() {
		// Team filter is a hard exclusion, not a score adjustment.
		if q.Team != "" && p.Team != "" && q.Team != p.Team {
			continue
		}

		base, ok := m.ensembleScore(q.Features, p)
		if !ok {
			continue
		}

		cand := Candidate{PlayerID: p.ID, Name: p.Name, BaseScore: base}
		score := base
		for _, rule := range m.rules {
			delta := rule.Apply(q, p)
			if delta == 0 {
				continue
			}
			score += delta
			cand.Adjustments = append(cand.Adjustments, Adjustment{Rule: rule.Name(), Delta: delta})
		}

		adjusted := m.miner.AdjustSimilarity(p, q.Features.Get(models.RegionBody), score)
		if adjusted != score {
			cand.Adjustments = append(cand.Adjustments, Adjustment{Rule: "hard_negative", Delta: adjusted - score})
			score = adjusted
		}

		cand.Score = models.ClampF(score, 0, 1)
		all = append(all, ranked{cand: cand, quality: p.QualityScore(), updatedAt: p.UpdatedAt.UnixNano()})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].cand.Score != all[j].cand.Score {
			return all[i].cand.Score > all[j].cand.Score
		}
		if all[i].quality != all[j].quality {
			return all[i].quality > all[j].quality
		}
		if all[i].updatedAt != all[j].updatedAt {
			return all[i].updatedAt > all[j].updatedAt
		}
		return all[i].cand.PlayerID.String() < all[j].cand.PlayerID.String()
	})

	out := make([]Candidate, 0, len(all))
	for _, r := range all {
		out = append(out, r.cand)
	}
	return out, threshold
}

// ensembleScore combines per-region cosine similarities. Regions
// missing from either side redistribute their weight proportionally
// among the present ones, so a partial query degrades instead of
// failing. The max term rewards one very strong regional match while
// the average still demands overall consistency.
func (m *Matcher) ensembleScore(features models.RegionFeatures, p *gallery.PlayerProfile) (float32, bool) {
	weights := map[models.Region]float64{
		models.RegionBody:    m.cfg.BodyWeight,
		models.RegionJersey:  m.cfg.JerseyWeight,
		models.RegionFoot:    m.cfg.FootWeight,
		models.RegionGeneral: m.cfg.GeneralWeight,
	}

	var weightSum float64
	sims := make(map[models.Region]float64)
	for _, region := range models.Regions {
		qv := features.Get(region)
		pv := p.Aggregates[region]
		if len(qv) == 0 || len(pv) == 0 || len(qv) != len(pv) {
			continue
		}
		sims[region] = float64(models.CosineSimilarity(qv, pv))
		weightSum += weights[region]
	}
	if len(sims) == 0 || weightSum <= 0 {
		return 0, false
	}

	var avg, max float64
	for region, sim := range sims {
		avg += sim * (weights[region] / weightSum)
		if sim > max {
			max = sim
		}
	}

	combined := m.cfg.AvgShare*avg + m.cfg.MaxShare*max
	return models.ClampF(float32(combined), 0, 1), true
}
