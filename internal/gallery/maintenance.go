package gallery

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

// Prune bounds a profile's reference set with two passes: quality-rank
// retention first, then near-duplicate clustering on the remainder so
// the kept set stays representative. The single highest-quality frame
// always survives. Structural change: checkpoints immediately.
func (g *Gallery) Prune(id uuid.UUID) error {
	p, ok := g.profiles[id]
	if !ok {
		return fmt.Errorf("prune %s: %w", id, ErrPlayerNotFound)
	}
	if len(p.References) <= g.cfg.MaxReferenceFrames {
		return nil
	}

	before := len(p.References)
	p.References = pruneReferences(p.References, g.cfg.MaxReferenceFrames, g.cfg.PruneTopQuantile, g.cfg.DuplicateSimilarity)
	p.recomputeAggregates()
	p.recomputeDiversity()
	p.UpdatedAt = time.Now()

	observability.PruneRuns.Inc()
	slog.Debug("pruned reference set",
		"player", p.Name, "before", before, "after", len(p.References))

	if err := g.Checkpoint(); err != nil {
		slog.Warn("checkpoint after prune", "player", p.Name, "error", err)
	}
	return nil
}

// pruneReferences selects at most cap frames from refs.
//
// Pass 1 keeps the top quantile of the limit purely by quality, which
// also guarantees the global best frame is retained. Pass 2 walks the
// remaining candidates in quality order and skips any frame that is a
// near-duplicate (cosine above dupSim on the body region) of a frame
// already kept; if clustering leaves open slots, the skipped frames
// backfill by quality.
func pruneReferences(refs []ReferenceFrame, limit int, topQuantile, dupSim float64) []ReferenceFrame {
	if limit <= 0 || len(refs) <= limit {
		return refs
	}

	sorted := make([]ReferenceFrame, len(refs))
	copy(sorted, refs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Quality > sorted[j].Quality })

	guaranteed := int(math.Ceil(float64(limit) * topQuantile))
	if guaranteed < 1 {
		guaranteed = 1
	}
	if guaranteed > limit {
		guaranteed = limit
	}

	kept := make([]ReferenceFrame, 0, limit)
	kept = append(kept, sorted[:guaranteed]...)

	var skipped []ReferenceFrame
	for _, cand := range sorted[guaranteed:] {
		if len(kept) == limit {
			break
		}
		if isNearDuplicate(cand, kept, dupSim) {
			skipped = append(skipped, cand)
			continue
		}
		kept = append(kept, cand)
	}
	for _, cand := range skipped {
		if len(kept) == limit {
			break
		}
		kept = append(kept, cand)
	}

	// Restore capture order so the reference list stays chronological.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].VideoID != kept[j].VideoID {
			return kept[i].CapturedAt.Before(kept[j].CapturedAt)
		}
		return kept[i].FrameNum < kept[j].FrameNum
	})
	return kept
}

func isNearDuplicate(cand ReferenceFrame, kept []ReferenceFrame, dupSim float64) bool {
	cv := cand.Features.Get(models.RegionBody)
	if len(cv) == 0 {
		return false
	}
	for _, k := range kept {
		kv := k.Features.Get(models.RegionBody)
		if len(kv) == 0 {
			continue
		}
		if float64(models.CosineSimilarity(cv, kv)) > dupSim {
			return true
		}
	}
	return false
}
