package matcher

import (
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/models"
)

// Threshold computes the adaptive acceptance threshold for the current
// gallery state and detection quality. A small or low-diversity
// gallery raises the bar (confusable profiles need stronger evidence);
// a degraded detection lowers it slightly so poor crops can still
// resolve.
func (m *Matcher) Threshold(g *gallery.Gallery, detectionQuality float32) float32 {
	t := m.cfg.BaseThreshold

	if g.Size() > 0 && g.Size() < m.cfg.SmallGallerySize {
		t += m.cfg.SmallGalleryRaise
	}
	if g.DiversityRatio() < m.cfg.LowDiversityRatio {
		t += m.cfg.LowDiversityRaise
	}
	if detectionQuality > 0 && float64(detectionQuality) < m.cfg.PoorDetectionQuality {
		t -= m.cfg.PoorDetectionDrop
	}

	return models.ClampF(float32(t), 0, 1)
}
