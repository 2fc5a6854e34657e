package matcher

import (
	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
)

// BoostRule is one named, bounded score adjustment. Rules are applied
// in a fixed order and each returns a delta within its configured
// range (0 when not applicable), keeping the stacked heuristics
// auditable and independently testable.
type BoostRule interface {
	Name() string
	Apply(q Query, p *gallery.PlayerProfile) float32
}

func defaultRules(cfg config.MatcherConfig) []BoostRule {
	return []BoostRule{
		jerseyRule{boost: float32(cfg.JerseyBoost)},
		routeLockRule{min: float32(cfg.RouteLockBoostMin), max: float32(cfg.RouteLockBoostMax)},
		historyRule{min: float32(cfg.HistoryBoostMin), max: float32(cfg.HistoryBoostMax)},
		breadcrumbRule{min: float32(cfg.BreadcrumbBoostMin), max: float32(cfg.BreadcrumbBoostMax)},
	}
}

// jerseyRule rewards an exact jersey-number match from the external
// OCR. An unknown number on either side applies nothing.
type jerseyRule struct {
	boost float32
}

func (jerseyRule) Name() string { return "jersey_number" }

func (r jerseyRule) Apply(q Query, p *gallery.PlayerProfile) float32 {
	if q.JerseyNumber == nil || p.JerseyNumber == nil {
		return 0
	}
	if *q.JerseyNumber != *p.JerseyNumber {
		return 0
	}
	return r.boost
}

// routeLockRule favors the player this track already confirmed within
// the route-lock window, scaled by the confidence of that lock.
type routeLockRule struct {
	min, max float32
}

func (routeLockRule) Name() string { return "route_lock" }

func (r routeLockRule) Apply(q Query, p *gallery.PlayerProfile) float32 {
	if q.RouteLockedPlayer == nil || *q.RouteLockedPlayer != p.ID {
		return 0
	}
	conf := q.RouteLockConfidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return r.min + (r.max-r.min)*conf
}

// historyRule scales with how often this track has previously resolved
// to this player, saturating after ten matches.
type historyRule struct {
	min, max float32
}

func (historyRule) Name() string { return "track_history" }

func (r historyRule) Apply(q Query, p *gallery.PlayerProfile) float32 {
	n := p.TrackMatches[q.TrackID]
	if n <= 0 {
		return 0
	}
	frac := float32(n) / 10
	if frac > 1 {
		frac = 1
	}
	return r.min + (r.max-r.min)*frac
}

// breadcrumbRule rewards prior user confirmations of this track→player
// pairing, saturating with repetition.
type breadcrumbRule struct {
	min, max float32
}

func (breadcrumbRule) Name() string { return "breadcrumb" }

func (r breadcrumbRule) Apply(q Query, p *gallery.PlayerProfile) float32 {
	n := p.Breadcrumbs[q.TrackID]
	if n <= 0 {
		return 0
	}
	frac := float32(n) / float32(n+2)
	return r.min + (r.max-r.min)*frac
}
