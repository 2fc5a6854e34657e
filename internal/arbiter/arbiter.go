// Package arbiter resolves, per track per frame, the final identity
// and confidence. It enforces the confidence hierarchy: ground-truth
// anchors beat locked routes, locked routes beat fresh gallery
// matches, and nothing low-confidence silently overwrites verified
// identity.
package arbiter

import (
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/matcher"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

// maxMatchConfidence caps every confidence produced by matching.
// Confidence 1.0 is reserved for anchors.
const maxMatchConfidence float32 = 0.99

type trackState struct {
	trackID       string
	playerID      uuid.UUID
	playerName    string
	confidence    float32
	source        models.IdentitySource
	assignedFrame int
	lastSeenFrame int
	// window is the rolling record of recent match evidence, used for
	// challenger persistence against route locks.
	window []windowEntry
	// anchored holds the immutable decisions of anchor-locked frames.
	anchored map[int]models.IdentityDecision
}

type windowEntry struct {
	playerID uuid.UUID
	score    float32
	frameNum int
}

func (ts *trackState) assigned() bool { return ts.playerID != uuid.Nil }

func (ts *trackState) pushWindow(e windowEntry, limit int) {
	ts.window = append(ts.window, e)
	if len(ts.window) > limit {
		ts.window = ts.window[len(ts.window)-limit:]
	}
}

type pendingNegative struct {
	playerID   uuid.UUID
	vector     []float32
	trackID    string
	frameNum   int
	similarity float32
}

// Arbiter is the single writer of the gallery within a video. Frames
// must be resolved sequentially; call EndFrame after every frame's
// detections have gone through Resolve.
type Arbiter struct {
	cfg     config.ArbiterConfig
	gal     *gallery.Gallery
	matcher *matcher.Matcher
	miner   *gallery.Miner
	anchors *AnchorIndex
	videoID uuid.UUID

	tracks        map[string]*trackState
	conflictSince map[uuid.UUID]int
	pending       []pendingNegative
}

func New(cfg config.ArbiterConfig, gal *gallery.Gallery, m *matcher.Matcher, miner *gallery.Miner, anchors *AnchorIndex, videoID uuid.UUID) *Arbiter {
	if anchors == nil {
		anchors = NewAnchorIndex(cfg, nil)
	}
	return &Arbiter{
		cfg:           cfg,
		gal:           gal,
		matcher:       m,
		miner:         miner,
		anchors:       anchors,
		videoID:       videoID,
		tracks:        make(map[string]*trackState),
		conflictSince: make(map[uuid.UUID]int),
	}
}

// Resolve decides the identity of one tracked object in one frame.
// The priority order is structural: the anchor branch returns before
// any matching runs, so no gallery result can ever touch an
// anchor-locked frame.
func (a *Arbiter) Resolve(obs models.FrameObservation) models.IdentityDecision {
	ts := a.track(obs.Detection.TrackID)
	ts.lastSeenFrame = obs.FrameNum

	if d, ok := ts.anchored[obs.FrameNum]; ok {
		return d
	}

	if anchor := a.anchors.Match(obs.FrameNum, obs.Detection); anchor != nil {
		return a.resolveAnchor(obs, ts, anchor)
	}

	cands, threshold := a.matcher.MatchAll(a.buildQuery(obs, ts), a.gal)

	if a.routeLocked(ts) {
		return a.resolveLocked(obs, ts, cands, threshold)
	}
	return a.resolveGallery(obs, ts, cands, threshold)
}

// EndFrame commits the frame: hard negatives mined this frame start
// affecting matches from the next frame on, and duplicate-identity
// conflicts past their grace window are forced apart. Returned
// decisions are corrections for demoted tracks.
func (a *Arbiter) EndFrame(frameNum int) []models.IdentityDecision {
	for _, pn := range a.pending {
		a.miner.Mine(a.gal, pn.playerID, pn.vector, pn.trackID, pn.frameNum, pn.similarity)
	}
	a.pending = nil

	return a.settleDuplicates(frameNum)
}

func (a *Arbiter) track(trackID string) *trackState {
	if ts, ok := a.tracks[trackID]; ok {
		return ts
	}
	ts := &trackState{
		trackID:  trackID,
		source:   models.SourceUnassigned,
		anchored: make(map[int]models.IdentityDecision),
	}
	a.tracks[trackID] = ts
	return ts
}

func (a *Arbiter) buildQuery(obs models.FrameObservation, ts *trackState) matcher.Query {
	q := matcher.Query{
		Features:         obs.Features,
		TrackID:          obs.Detection.TrackID,
		Team:             obs.Team,
		JerseyNumber:     obs.JerseyNumber,
		DetectionQuality: obs.Detection.Confidence,
	}
	if a.routeLocked(ts) {
		id := ts.playerID
		q.RouteLockedPlayer = &id
		q.RouteLockConfidence = ts.confidence
	}
	return q
}

// routeLocked reports whether the track holds a protected early
// assignment: high confidence, established within the lock window.
func (a *Arbiter) routeLocked(ts *trackState) bool {
	return ts.assigned() &&
		float64(ts.confidence) >= a.cfg.RouteLockConfidence &&
		ts.assignedFrame <= a.cfg.RouteLockWindowFrames
}

func (a *Arbiter) resolveAnchor(obs models.FrameObservation, ts *trackState, anchor *models.AnchorAssignment) models.IdentityDecision {
	p, err := a.gal.EnsurePlayer(anchor.PlayerName)
	if err != nil {
		slog.Warn("anchor player unavailable", "player", anchor.PlayerName, "error", err)
		return a.unassignedDecision(obs)
	}
	if anchor.Team != "" && p.Team == "" {
		p.Team = anchor.Team
	}

	// The anchor redirects the profile update to its own player,
	// regardless of what matching would have said.
	ref := gallery.NewReferenceFrame(obs.VideoID, obs.FrameNum, obs.Detection.TrackID,
		obs.Detection.BBox, models.AnchorConfidence, models.AnchorConfidence, obs.Features)
	if err := a.gal.UpdatePlayer(p.ID, obs.Features, &ref, gallery.UpdateOptions{}); err != nil {
		slog.Warn("gallery update from anchor", "player", p.Name, "error", err)
	}
	a.gal.RecordTrackMatch(p.ID, obs.Detection.TrackID)

	if ts.playerID != p.ID {
		ts.assignedFrame = obs.FrameNum
	}
	ts.playerID = p.ID
	ts.playerName = p.Name
	ts.confidence = models.AnchorConfidence
	ts.source = models.SourceAnchor

	id := p.ID
	d := models.IdentityDecision{
		VideoID:    obs.VideoID,
		FrameNum:   obs.FrameNum,
		TrackID:    obs.Detection.TrackID,
		PlayerID:   &id,
		PlayerName: p.Name,
		Confidence: models.AnchorConfidence,
		Source:     models.SourceAnchor,
	}
	ts.anchored[obs.FrameNum] = d
	observability.DecisionsTotal.WithLabelValues(string(models.SourceAnchor)).Inc()
	return d
}

func (a *Arbiter) resolveGallery(obs models.FrameObservation, ts *trackState, cands []matcher.Candidate, threshold float32) models.IdentityDecision {
	if len(cands) == 0 || cands[0].Score < threshold {
		return a.unassignedDecision(obs)
	}
	top := cands[0]
	conf := capConfidence(top.Score)

	if ts.playerID != top.PlayerID {
		ts.assignedFrame = obs.FrameNum
	}
	ts.playerID = top.PlayerID
	ts.playerName = top.Name
	ts.confidence = conf
	ts.source = models.SourceGallery
	ts.pushWindow(windowEntry{playerID: top.PlayerID, score: top.Score, frameNum: obs.FrameNum}, a.cfg.DecisionWindow)

	a.acceptMatch(obs, top)
	a.mineLosers(obs, cands, top.PlayerID)

	id := top.PlayerID
	observability.DecisionsTotal.WithLabelValues(string(models.SourceGallery)).Inc()
	return models.IdentityDecision{
		VideoID:    obs.VideoID,
		FrameNum:   obs.FrameNum,
		TrackID:    obs.Detection.TrackID,
		PlayerID:   &id,
		PlayerName: top.Name,
		Confidence: conf,
		Source:     models.SourceGallery,
	}
}

func (a *Arbiter) resolveLocked(obs models.FrameObservation, ts *trackState, cands []matcher.Candidate, threshold float32) models.IdentityDecision {
	if len(cands) == 0 || cands[0].Score < threshold {
		// No usable evidence this frame; the lock holds.
		return a.heldDecision(obs, ts)
	}
	top := cands[0]

	if top.PlayerID == ts.playerID {
		if c := capConfidence(top.Score); c > ts.confidence {
			ts.confidence = c
		}
		ts.pushWindow(windowEntry{playerID: top.PlayerID, score: top.Score, frameNum: obs.FrameNum}, a.cfg.DecisionWindow)
		a.acceptMatch(obs, top)
		a.mineLosers(obs, cands, top.PlayerID)
		return a.heldDecision(obs, ts)
	}

	// A different player won the frame. Displacing an established
	// route needs a tiered confidence margin sustained over several
	// consecutive frames; a single strong frame is treated as flicker.
	ts.pushWindow(windowEntry{playerID: top.PlayerID, score: top.Score, frameNum: obs.FrameNum}, a.cfg.DecisionWindow)

	required := ts.confidence + a.requiredDelta(ts.confidence)
	if top.Score >= required && a.challengerPersisted(ts, top.PlayerID, required) {
		slog.Info("route lock displaced",
			"track", ts.trackID, "from", ts.playerName, "to", top.Name,
			"frame", obs.FrameNum, "score", top.Score)
		ts.playerID = top.PlayerID
		ts.playerName = top.Name
		ts.confidence = capConfidence(top.Score)
		ts.source = models.SourceGallery
		ts.assignedFrame = obs.FrameNum
		a.acceptMatch(obs, top)
		a.mineLosers(obs, cands, top.PlayerID)

		id := top.PlayerID
		observability.DecisionsTotal.WithLabelValues(string(models.SourceGallery)).Inc()
		return models.IdentityDecision{
			VideoID:    obs.VideoID,
			FrameNum:   obs.FrameNum,
			TrackID:    obs.Detection.TrackID,
			PlayerID:   &id,
			PlayerName: top.Name,
			Confidence: ts.confidence,
			Source:     models.SourceGallery,
		}
	}

	return a.heldDecision(obs, ts)
}

// requiredDelta is the margin a challenger must exceed, tiered by how
// strong the standing assignment is.
func (a *Arbiter) requiredDelta(confidence float32) float32 {
	switch {
	case confidence >= 0.75:
		return 0.20
	case confidence >= 0.70:
		return 0.15
	default:
		return 0.10
	}
}

// challengerPersisted reports whether the same challenger has cleared
// the required score on enough consecutive recent frames.
func (a *Arbiter) challengerPersisted(ts *trackState, challenger uuid.UUID, required float32) bool {
	need := a.cfg.ChallengerPersistFrames
	if need <= 1 {
		return true
	}
	run := 0
	for i := len(ts.window) - 1; i >= 0; i-- {
		e := ts.window[i]
		if e.playerID != challenger || e.score < required {
			break
		}
		run++
	}
	return run >= need
}

// acceptMatch feeds an accepted identity back into the gallery: a new
// scored reference frame plus the track-history counter.
func (a *Arbiter) acceptMatch(obs models.FrameObservation, top matcher.Candidate) {
	ref := gallery.NewReferenceFrame(obs.VideoID, obs.FrameNum, obs.Detection.TrackID,
		obs.Detection.BBox, obs.Detection.Confidence, top.Score, obs.Features)
	if err := a.gal.UpdatePlayer(top.PlayerID, obs.Features, &ref, gallery.UpdateOptions{}); err != nil {
		slog.Warn("gallery update from match", "player", top.Name, "error", err)
	}
	a.gal.RecordTrackMatch(top.PlayerID, obs.Detection.TrackID)
}

// mineLosers queues hard negatives for candidates that scored in the
// ambiguous band but lost to a confirmed different identity. They are
// committed in EndFrame so they cannot affect this frame's matches.
func (a *Arbiter) mineLosers(obs models.FrameObservation, cands []matcher.Candidate, winner uuid.UUID) {
	body := obs.Features.Get(models.RegionBody)
	if len(body) == 0 {
		return
	}
	for _, c := range cands {
		if c.PlayerID == winner || !a.miner.InBand(c.BaseScore) {
			continue
		}
		a.pending = append(a.pending, pendingNegative{
			playerID:   c.PlayerID,
			vector:     body,
			trackID:    obs.Detection.TrackID,
			frameNum:   obs.FrameNum,
			similarity: c.BaseScore,
		})
	}
}

func (a *Arbiter) unassignedDecision(obs models.FrameObservation) models.IdentityDecision {
	observability.DecisionsTotal.WithLabelValues(string(models.SourceUnassigned)).Inc()
	return models.IdentityDecision{
		VideoID:  obs.VideoID,
		FrameNum: obs.FrameNum,
		TrackID:  obs.Detection.TrackID,
		Source:   models.SourceUnassigned,
	}
}

func (a *Arbiter) heldDecision(obs models.FrameObservation, ts *trackState) models.IdentityDecision {
	id := ts.playerID
	observability.DecisionsTotal.WithLabelValues(string(models.SourceRouteLocked)).Inc()
	return models.IdentityDecision{
		VideoID:    obs.VideoID,
		FrameNum:   obs.FrameNum,
		TrackID:    obs.Detection.TrackID,
		PlayerID:   &id,
		PlayerName: ts.playerName,
		Confidence: ts.confidence,
		Source:     models.SourceRouteLocked,
	}
}

// settleDuplicates tolerates two tracks resolving to the same player
// for a short grace window (a track hand-off looks exactly like
// this), then forces the weaker claim back to unassigned and flags it
// for review.
func (a *Arbiter) settleDuplicates(frameNum int) []models.IdentityDecision {
	claims := make(map[uuid.UUID][]*trackState)
	for _, ts := range a.tracks {
		if ts.lastSeenFrame != frameNum || !ts.assigned() || ts.source == models.SourceUnassigned {
			continue
		}
		claims[ts.playerID] = append(claims[ts.playerID], ts)
	}

	var corrections []models.IdentityDecision
	for playerID, holders := range claims {
		if len(holders) < 2 {
			delete(a.conflictSince, playerID)
			continue
		}
		since, ok := a.conflictSince[playerID]
		if !ok {
			a.conflictSince[playerID] = frameNum
			continue
		}
		if frameNum-since < a.cfg.DuplicateGraceFrames {
			continue
		}

		anchoredAt := func(ts *trackState) bool {
			_, ok := ts.anchored[frameNum]
			return ok
		}
		sort.SliceStable(holders, func(i, j int) bool {
			if ai, aj := anchoredAt(holders[i]), anchoredAt(holders[j]); ai != aj {
				return ai
			}
			if holders[i].confidence != holders[j].confidence {
				return holders[i].confidence > holders[j].confidence
			}
			if holders[i].assignedFrame != holders[j].assignedFrame {
				return holders[i].assignedFrame < holders[j].assignedFrame
			}
			return holders[i].trackID < holders[j].trackID
		})

		for _, loser := range holders[1:] {
			// Anchor-locked frames are ground truth and never demoted,
			// even against each other. Surface the tagging conflict.
			if anchoredAt(loser) {
				slog.Warn("conflicting anchors claim one player, keeping both",
					"player", loser.playerName, "track", loser.trackID,
					"other_track", holders[0].trackID, "frame", frameNum)
				continue
			}
			slog.Warn("duplicate identity conflict, demoting track",
				"player", loser.playerName, "track", loser.trackID,
				"kept_track", holders[0].trackID, "frame", frameNum)
			corrections = append(corrections, models.IdentityDecision{
				VideoID:  a.videoID,
				FrameNum: frameNum,
				TrackID:  loser.trackID,
				Source:   models.SourceUnassigned,
				Flagged:  true,
			})
			loser.playerID = uuid.Nil
			loser.playerName = ""
			loser.confidence = 0
			loser.source = models.SourceUnassigned
			loser.window = nil
			observability.DuplicateConflicts.Inc()
		}
		delete(a.conflictSince, playerID)
	}
	sort.Slice(corrections, func(i, j int) bool { return corrections[i].TrackID < corrections[j].TrackID })
	return corrections
}

func capConfidence(score float32) float32 {
	if score > maxMatchConfidence {
		return maxMatchConfidence
	}
	if score < 0 {
		return 0
	}
	return score
}
