// Package engine orchestrates per-frame identity resolution:
// anchors → matching → arbitration → gallery feedback → checkpoints.
// It is the embedded-library entry point; cmd/worker and cmd/resolver
// are thin hosts around it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/arbiter"
	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/gallery"
	"github.com/your-org/playerid/internal/matcher"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

// Engine owns the shared gallery and the per-video sessions. Frames
// are processed strictly one at a time; the gallery has exactly one
// writer per frame (the session's arbiter), so the core needs no
// internal locking. Hosts that call from multiple goroutines must
// serialize access themselves.
type Engine struct {
	cfg      *config.Config
	gal      *gallery.Gallery
	matcher  *matcher.Matcher
	miner    *gallery.Miner
	sessions map[uuid.UUID]*Session
}

// Session is one video's resolution lifetime: its arbiter, its anchor
// set and its checkpoint cadence.
type Session struct {
	VideoID   uuid.UUID
	arb       *arbiter.Arbiter
	frames    int
	lastFrame int
	startedAt time.Time
}

func New(cfg *config.Config, gal *gallery.Gallery) *Engine {
	miner := gallery.NewMiner(cfg.Gallery)
	return &Engine{
		cfg:      cfg,
		gal:      gal,
		matcher:  matcher.New(cfg.Matcher, miner),
		miner:    miner,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Gallery exposes the engine's store handle for hosts (API handlers,
// breadcrumb recording). Mutation must stay on the engine's goroutine.
func (e *Engine) Gallery() *gallery.Gallery { return e.gal }

// StartSession opens a resolution session for one video with its
// ground-truth anchor set.
func (e *Engine) StartSession(videoID uuid.UUID, anchors []models.AnchorAssignment) *Session {
	s := &Session{
		VideoID:   videoID,
		arb:       arbiter.New(e.cfg.Arbiter, e.gal, e.matcher, e.miner, arbiter.NewAnchorIndex(e.cfg.Arbiter, anchors), videoID),
		startedAt: time.Now(),
	}
	e.sessions[videoID] = s
	slog.Info("resolution session started", "video_id", videoID, "anchors", len(anchors))
	return s
}

// Session returns an open session, nil if unknown.
func (e *Engine) Session(videoID uuid.UUID) *Session { return e.sessions[videoID] }

// ProcessFrame arbitrates every observation of one frame and returns
// the per-track identity decisions, including any duplicate-conflict
// corrections. Cancellation is honored only between frames: once a
// frame starts it fully resolves, so no partial-frame state ever
// reaches the gallery.
func (e *Engine) ProcessFrame(ctx context.Context, s *Session, frameNum int, observations []models.FrameObservation) ([]models.IdentityDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	// Deterministic resolution order within the frame.
	sort.SliceStable(observations, func(i, j int) bool {
		return observations[i].Detection.TrackID < observations[j].Detection.TrackID
	})

	decisions := make([]models.IdentityDecision, 0, len(observations))
	for i := range observations {
		obs := observations[i]
		obs.VideoID = s.VideoID
		obs.FrameNum = frameNum
		if obs.Features.Empty() {
			slog.Debug("observation without features", "track", obs.Detection.TrackID, "frame", frameNum)
			decisions = append(decisions, models.IdentityDecision{
				VideoID:  s.VideoID,
				FrameNum: frameNum,
				TrackID:  obs.Detection.TrackID,
				Source:   models.SourceUnassigned,
			})
			continue
		}
		decisions = append(decisions, s.arb.Resolve(obs))
	}

	decisions = append(decisions, s.arb.EndFrame(frameNum)...)

	s.frames++
	s.lastFrame = frameNum
	observability.FramesResolved.WithLabelValues(s.VideoID.String()).Inc()
	observability.ResolveDuration.WithLabelValues("frame").Observe(time.Since(start).Seconds())

	if e.cfg.Gallery.CheckpointInterval > 0 && s.frames%e.cfg.Gallery.CheckpointInterval == 0 && e.gal.Dirty() {
		if err := e.gal.Checkpoint(); err != nil {
			// Persistence trouble must not stall per-frame processing.
			slog.Warn("periodic gallery checkpoint", "video_id", s.VideoID, "error", err)
		}
	}

	return decisions, nil
}

// FinishSession closes a session and flushes pending gallery state.
func (e *Engine) FinishSession(s *Session) error {
	delete(e.sessions, s.VideoID)
	slog.Info("resolution session finished",
		"video_id", s.VideoID, "frames", s.frames,
		"duration", time.Since(s.startedAt).String())
	if err := e.gal.Checkpoint(); err != nil {
		return fmt.Errorf("final checkpoint for %s: %w", s.VideoID, err)
	}
	return nil
}

// Close flushes the gallery. Call on shutdown.
func (e *Engine) Close() error {
	return e.gal.Close()
}
