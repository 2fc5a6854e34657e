package gallery

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/playerid/internal/config"
	"github.com/your-org/playerid/internal/models"
	"github.com/your-org/playerid/internal/observability"
)

// Gallery is the persistent feature store of player profiles. It has a
// single writer per frame (the arbiter); embedding hosts that process
// frames from multiple goroutines must serialize mutation to one
// owner, because aggregate folding is not associative under concurrent
// partial updates.
type Gallery struct {
	cfg      config.GalleryConfig
	profiles map[uuid.UUID]*PlayerProfile
	byName   map[string]uuid.UUID
	store    CheckpointStore
	dirty    bool
}

// UpdateOptions controls UpdatePlayer behavior.
type UpdateOptions struct {
	// CreateIfMissing enables the explicit create-on-write contract:
	// an update to an unknown player id fails with ErrPlayerNotFound
	// unless this is set, in which case Name must be provided.
	CreateIfMissing bool
	Name            string
}

// Open loads the gallery from its checkpoint store. Corruption falls
// back to the last valid backup; if that also fails the gallery starts
// empty with a logged warning. Open never fails on bad data.
func Open(cfg config.GalleryConfig, store CheckpointStore) (*Gallery, error) {
	g := &Gallery{
		cfg:      cfg,
		profiles: make(map[uuid.UUID]*PlayerProfile),
		byName:   make(map[string]uuid.UUID),
		store:    store,
	}

	if store == nil {
		return g, nil
	}

	snap, err := store.Load()
	if err != nil {
		slog.Warn("gallery checkpoint unreadable, starting empty", "error", err)
		observability.GalleryProfiles.Set(0)
		return g, nil
	}
	for i := range snap.Profiles {
		p := snap.Profiles[i]
		// Checkpoints from other writers may carry null maps; every map
		// on a loaded profile must be writable.
		if p.Aggregates == nil {
			p.Aggregates = make(map[models.Region][]float32)
		}
		if p.AggWeights == nil {
			p.AggWeights = make(map[models.Region]float64)
		}
		if p.TrackMatches == nil {
			p.TrackMatches = make(map[string]int)
		}
		if p.Breadcrumbs == nil {
			p.Breadcrumbs = make(map[string]int)
		}
		g.profiles[p.ID] = p
		g.byName[p.Name] = p.ID
	}
	observability.GalleryProfiles.Set(float64(len(g.profiles)))
	slog.Info("gallery loaded", "profiles", len(g.profiles), "saved_at", snap.SavedAt)
	return g, nil
}

// AddPlayer registers a new profile. Structural change: checkpoints
// immediately.
func (g *Gallery) AddPlayer(name string) (*PlayerProfile, error) {
	if _, exists := g.byName[name]; exists {
		return nil, fmt.Errorf("add player %q: %w", name, ErrDuplicatePlayer)
	}
	p := newProfile(name)
	g.profiles[p.ID] = p
	g.byName[name] = p.ID
	observability.GalleryProfiles.Set(float64(len(g.profiles)))
	if err := g.Checkpoint(); err != nil {
		slog.Warn("checkpoint after add player", "player", name, "error", err)
	}
	return p, nil
}

// GetProfile returns the profile for id, or ErrPlayerNotFound.
func (g *Gallery) GetProfile(id uuid.UUID) (*PlayerProfile, error) {
	p, ok := g.profiles[id]
	if !ok {
		return nil, fmt.Errorf("get profile %s: %w", id, ErrPlayerNotFound)
	}
	return p, nil
}

// GetByName returns the profile with the given display name, nil if
// none exists.
func (g *Gallery) GetByName(name string) *PlayerProfile {
	id, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.profiles[id]
}

// EnsurePlayer returns the profile named name, creating it if needed.
// This is the documented create-on-write path used by anchor ingestion.
func (g *Gallery) EnsurePlayer(name string) (*PlayerProfile, error) {
	if p := g.GetByName(name); p != nil {
		return p, nil
	}
	return g.AddPlayer(name)
}

// RemovePlayer deletes a profile. Structural change: checkpoints
// immediately.
func (g *Gallery) RemovePlayer(id uuid.UUID) error {
	p, ok := g.profiles[id]
	if !ok {
		return fmt.Errorf("remove player %s: %w", id, ErrPlayerNotFound)
	}
	delete(g.profiles, id)
	delete(g.byName, p.Name)
	observability.GalleryProfiles.Set(float64(len(g.profiles)))
	if err := g.Checkpoint(); err != nil {
		slog.Warn("checkpoint after remove player", "player", p.Name, "error", err)
	}
	return nil
}

// UpdatePlayer folds new region features (and optionally a reference
// frame) into a profile. The aggregate shifts as an incremental
// quality-weighted mean, never an overwrite. Submitting the same
// reference frame twice has no additional effect.
//
// Value-only updates are batched: they mark the gallery dirty and ride
// the next periodic checkpoint. A reference set exceeding the cap
// triggers pruning, which is structural and checkpoints immediately.
func (g *Gallery) UpdatePlayer(id uuid.UUID, features models.RegionFeatures, ref *ReferenceFrame, opts UpdateOptions) error {
	p, ok := g.profiles[id]
	if !ok {
		if !opts.CreateIfMissing {
			return fmt.Errorf("update player %s: %w", id, ErrPlayerNotFound)
		}
		if opts.Name == "" {
			return fmt.Errorf("update player %s: create-on-write requires a name", id)
		}
		if _, exists := g.byName[opts.Name]; exists {
			return fmt.Errorf("update player %s: %w", id, ErrDuplicatePlayer)
		}
		p = newProfile(opts.Name)
		p.ID = id
		g.profiles[id] = p
		g.byName[p.Name] = id
		observability.GalleryProfiles.Set(float64(len(g.profiles)))
	}

	if ref != nil {
		if p.hasReference(*ref) {
			return nil
		}
		p.References = append(p.References, *ref)
		p.foldFeatures(ref.Features, ref.Quality)
		p.recomputeDiversity()
		p.UpdatedAt = time.Now()
		g.dirty = true
		if len(p.References) > g.cfg.MaxReferenceFrames {
			return g.Prune(id)
		}
		return nil
	}

	if features.Empty() {
		return nil
	}
	p.foldFeatures(features, 1)
	p.UpdatedAt = time.Now()
	g.dirty = true
	return nil
}

// RecordTrackMatch bumps the per-track match counter that feeds the
// matcher's history boost.
func (g *Gallery) RecordTrackMatch(id uuid.UUID, trackID string) {
	if p, ok := g.profiles[id]; ok {
		p.TrackMatches[trackID]++
		g.dirty = true
	}
}

// RecordBreadcrumb records a user-confirmed track→player correction.
func (g *Gallery) RecordBreadcrumb(id uuid.UUID, trackID string) error {
	p, ok := g.profiles[id]
	if !ok {
		return fmt.Errorf("record breadcrumb %s: %w", id, ErrPlayerNotFound)
	}
	p.Breadcrumbs[trackID]++
	g.dirty = true
	return nil
}

// Profiles returns all profiles ordered by creation time then id, so
// iteration order is deterministic for matching.
func (g *Gallery) Profiles() []*PlayerProfile {
	out := make([]*PlayerProfile, 0, len(g.profiles))
	for _, p := range g.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Size returns the number of profiles.
func (g *Gallery) Size() int { return len(g.profiles) }

// DiversityRatio compares how distinct profiles are from each other
// (inter spread) against how consistent each profile is internally
// (intra spread). A ratio near or below 1 means profiles are hard to
// tell apart and matching should demand more.
func (g *Gallery) DiversityRatio() float64 {
	var interSum float64
	var interPairs int
	var intraSum float64
	var intraCount int

	profiles := g.Profiles()
	for i, pi := range profiles {
		if pi.Diversity > 0 {
			intraSum += pi.Diversity
			intraCount++
		}
		vi := pi.Aggregates[models.RegionBody]
		if len(vi) == 0 {
			continue
		}
		for _, pj := range profiles[i+1:] {
			vj := pj.Aggregates[models.RegionBody]
			if len(vj) == 0 {
				continue
			}
			interSum += 1 - float64(models.CosineSimilarity(vi, vj))
			interPairs++
		}
	}

	if interPairs == 0 || intraCount == 0 {
		return 1
	}
	intra := intraSum / float64(intraCount)
	if intra == 0 {
		return 1
	}
	return (interSum / float64(interPairs)) / intra
}

// Dirty reports whether value updates are awaiting a periodic
// checkpoint.
func (g *Gallery) Dirty() bool { return g.dirty }

// Checkpoint persists the whole store through the checkpoint store's
// atomic replace-on-write. No-op without a store.
func (g *Gallery) Checkpoint() error {
	if g.store == nil {
		g.dirty = false
		return nil
	}
	start := time.Now()
	snap := Snapshot{Version: snapshotVersion, SavedAt: time.Now()}
	for _, p := range g.Profiles() {
		snap.Profiles = append(snap.Profiles, p)
	}
	if err := g.store.Save(snap); err != nil {
		return fmt.Errorf("gallery checkpoint: %w", err)
	}
	g.dirty = false
	observability.CheckpointDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Close writes a final checkpoint if anything is pending.
func (g *Gallery) Close() error {
	if g.dirty {
		return g.Checkpoint()
	}
	return nil
}
